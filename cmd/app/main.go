package main

import (
	"github.com/irfanalimd/watchqueue/internal/app"
	"github.com/irfanalimd/watchqueue/internal/config"
)

func main() {
	app.Go(config.Load())
}
