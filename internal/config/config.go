package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type HTTPServer struct {
	Host string
	Port string
}

type Mongo struct {
	URI      string
	Database string
}

type RedisCache struct {
	Host     string
	Port     string
	Password string
	// Enabled switches the duplicate-add lock from in-process to
	// Redis; single-instance deployments can leave it off.
	Enabled bool
}

type TMDB struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

type Realtime struct {
	PingInterval time.Duration
	PongWait     time.Duration
	// LeaveGrace is how long a user may stay fully disconnected
	// before the room hears user_left.
	LeaveGrace time.Duration
}

type Config struct {
	HTTP     HTTPServer
	Mongo    Mongo
	Redis    RedisCache
	TMDB     TMDB
	Realtime Realtime
}

const logtag = "[config]"

func Load() *Config {
	configPath := flag.String("config", "", "path env file")
	flag.Parse()

	if *configPath != "" {
		if err := godotenv.Load(*configPath); err != nil {
			log.Fatalf("%s err loading env from file : %v", logtag, err)
		}
		log.Printf("%s using env from : %s", logtag, *configPath)
	} else {
		log.Printf("%s using env from .env", logtag)
		_ = godotenv.Load()
	}

	cfg := &Config{
		HTTP:     *newHTTP(),
		Mongo:    *newMongo(),
		Redis:    *newRedis(),
		TMDB:     *newTMDB(),
		Realtime: *newRealtime(),
	}

	log.Printf("%s backend config : %+v\n", logtag, cfg)
	return cfg
}

func newHTTP() *HTTPServer {
	return &HTTPServer{
		Port: getenv("HTTP_PORT", "8080"),
		Host: getenv("HTTP_HOST", "localhost"),
	}
}

func newMongo() *Mongo {
	return &Mongo{
		URI:      getenv("MONGODB_URL", "mongodb://localhost:27017"),
		Database: getenv("MONGODB_DATABASE", "watchqueue"),
	}
}

func newRedis() *RedisCache {
	return &RedisCache{
		Port:     getenv("REDIS_PORT", "6379"),
		Host:     getenv("REDIS_HOST", "redis"),
		Password: getenv("REDIS_PASSWORD", ""),
		Enabled:  getenvBool("REDIS_ENABLED", false),
	}
}

func newTMDB() *TMDB {
	return &TMDB{
		APIKey:  getenv("TMDB_API_KEY", ""),
		BaseURL: getenv("TMDB_BASE_URL", "https://api.themoviedb.org/3"),
		Timeout: getenvDuration("TMDB_TIMEOUT", 10*time.Second),
	}
}

func newRealtime() *Realtime {
	return &Realtime{
		PingInterval: getenvDuration("WS_PING_INTERVAL", 30*time.Second),
		PongWait:     getenvDuration("WS_PONG_WAIT", 75*time.Second),
		LeaveGrace:   getenvDuration("WS_LEAVE_GRACE", 8*time.Second),
	}
}

func getenv(key, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		fmt.Printf("%s %s undefined. Using default value %s\n", logtag, key, defaultValue)
		return defaultValue
	}
	fmt.Printf("%s %s = %s\n", logtag, key, val)
	return val
}

func getenvBool(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		fmt.Printf("%s %s invalid bool %q. Using default %v\n", logtag, key, val, defaultValue)
		return defaultValue
	}
	return parsed
}

func getenvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		fmt.Printf("%s %s invalid duration %q. Using default %v\n", logtag, key, val, defaultValue)
		return defaultValue
	}
	return parsed
}
