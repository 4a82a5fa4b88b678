package apperr

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeNotFound, CodeOf(NotFound("room not found")))
	assert.Equal(t, CodeConflict, CodeOf(Conflict("name taken")))
	assert.Equal(t, CodeUnknown, CodeOf(errors.New("plain")))
	assert.Equal(t, CodeUnknown, CodeOf(nil))
}

func TestCodeOfWrappedChain(t *testing.T) {
	err := fmt.Errorf("handler: %w", Wrap(CodeUnavailable, "redis down", io.EOF))

	assert.Equal(t, CodeUnavailable, CodeOf(err))
	assert.True(t, IsCode(err, CodeUnavailable))
	assert.False(t, IsCode(err, CodeNotFound))
}

func TestUnwrapKeepsCause(t *testing.T) {
	err := Wrap(CodeInternal, "query failed", io.EOF)

	assert.ErrorIs(t, err, io.EOF)
	assert.Contains(t, err.Error(), "query failed")
	assert.Contains(t, err.Error(), io.EOF.Error())
}

func TestIsMatchesByCode(t *testing.T) {
	assert.ErrorIs(t, NotFound("room not found"), NotFound(""))
	assert.NotErrorIs(t, NotFound("room not found"), Conflict(""))
	assert.NotErrorIs(t, NotFound("room not found"), io.EOF)
}
