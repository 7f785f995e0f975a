package storage

import (
	"testing"

	"github.com/poiesic/docqa/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(Config{Backend: "cassandra"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownBackend)
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
}

func TestRegister(t *testing.T) {
	var opened string
	Register("test-backend", func(path string) (Index, error) {
		opened = path
		return nil, nil
	})
	defer func() {
		backendsMu.Lock()
		delete(backends, "test-backend")
		backendsMu.Unlock()
	}()

	assert.Contains(t, Backends(), "test-backend")
	_, err := Open(Config{Backend: "test-backend", Path: "/tmp/x"})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x", opened)

	assert.Panics(t, func() {
		Register("test-backend", func(string) (Index, error) { return nil, nil })
	})
}
