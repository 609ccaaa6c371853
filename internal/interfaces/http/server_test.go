package http

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairclaim/protest-engine/internal/config"
)

func TestNewServer_Defaults(t *testing.T) {
	s := NewServer(config.ServerConfig{Port: 8080},
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}), nil)

	assert.Equal(t, ":8080", s.srv.Addr)
	assert.Equal(t, 15*time.Second, s.srv.ReadTimeout)
	assert.Equal(t, 30*time.Second, s.srv.WriteTimeout)
}

func TestServer_StartStop(t *testing.T) {
	s := NewServer(config.ServerConfig{Port: 0},
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}), nil)

	done := make(chan error, 1)
	go func() { done <- s.Start() }()

	// Give the listener a moment, then shut down cleanly.
	time.Sleep(50 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
