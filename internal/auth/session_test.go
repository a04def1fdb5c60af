package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/irtimmer/rproxy/internal/rpctx"
)

func TestMemoryStoreSaveLoad(t *testing.T) {
	s := NewMemoryStore(time.Minute, time.Hour)
	defer s.Close()

	cookie, err := s.Save("", rpctx.Session{"user": "a@example.com"})
	require.NoError(t, err)
	require.NotEmpty(t, cookie)

	got, ok := s.Load(cookie)
	require.True(t, ok)
	require.Equal(t, "a@example.com", got["user"])
}

func TestMemoryStoreSaveReusesCookie(t *testing.T) {
	s := NewMemoryStore(time.Minute, time.Hour)
	defer s.Close()

	cookie, err := s.Save("", rpctx.Session{"login": "pending"})
	require.NoError(t, err)

	same, err := s.Save(cookie, rpctx.Session{"user": "a@example.com"})
	require.NoError(t, err)
	require.Equal(t, cookie, same)

	got, ok := s.Load(cookie)
	require.True(t, ok)
	require.Equal(t, "a@example.com", got["user"])
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore(10*time.Millisecond, time.Hour)
	defer s.Close()

	cookie, err := s.Save("", rpctx.Session{"user": "a@example.com"})
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	_, ok := s.Load(cookie)
	require.False(t, ok)
}

func TestMemoryStoreSweep(t *testing.T) {
	s := NewMemoryStore(5*time.Millisecond, 10*time.Millisecond)
	defer s.Close()

	cookie, err := s.Save("", rpctx.Session{"user": "a@example.com"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		_, ok := s.sessions[cookie]
		return !ok
	}, time.Second, 5*time.Millisecond)
}
