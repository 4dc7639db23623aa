package redisstore

import (
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"studyrag/internal/adapter/storetest"
	"studyrag/internal/port"
)

// Set STUDYRAG_TEST_REDIS_ADDR (e.g. localhost:6379) to run against a live server.
func TestRedisSessionStore(t *testing.T) {
	addr := os.Getenv("STUDYRAG_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("STUDYRAG_TEST_REDIS_ADDR not set")
	}

	storetest.RunSessionStore(t, func(t *testing.T) port.SessionStore {
		s, err := New(Options{Addr: addr, Prefix: "studyrag-test-" + uuid.NewString()})
		require.NoError(t, err)
		t.Cleanup(func() {
			list, _ := s.ListSessions()
			for _, sess := range list {
				_ = s.DeleteSession(sess.ID)
			}
			s.Close()
		})
		return s
	})
}
