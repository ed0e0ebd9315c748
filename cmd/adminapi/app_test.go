package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/okuzmin/adminapi/internal/logger"
	"github.com/okuzmin/adminapi/internal/service/sessioncleaner"
	"github.com/okuzmin/adminapi/internal/testutil"
)

type noopSessionRepo struct{}

func (noopSessionRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func Test_ServerApp_Run(t *testing.T) {
	t.Parallel()

	t.Run("stops gracefully on context cancellation", func(t *testing.T) {
		port, err := testutil.RandomPort()
		require.NoError(t, err)

		log := logger.NewNoOpLogger()
		app := &ServerApp{
			ListenAddr: fmt.Sprintf("localhost:%d", port),
			Handler:    http.NewServeMux(),
			logger:     log,
			cleaner:    sessioncleaner.New(noopSessionRepo{}, log, time.Hour),
		}

		ctx, cancel := context.WithCancel(t.Context())
		done := make(chan error, 1)
		go func() {
			done <- app.Run(ctx)
		}()

		require.Eventually(t, func() bool {
			conn, err := net.Dial("tcp", app.ListenAddr)
			if err != nil {
				return false
			}
			_ = conn.Close()
			return true
		}, 5*time.Second, 10*time.Millisecond, "server should start accepting connections")

		cancel()

		select {
		case err := <-done:
			require.ErrorIs(t, err, http.ErrServerClosed, "graceful shutdown reports the server as closed")
		case <-time.After(5 * time.Second):
			t.Fatal("server should stop on context cancellation")
		}
	})
}
