package conn

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/tobsdb/jsondb"
	"github.com/tobsdb/jsondb/internal/auth"
	"github.com/tobsdb/jsondb/internal/config"
	"github.com/tobsdb/jsondb/pkg"
	"golang.org/x/time/rate"
)

// Server exposes one database over websockets.
type Server struct {
	db       *jsondb.JsonDatabase
	users    *auth.Users
	settings config.ServerConfig
}

func NewServer(db *jsondb.JsonDatabase, users *auth.Users, settings config.ServerConfig) *Server {
	return &Server{db, users, settings}
}

func (s *Server) newLimiter() *rate.Limiter {
	if s.settings.RateLimit <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(s.settings.RateLimit), max(s.settings.Burst, 1))
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/", s.HandleConnection)
	return mux
}

// FlushDirty writes the database if anything changed since the last flush.
func (s *Server) FlushDirty() (err error) {
	pkg.LockWrap(s.db, func() {
		if s.db.Dirty() {
			err = s.db.Flush()
		}
	})
	return err
}

func (s *Server) flushLoop(ctx context.Context) {
	if s.settings.FlushInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.settings.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.FlushDirty(); err != nil {
				pkg.ErrorLog("periodic flush failed", "err", err)
			}
		}
	}
}

// Listen serves on the configured port until ctx is done, then flushes and
// closes the database.
func (s *Server) Listen(ctx context.Context) error {
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", s.settings.Port))
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{Handler: s.Handler()}

	serve_err := make(chan error, 1)
	go func() {
		err := srv.Serve(l)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		serve_err <- err
	}()

	loop_ctx, stop := context.WithCancel(ctx)
	defer stop()
	go s.flushLoop(loop_ctx)

	pkg.InfoLog("jsondb listening", "addr", l.Addr().String())
	var err error
	select {
	case <-ctx.Done():
	case err = <-serve_err:
	}

	pkg.DebugLog("shutting down")
	shutdown_ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdown_ctx)

	var close_err error
	pkg.LockWrap(s.db, func() { close_err = s.db.Close() })
	return errors.Join(err, close_err)
}
