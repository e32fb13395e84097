package client

import (
	"context"
	"errors"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/bus"
	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/cache"
	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/lock"
	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/logging"
	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/rest"
	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/send"
	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/session"
	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/socket"
	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/status"
	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/store"
	intsync "github.com/Jonathanmedhed/msn-frontend-sub000/internal/sync"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	APIBaseURL  string
	SocketURL   string
	// ConsoleLog tees logs to stderr. Off when a TUI owns the terminal.
	ConsoleLog bool
}

// Module returns the fx module composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("client",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideCacheDB,
			provideRecorder,
			provideRESTClient,
			provideSocket,
			provideSyncEngine,
			providePipeline,
			provideRuntime,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	if p.ConsoleLog {
		return logging.New(session.LogPath(p.SessionName), p.SessionName)
	}
	return logging.NewFileOnly(session.LogPath(p.SessionName), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideStore(b *bus.Bus) *store.Store {
	return store.New(b)
}

func provideCacheDB(p Params, logger *zap.Logger) (*cache.DB, error) {
	dbPath := session.CacheDBPath(p.SessionName)
	db, err := cache.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("cache migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("cache migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("cache initialized", zap.String("path", dbPath))
	return db, nil
}

func provideRecorder(db *cache.DB, s *store.Store, b *bus.Bus, logger *zap.Logger) *cache.Recorder {
	return cache.NewRecorder(db, s, b, logger)
}

func provideRESTClient(p Params, logger *zap.Logger) *rest.Client {
	return rest.New(p.APIBaseURL, logger)
}

func provideSocket(p Params, b *bus.Bus, logger *zap.Logger) *socket.Conn {
	return socket.New(p.SocketURL, b, logger)
}

func provideSyncEngine(s *store.Store, b *bus.Bus, conn *socket.Conn, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(s, b, conn, logger)
}

func providePipeline(s *store.Store, api *rest.Client, conn *socket.Conn, b *bus.Bus, logger *zap.Logger) *send.Pipeline {
	return send.NewPipeline(s, api, conn, b, logger)
}

func provideRuntime(p Params, s *store.Store, b *bus.Bus, m *status.Machine, pl *send.Pipeline, api *rest.Client, conn *socket.Conn, engine *intsync.Engine, recorder *cache.Recorder, logger *zap.Logger) *Runtime {
	return &Runtime{
		SessionName: p.SessionName,
		Store:       s,
		Bus:         b,
		Machine:     m,
		Pipeline:    pl,
		api:         api,
		conn:        conn,
		engine:      engine,
		recorder:    recorder,
		logger:      logger,
	}
}

func registerLifecycle(lc fx.Lifecycle, p Params, r *Runtime, lk *lock.Lock, db *cache.DB, logger *zap.Logger) {
	runCtx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Warm-start from the snapshot before any network traffic,
			// then keep the snapshot following the store.
			if err := r.recorder.Restore(); err != nil {
				logger.Warn("cache restore failed", zap.Error(err))
			}
			r.recorder.Start(runCtx)

			go watchSession(runCtx, r)

			cred, err := session.LoadCredential(p.SessionName)
			switch {
			case errors.Is(err, session.ErrNoCredential):
				logger.Info("no credentials found, auth required")
				return r.Machine.Transition(status.AuthRequired)
			case err != nil:
				return err
			case session.TokenExpired(cred.Token, time.Now()):
				logger.Info("stored token expired, auth required")
				_ = session.ClearCredential(p.SessionName)
				return r.Machine.Transition(status.AuthRequired)
			}

			r.cred = cred
			go func() {
				if err := r.Connect(runCtx); err != nil {
					logger.Error("auto-connect failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(_ context.Context) error {
			cancel()
			r.Pipeline.Close()
			r.disconnect()
			r.recorder.Stop()
			_ = db.Close()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("client stopped")
			return nil
		},
	})
}

// watchSession reacts to credential expiry and socket loss. Neither path
// reconnects on its own; going back online is always a user action.
func watchSession(ctx context.Context, r *Runtime) {
	authSub := r.Bus.Subscribe(send.EventAuthExpired, 16)
	defer authSub.Close()
	dropSub := r.Bus.Subscribe(socket.EventDisconnected, 16)
	defer dropSub.Close()

	for {
		select {
		case <-authSub.Events():
			r.expireSession()
		case <-dropSub.Events():
			if r.Machine.Current() == status.Ready {
				_ = r.Machine.Transition(status.Degraded)
			}
		case <-ctx.Done():
			return
		}
	}
}
