package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dltjwls02/ON-AIR-mate/internal/fanout"
	"github.com/dltjwls02/ON-AIR-mate/internal/presence"
	"github.com/dltjwls02/ON-AIR-mate/internal/router"
	"github.com/dltjwls02/ON-AIR-mate/internal/server/middleware"
	"github.com/dltjwls02/ON-AIR-mate/internal/storage"
	"github.com/dltjwls02/ON-AIR-mate/pkg/config"
	"github.com/dltjwls02/ON-AIR-mate/pkg/session"
	"github.com/dltjwls02/ON-AIR-mate/pkg/transport"
)

// App owns the process-wide wiring: one shared Redis client for presence and
// fan-out, one embedded message store, one session registry, one event
// router. Components receive the pieces they need explicitly; there is no
// global server handle.
type App struct {
	logger   *slog.Logger
	config   *config.Config
	registry *session.Registry
	router   *router.EventRouter
	bus      fanout.Bus
	rdb      *redis.Client
	db       *badger.DB
	http     *http.Server
	wg       sync.WaitGroup

	ctx context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config) (*App, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	db, err := storage.Open(cfg.Storage.Path, logger)
	if err != nil {
		rdb.Close()
		return nil, err
	}

	var bus fanout.Bus
	switch cfg.Fanout.Driver {
	case "redis":
		bus = fanout.NewRedisBus(rdb, cfg.Fanout.Channel, logger)
	case "memory":
		bus = fanout.NewMemoryBus()
	default:
		db.Close()
		rdb.Close()
		return nil, fmt.Errorf("unknown fanout driver %q", cfg.Fanout.Driver)
	}

	store := storage.NewBadgerStore(db, logger)
	registry := session.NewRegistry(logger)
	eventRouter := router.NewEventRouter(logger, presence.NewRedisStore(rdb, logger), store, store, registry, bus)

	app := &App{
		logger:   logger,
		config:   cfg,
		registry: registry,
		router:   eventRouter,
		bus:      bus,
		rdb:      rdb,
		db:       db,
		ctx:      rootCtx,
	}

	connCycler := func(userID int64) {
		oldest, found := registry.OldestUserConnection(userID)
		if found {
			logger.Info("Cycling connection: closing oldest", slog.Int64("userID", userID), slog.String("connID", oldest.ConnID.String()))
			oldest.Transport.Close(errors.New("connection cycled by new connection"))
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/ws",
		middleware.Chain(http.HandlerFunc(app.upgradeHandler),
			middleware.RequestMetadataMiddleware(),
			middleware.NewAuthMiddleware(logger, middleware.NewJWTVerifier(cfg.Server.Auth.JWTSecret)),
			middleware.NewRequestLogger(logger),
			middleware.NewConnectionLimiter(logger, registry.UserConnectionCount, connCycler, cfg.Server.ConnectionLimit),
		),
	)

	app.http = &http.Server{
		Addr:    cfg.Server.Address,
		Handler: mux,
		BaseContext: func(l net.Listener) context.Context {
			return app.ctx
		},
	}

	return app, nil
}

func (a *App) Run() error {
	if err := a.router.Start(a.ctx); err != nil {
		return fmt.Errorf("start fan-out subscription: %w", err)
	}

	go func() {
		a.logger.Info("Server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	<-a.ctx.Done()
	return a.Shutdown()
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	connLogger := a.logger.With(
		slog.String("remoteAddr", reqMeta.IP),
		slog.Int64("userID", reqMeta.UserID),
	)

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		connLogger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.ConnectionConfig(a.config.Transport),
		nil,
		nil,
		a.logger,
	)

	// Identity was resolved by the gate and is immutable from here on.
	sess := session.New(conn.ID(), reqMeta.UserID, reqMeta.DisplayName, conn)
	if err := a.registry.Register(sess); err != nil {
		connLogger.Error("Failed to register session", slog.Any("error", err))
		conn.Close(err)
		return
	}

	conn.SetOnMessageHandler(a.router.HandleMessage)
	conn.SetOnCloseHandler(func(id uuid.UUID, err error) {
		connLogger.Info("Running disconnect cleanup", slog.String("connID", id.String()))
		// Disconnect cleanup must never take down anything else; the
		// router logs and swallows presence errors.
		a.router.HandleDisconnect(context.WithoutCancel(a.ctx), id)
	})

	connLogger.Info("User connection fully established", slog.String("connID", conn.ID().String()))
	conn.Run()
	<-conn.Done()
}

// Shutdown runs the graceful shutdown sequence.
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	a.logger.Info("Closing all active connections...")
	for _, sess := range a.registry.All() {
		sess.Transport.Close(errors.New("graceful shutdown"))
	}

	// Wait for connection goroutines to finish their cleanup before tearing
	// down the stores they may still touch.
	a.wg.Wait()

	if err := a.bus.Close(); err != nil {
		a.logger.Error("Failed to close fan-out bus", slog.Any("error", err))
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("Failed to close message store", slog.Any("error", err))
	}
	if err := a.rdb.Close(); err != nil {
		a.logger.Error("Failed to close redis client", slog.Any("error", err))
	}

	a.logger.Info("Server shut down gracefully.")
	return nil
}
