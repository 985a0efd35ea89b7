package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/cwrk-planet/meet-service/config"
	"github.com/cwrk-planet/meet-service/internal/ice"
	"github.com/cwrk-planet/meet-service/internal/idgen"
	"github.com/cwrk-planet/meet-service/internal/logger"
	"github.com/cwrk-planet/meet-service/internal/memstore"
	"github.com/cwrk-planet/meet-service/internal/postgres"
	"github.com/cwrk-planet/meet-service/internal/presence"
	"github.com/cwrk-planet/meet-service/internal/pubsub"
	"github.com/cwrk-planet/meet-service/internal/ratelimit"
	"github.com/cwrk-planet/meet-service/internal/service"
	"github.com/cwrk-planet/meet-service/internal/signaling"
	"github.com/cwrk-planet/meet-service/internal/syncx"
	grpcx "github.com/cwrk-planet/meet-service/internal/transport/grpc"
	httpx "github.com/cwrk-planet/meet-service/internal/transport/http"
	"github.com/cwrk-planet/meet-service/internal/transport/ws"
)

const shutdownTimeout = 10 * time.Second

// stores — репозитории выбранного хранилища.
type stores struct {
	rooms        service.RoomRepository
	participants service.ParticipantRepository
	chat         service.ChatRepository
	bindings     presence.Source
	pinger       httpx.Pinger
	close        func()
}

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.ParseEnv(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		Level:     logger.ParseLevel(cfg.Logging.Level),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	defer func() { _ = logger.Sync() }()
	slog.Info("starting meet-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("meet-service stopped with error", "err", err)
		_ = logger.Sync()
		os.Exit(1)
	}
	slog.Info("stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	// --- storage ---
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	// --- presence: восстановление после рестарта ---
	tracker := presence.New()
	loadCtx, cancel := context.WithTimeout(ctx, cfg.Store.Timeout)
	n, err := tracker.Load(loadCtx, st.bindings)
	cancel()
	if err != nil {
		return err
	}
	slog.Info("presence restored", "sessions", n)

	// --- services ---
	broker := pubsub.NewBroker()
	locks := syncx.NewKeyedMutex()
	ids := idgen.New()
	opts := []service.Option{
		service.WithStoreTimeout(cfg.Store.Timeout),
		service.WithMaxMessageLength(cfg.Chat.MaxLength),
	}
	chatSvc := service.NewChatService(st.rooms, st.chat, broker, ids, locks, opts...)
	roomSvc := service.NewRoomService(st.rooms, tracker, ids, locks,
		append(opts, service.WithRoomDeleted(chatSvc.ForgetRoom))...)
	memberSvc := service.NewMemberService(st.rooms, st.participants, tracker, broker, ids, locks, opts...)
	signals := signaling.NewRouter(broker, tracker)

	// --- rate limit ---
	limiter, closeLimiter, err := openLimiter(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLimiter()

	// --- webrtc ---
	iceServers, err := ice.Build(toICE(cfg.WebRTC.ICEServers))
	if err != nil {
		return err
	}

	// --- WS ---
	wsServer := ws.NewServer(ws.Deps{
		Broker:   broker,
		Presence: tracker,
		Router:   signals,
		Rooms:    roomSvc,
		Members:  memberSvc,
		Chat:     chatSvc,
		Limiter:  limiter,
	}, ws.Config{
		PingPeriod:     cfg.WS.PingPeriod,
		ReadLimit:      cfg.WS.ReadLimit,
		SendBuffer:     cfg.WS.SendBuffer,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})

	// --- HTTP ---
	handler := httpx.NewHandler(roomSvc, memberSvc, chatSvc, st.pinger, iceServers)
	router := httpx.NewRouter(handler, wsServer, httpx.RouterConfig{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		RequestTimeout: cfg.HTTP.WriteTimeout,
	})
	httpSrv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	// --- gRPC ---
	var grpcServer *grpc.Server
	if cfg.GRPC.Addr != "" {
		grpcServer = grpc.NewServer(grpc.ChainUnaryInterceptor(grpcx.UnaryServerInterceptor(grpcx.DefaultCallTimeout)))
		grpcx.Register(grpcServer, grpcx.NewServer(roomSvc, memberSvc, chatSvc))
	}

	// --- run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if grpcServer != nil {
		g.Go(func() error {
			lis, err := net.Listen("tcp", cfg.GRPC.Addr)
			if err != nil {
				return err
			}
			slog.Info("grpc listen", "addr", cfg.GRPC.Addr)
			return grpcServer.Serve(lis)
		})
	}

	// --- graceful shutdown ---
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if grpcServer != nil {
			grpcServer.GracefulStop()
		}
		if err := httpSrv.Shutdown(sctx); err != nil {
			slog.Warn("http shutdown", "err", err)
		}
		// websocket-соединения hijacked: http.Server их не закрывает
		if err := wsServer.Shutdown(sctx); err != nil {
			slog.Warn("ws shutdown", "err", err)
		}
		if err := broker.Shutdown(sctx); err != nil {
			slog.Warn("broker shutdown", "err", err)
		}
		return nil
	})

	return g.Wait()
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.UseMemoryStore() {
		slog.Warn("postgres dsn is empty, using in-memory store")
		ms := memstore.New()
		return &stores{
			rooms:        ms.Rooms(),
			participants: ms.Participants(),
			chat:         ms.Chat(),
			bindings:     ms.Participants(),
			pinger:       ms,
			close:        func() {},
		}, nil
	}

	db, err := postgres.New(ctx, postgres.Config{
		DSN:               cfg.Postgres.DSN,
		MaxConns:          cfg.Postgres.MaxConns,
		MinConns:          cfg.Postgres.MinConns,
		MaxConnLifetime:   cfg.Postgres.MaxConnLifetime,
		MaxConnIdleTime:   cfg.Postgres.MaxConnIdleTime,
		HealthCheckPeriod: cfg.Postgres.HealthCheckPeriod,
		ApplicationName:   cfg.Postgres.ApplicationName,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Postgres.Migrate {
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}

	parts := postgres.NewParticipantRepository(db.Pool)
	return &stores{
		rooms:        postgres.NewRoomRepository(db.Pool),
		participants: parts,
		chat:         postgres.NewChatRepository(db.Pool),
		bindings:     parts,
		pinger:       db,
		close:        db.Close,
	}, nil
}

// openLimiter: при заданном redisAddr лимит общий для всех экземпляров, иначе — в памяти процесса.
func openLimiter(ctx context.Context, cfg *config.Config) (ratelimit.Limiter, func(), error) {
	rl := cfg.RateLimit
	if rl.RedisAddr == "" {
		return ratelimit.NewMemory(rl.Limit, rl.Window), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: rl.RedisAddr})
	limiter := ratelimit.NewRedis(client, rl.KeyPrefix, rl.Limit, rl.Window)

	pctx, cancel := context.WithTimeout(ctx, cfg.Store.Timeout)
	defer cancel()
	if err := limiter.Ping(pctx); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	slog.Info("redis rate limiter enabled", "addr", rl.RedisAddr, "limit", rl.Limit, "window", rl.Window)

	return limiter, func() { _ = client.Close() }, nil
}

func toICE(in []config.ICEServer) []ice.Server {
	out := make([]ice.Server, 0, len(in))
	for _, s := range in {
		out = append(out, ice.Server{URLs: s.URLs, Username: s.Username, Credential: s.Credential})
	}
	return out
}
