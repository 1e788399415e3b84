package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/park285/Cheese-Arena/internal/advisor"
	"github.com/park285/Cheese-Arena/internal/chessrules"
	appcfg "github.com/park285/Cheese-Arena/internal/config"
	"github.com/park285/Cheese-Arena/internal/msgcat"
	"github.com/park285/Cheese-Arena/internal/obslog"
	"github.com/park285/Cheese-Arena/internal/room"
	"github.com/park285/Cheese-Arena/internal/store"
	"github.com/park285/Cheese-Arena/internal/transport/httpapi"
	"github.com/park285/Cheese-Arena/internal/transport/ws"
)

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		_, _ = os.Stderr.WriteString("logger init error: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	if err := run(logger); err != nil {
		logger.Error("arena_exit", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(logger *zap.Logger) error {
	cfg, err := appcfg.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	opts := []room.Option{
		room.WithLogger(logger),
		room.WithConfig(room.Config{
			DefaultTimeControl: cfg.DefaultTimeControl,
			DisconnectGrace:    cfg.DisconnectGrace,
			BotThinkDelay:      cfg.BotThinkDelay,
			BotMoveTimeout:     cfg.BotMoveTimeout,
			DefaultDifficulty:  cfg.BotDefaultLevel,
			RecordTimeout:      room.DefaultConfig().RecordTimeout,
			FormingTTL:         cfg.FormingTTL,
		}),
	}
	var adv room.Advisor
	if cfg.StockfishPath != "" {
		sf, err := advisor.NewStockfish(cfg.StockfishPath, logger)
		if err != nil {
			logger.Warn("stockfish_unavailable", zap.String("path", cfg.StockfishPath), zap.Error(err))
		} else {
			defer func() { _ = sf.Close() }()
			adv = sf
		}
	}
	if cfg.OpeningBookPath != "" {
		book, err := advisor.LoadBook(cfg.OpeningBookPath)
		if err != nil {
			logger.Warn("opening_book_unavailable", zap.String("path", cfg.OpeningBookPath), zap.Error(err))
		} else {
			adv = advisor.NewBooked(book, adv, cfg.BookPlies, logger)
		}
	}
	if adv != nil {
		opts = append(opts, room.WithAdvisor(adv))
	}

	hub := ws.NewHub(logger)
	rooms := room.NewManager(chessrules.NewEngine(), st.recorder, hub, opts...)
	defer rooms.Close()
	queue := room.NewMatchQueue(rooms, hub)
	rooms.StartTicker(ctx, cfg.TickInterval)

	msgs, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return err
	}
	wsSrv := ws.NewServer(hub, rooms, queue, msgs, logger, ws.Options{OriginPatterns: cfg.AllowedOrigins})

	deps := httpapi.Deps{
		Rooms:       rooms,
		WS:          wsSrv,
		Connections: hub.Len,
		Archive:     st.archive,
		Logger:      logger,
	}
	if st.redis != nil {
		deps.Feed = st.redis
		deps.Visitors = st.redis
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httpapi.NewRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("arena_listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	logger.Info("arena_shutdown", zap.Int("rooms", rooms.RoomCount()), zap.Int("connections", hub.Len()))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	hub.CloseAll()
	return err
}

// stores holds whatever persistence is configured. Every field may be absent
// except recorder and archive, which fall back to memory.
type stores struct {
	recorder room.GameRecorder
	archive  store.Archive
	redis    *store.Redis
	closers  []func() error
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}

func openStores(ctx context.Context, cfg *appcfg.AppConfig, logger *zap.Logger) (*stores, error) {
	st := &stores{}

	if cfg.RedisURL != "" {
		rdb, err := store.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		st.redis = rdb
		st.closers = append(st.closers, rdb.Close)
	}

	var primary room.GameRecorder
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			st.close()
			return nil, err
		}
		st.closers = append(st.closers, pg.Close)
		if err := pg.EnsureSchema(ctx); err != nil {
			st.close()
			return nil, err
		}
		st.archive = pg
		primary = pg
		if st.redis != nil {
			rr := store.NewRetryRecorder(pg, st.redis, logger)
			rr.StartReconciler(ctx, cfg.ReconcileInterval)
			primary = rr
		}
	} else {
		mem := store.NewMemory()
		logger.Warn("database_not_configured", zap.String("archive", "memory"))
		st.archive = mem
		primary = mem
	}

	fan := store.Fanout{primary}
	if st.redis != nil {
		fan = append(fan, st.redis)
	}
	st.recorder = fan
	return st, nil
}
