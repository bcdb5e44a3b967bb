package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"offlinepos/client/internal/config"
	"offlinepos/client/internal/gateway"
	"offlinepos/client/internal/httpapi"
	"offlinepos/client/internal/logger"
	"offlinepos/client/internal/notify"
	"offlinepos/client/internal/service"
	"offlinepos/client/internal/session"
	"offlinepos/client/internal/store"
	"offlinepos/client/internal/store/memory"
	"offlinepos/client/internal/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}

	lg, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: cfg.LogOutput})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}

	os.Exit(finish(lg, run(cfg, lg)))
}

// finish logs the outcome of run and flushes the logger before main exits.
func finish(lg *zap.Logger, err error) int {
	code := 0
	if err != nil {
		lg.Error("posclient stopped with error", zap.Error(err))
		code = 1
	}
	_ = lg.Sync()
	return code
}

func run(cfg config.Config, lg *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 2)
	defer func() {
		for _, closeFn := range closers {
			if err := closeFn(); err != nil {
				lg.Warn("close error", zap.Error(err))
			}
		}
	}()

	repo, err := openRepository(ctx, cfg.DatabasePath, lg)
	if err != nil {
		return err
	}
	closers = append(closers, repo.Close)

	sessions, err := session.NewManager(cfg.SessionPath)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	remote := gateway.New(cfg.BackendURL, cfg.HTTPTimeout, sessions, gateway.WithLogger(lg))
	notifier := buildNotifier(ctx, cfg, lg, &closers)

	svc := service.New(repo, remote, sessions,
		service.WithNotifier(notifier),
		service.WithLogger(lg),
	)

	pin, err := httpapi.NewManagerPIN(cfg.ManagerPIN)
	if err != nil {
		return err
	}
	if !pin.Enabled() {
		lg.Info("manager pin not set, discarding pending sales is disabled")
	}
	api := httpapi.New(svc, sessions, pin, cfg.AllowedOrigin, lg)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Drain and refresh wait on the backend.
		WriteTimeout: cfg.HTTPTimeout*2 + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.AutoSyncEnabled() {
		go svc.RunAutoSync(runCtx, cfg.AutoSyncInterval)
		lg.Info("auto sync enabled", zap.Duration("interval", cfg.AutoSyncInterval))
	}

	serveErr := make(chan error, 1)
	go func() {
		lg.Info("POS client listening", zap.String("addr", cfg.ListenAddr), zap.String("backend", cfg.BackendURL))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-runCtx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		lg.Warn("shutdown error", zap.Error(err))
	}
	lg.Info("POS client stopped")
	return nil
}

// openRepository opens the SQLite file at path. The special path ":memory:"
// selects an in-process store whose queue is lost on exit.
func openRepository(ctx context.Context, path string, lg *zap.Logger) (store.Repository, error) {
	if path == config.MemoryDatabase {
		lg.Warn("repository: in-memory, pending sales are lost on exit")
		return memory.New(), nil
	}
	repo, err := sqlite.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open local database: %w", err)
	}
	lg.Info("repository: sqlite", zap.String("path", path))
	return repo, nil
}

// buildNotifier always logs signals and also publishes them to Redis when an
// address is configured and reachable.
func buildNotifier(ctx context.Context, cfg config.Config, lg *zap.Logger, closers *[]func() error) notify.Notifier {
	logSink := notify.NewLog(lg)
	if cfg.RedisAddr == "" {
		lg.Info("signals: log")
		return logSink
	}
	pub := notify.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisChannel, lg)
	if err := pub.Ping(ctx); err != nil {
		lg.Warn("redis unavailable, signals are logged only", zap.Error(err))
		_ = pub.Close()
		return logSink
	}
	*closers = append(*closers, pub.Close)
	lg.Info("signals: log + redis", zap.String("channel", pub.Channel()))
	return notify.Multi{logSink, pub}
}

func validateSecurityConfig(cfg config.Config) error {
	if cfg.ManagerPIN == "" {
		return nil
	}
	if len(cfg.ManagerPIN) < 6 {
		return fmt.Errorf("POS_MANAGER_PIN must be at least 6 digits")
	}
	for _, r := range cfg.ManagerPIN {
		if r < '0' || r > '9' {
			return fmt.Errorf("POS_MANAGER_PIN must contain digits only")
		}
	}
	if err := validatePINStrength(cfg.ManagerPIN); err != nil {
		return fmt.Errorf("POS_MANAGER_PIN is too weak: %w", err)
	}
	return nil
}

// validatePINStrength rejects PINs that are all the same digit,
// sequential (ascending or descending), or from a known-weak list.
func validatePINStrength(pin string) error {
	known := map[string]bool{
		"123456": true, "654321": true, "000000": true, "121212": true,
		"112233": true, "123123": true, "101010": true, "696969": true,
	}
	if known[pin] {
		return fmt.Errorf("common PIN not allowed")
	}

	allSame := true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("all-same-digit PIN not allowed")
	}

	ascending, descending := true, true
	for i := 1; i < len(pin); i++ {
		diff := int(pin[i]) - int(pin[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return fmt.Errorf("sequential PIN not allowed")
	}
	return nil
}
