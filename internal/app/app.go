// Package app 负责应用级编排：加载配置→初始化依赖→启动做市引擎与 ops 服务。
package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"makerd/internal/api"
	"makerd/internal/config"
	"makerd/internal/engine"
	"makerd/internal/gateway/binance"
	"makerd/internal/gateway/notifier"
	"makerd/internal/logger"
	"makerd/internal/store/gormstore"
	"makerd/internal/store/journal"
)

type App struct {
	cfg     *config.Config
	fleet   *engine.Fleet
	opsHTTP *api.Server
	symbols *config.SymbolsLoader
	store   *gormstore.GormStore
	journal *journal.Journal
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)

	venue, err := binance.New(cfg.Venue)
	if err != nil {
		return nil, fmt.Errorf("venue adapter: %w", err)
	}

	store, err := gormstore.New(cfg.Store.StatePath)
	if err != nil {
		return nil, fmt.Errorf("state store: %w", err)
	}
	jnl, err := journal.Open(cfg.Store.JournalPath)
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}

	var notify notifier.Notifier = notifier.Nop{}
	if cfg.Notify.Telegram.Enabled {
		notify = notifier.NewTelegram(cfg.Notify.Telegram.BotToken, cfg.Notify.Telegram.ChatID)
	}

	symbols, err := config.NewSymbolsLoader(cfg.Symbols.Path)
	if err != nil {
		return nil, fmt.Errorf("symbols: %w", err)
	}

	fleet := engine.NewFleet(cfg.Engine, cfg.Venue, venue, store, jnl, notify)

	opsHTTP, err := api.NewServer(api.ServerConfig{
		Addr:    cfg.App.HTTPAddr,
		Fleet:   fleet,
		Journal: jnl,
	})
	if err != nil {
		return nil, fmt.Errorf("ops http: %w", err)
	}

	return &App{
		cfg:     cfg,
		fleet:   fleet,
		opsHTTP: opsHTTP,
		symbols: symbols,
		store:   store,
		journal: jnl,
	}, nil
}

// Run 启动引擎与 HTTP 服务，直到收到终止信号。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer a.journal.Close()

	initial := a.symbols.Snapshot()
	if len(initial) == 0 {
		return fmt.Errorf("no symbols configured in %s", a.cfg.Symbols.Path)
	}
	a.symbols.Subscribe(func(fresh []config.SymbolConfig) {
		a.fleet.Apply(fresh)
	})

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.opsHTTP.Start(ctx); err != nil {
			return fmt.Errorf("ops http server error: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		return a.fleet.Run(ctx, initial)
	})

	logger.Infof("✓ makerd started（symbols=%d，http=%s）", len(initial), a.opsHTTP.Addr())
	return group.Wait()
}
