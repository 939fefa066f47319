package main

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/elonfeng/shelfradar/internal/config"
	"github.com/elonfeng/shelfradar/internal/logging"
	"github.com/elonfeng/shelfradar/internal/scheduler"
	"github.com/elonfeng/shelfradar/internal/store"
	"github.com/elonfeng/shelfradar/pkg/discovery"
	"github.com/elonfeng/shelfradar/pkg/notify"
	"github.com/elonfeng/shelfradar/pkg/popularity"
	"github.com/elonfeng/shelfradar/pkg/server"
	"github.com/samber/do/v2"
)

// newContainer registers every provider. Services are built lazily on first
// invoke.
func newContainer(cfg *config.Config) *do.RootScope {
	i := do.New()
	do.ProvideValue(i, cfg)
	do.ProvideValue(i, clock.New())
	do.Provide(i, provideStore)
	do.Provide(i, provideScorer)
	do.Provide(i, provideDiscovery)
	do.Provide(i, provideNotifier)
	do.Provide(i, provideScheduler)
	do.Provide(i, provideServer)
	return i
}

// storeHandle wraps the store with shutdown capability.
type storeHandle struct {
	*store.SQLStore
}

// Shutdown implements do.Shutdownable.
func (h *storeHandle) Shutdown() error {
	return h.Close()
}

func provideStore(i do.Injector) (*storeHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)

	db, err := store.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	logging.Info().Str("driver", cfg.Database.Driver).Msg("database initialized")
	return &storeHandle{SQLStore: db}, nil
}

func provideScorer(i do.Injector) (*popularity.Scorer, error) {
	cfg := do.MustInvoke[*config.Config](i)
	db := do.MustInvoke[*storeHandle](i)
	clk := do.MustInvoke[clock.Clock](i)
	return popularity.NewScorer(db.SQLStore, clk, cfg.Popularity.WindowDays), nil
}

func provideDiscovery(i do.Injector) (*discovery.Service, error) {
	cfg := do.MustInvoke[*config.Config](i)
	db := do.MustInvoke[*storeHandle](i)
	clk := do.MustInvoke[clock.Clock](i)
	return discovery.NewService(db.SQLStore, discovery.FilterOptions{
		BackfillPasses: cfg.Discovery.BackfillPasses,
		Overfetch:      cfg.Discovery.Overfetch,
		Clock:          clk,
	}), nil
}

func provideNotifier(i do.Injector) (*notify.Manager, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return buildNotifyManager(cfg.Notify), nil
}

func buildNotifyManager(cfg config.NotifyConfig) *notify.Manager {
	var notifiers []notify.Notifier

	if cfg.Slack.Enabled && cfg.Slack.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewSlack(cfg.Slack.WebhookURL))
	}
	if cfg.Discord.Enabled && cfg.Discord.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewDiscord(cfg.Discord.WebhookURL))
	}
	if cfg.Webhook.Enabled && cfg.Webhook.URL != "" {
		notifiers = append(notifiers, notify.NewWebhook(cfg.Webhook.URL, cfg.Webhook.Secret))
	}
	return notify.NewManager(notifiers...)
}

// schedulerHandle owns the process-wide scheduler and its run context.
type schedulerHandle struct {
	*scheduler.Scheduler
	cancel context.CancelFunc
}

// Start arms the scheduler with a context that lives until Shutdown.
func (h *schedulerHandle) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.StartAll(ctx)
}

// Shutdown implements do.Shutdownable.
func (h *schedulerHandle) Shutdown() error {
	h.StopAll()
	if h.cancel != nil {
		h.cancel()
	}
	h.Wait()
	return nil
}

func provideScheduler(i do.Injector) (*schedulerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	scorer := do.MustInvoke[*popularity.Scorer](i)
	notifier := do.MustInvoke[*notify.Manager](i)
	clk := do.MustInvoke[clock.Clock](i)

	sched, err := scheduler.New(scorer, scheduler.Options{
		Spec:           cfg.Popularity.Schedule,
		WindowDays:     cfg.Popularity.WindowDays,
		Clock:          clk,
		Notifier:       notifier,
		SkipStartupRun: !cfg.Popularity.RunOnStart,
	})
	if err != nil {
		return nil, err
	}
	return &schedulerHandle{Scheduler: sched}, nil
}

func provideServer(i do.Injector) (*server.Server, error) {
	cfg := do.MustInvoke[*config.Config](i)
	db := do.MustInvoke[*storeHandle](i)
	svc := do.MustInvoke[*discovery.Service](i)
	scorer := do.MustInvoke[*popularity.Scorer](i)

	return server.New(db.SQLStore, svc, scorer, server.Options{
		Port:               cfg.Server.Port,
		DefaultLimit:       cfg.Discovery.DefaultLimit,
		MaxLimit:           cfg.Discovery.MaxLimit,
		RecomputePerMinute: cfg.Server.RecomputePerMinute,
	}), nil
}
