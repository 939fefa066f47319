package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/elonfeng/shelfradar/internal/config"
	"github.com/elonfeng/shelfradar/internal/logging"
	"github.com/elonfeng/shelfradar/pkg/discovery"
	"github.com/elonfeng/shelfradar/pkg/popularity"
	"github.com/elonfeng/shelfradar/pkg/server"
	"github.com/goccy/go-json"
	"github.com/samber/do/v2"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	return cfg, nil
}

// withContainer loads config, builds the container, runs fn and shuts every
// service down afterwards.
func withContainer(fn func(i *do.RootScope, cfg *config.Config) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	injector := newContainer(cfg)
	defer func() {
		if errs := injector.Shutdown(); errs != nil {
			logging.Error().Msgf("shutdown error: %v", errs)
		}
	}()

	return fn(injector, cfg)
}

func runServe(port int) error {
	return withContainer(func(i *do.RootScope, cfg *config.Config) error {
		if port != 0 {
			cfg.Server.Port = port
		}
		srv, err := do.Invoke[*server.Server](i)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return srv.ListenAndServe(ctx)
	})
}

func runDaemon(port int) error {
	return withContainer(func(i *do.RootScope, cfg *config.Config) error {
		if port != 0 {
			cfg.Server.Port = port
		}
		sched, err := do.Invoke[*schedulerHandle](i)
		if err != nil {
			return err
		}
		srv, err := do.Invoke[*server.Server](i)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		sched.Start()
		err = srv.ListenAndServe(ctx)
		logging.Info().Msg("shutting down")
		return err
	})
}

func runRecompute(window int) error {
	return withContainer(func(i *do.RootScope, cfg *config.Config) error {
		scorer, err := do.Invoke[*popularity.Scorer](i)
		if err != nil {
			return err
		}

		run, err := scorer.Recompute(context.Background(), window)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "scored %d books over %d days (run %s)\n",
			run.BooksScored, run.WindowDays, run.ID)
		return nil
	})
}

func runDiscover(view string, userID int64, limit int, jsonOutput bool) error {
	return withContainer(func(i *do.RootScope, cfg *config.Config) error {
		svc, err := do.Invoke[*discovery.Service](i)
		if err != nil {
			return err
		}
		if limit <= 0 {
			limit = cfg.Discovery.DefaultLimit
		}
		limit = min(limit, cfg.Discovery.MaxLimit)

		page, err := svc.Discover(context.Background(), view, userID, limit)
		if err != nil {
			return err
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(page)
		}

		if len(page.Books) == 0 {
			fmt.Printf("no books found for view %q\n", view)
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPOPULARITY\tAUTHOR\tTITLE")
		for _, b := range page.Books {
			fmt.Fprintf(w, "%d\t%.2f\t%d\t%s\n", b.ID, b.PopularityScore, b.AuthorID, b.Title)
		}
		if page.Underfilled {
			fmt.Fprintf(w, "\n%d of %d requested\n", len(page.Books), page.Requested)
		}
		return w.Flush()
	})
}

func runReimportance() error {
	return withContainer(func(i *do.RootScope, cfg *config.Config) error {
		db, err := do.Invoke[*storeHandle](i)
		if err != nil {
			return err
		}
		n, err := db.RecomputeImportance(context.Background())
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "updated importance on %d assignments\n", n)
		return nil
	})
}
