package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/atelier/internal/health"
	"github.com/dyluth/atelier/internal/printer"
	"github.com/dyluth/atelier/internal/watch"
	"github.com/dyluth/atelier/pkg/catalog"
	"github.com/spf13/cobra"
)

var (
	watchOutputFormat string
	watchHealthAddr   string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream catalog changes and keep the template cache fresh",
	Long: `Subscribe to catalog change events and invalidate cached templates as
they are upserted, deleted or reset. Each event is printed as it arrives.

Needs a redis catalog. Stop with Ctrl-C.

Output Formats:
  default - Human-readable lines with emojis
  json    - Line-delimited JSON for programmatic processing

Examples:
  atelier watch
  atelier watch -o json > events.jsonl
  atelier watch --health-addr :8080`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var catalogResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Tell every watcher to drop its cached templates",
	Args:  cobra.NoArgs,
	RunE:  runCatalogReset,
}

func init() {
	watchCmd.Flags().StringVarP(&watchOutputFormat, "output", "o", "default", "Output format (default or json)")
	watchCmd.Flags().StringVar(&watchHealthAddr, "health-addr", "", "Serve GET /healthz on this address (disabled when empty)")
	rootCmd.AddCommand(watchCmd)
	catalogCmd.AddCommand(catalogResetCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if watchOutputFormat != "default" && watchOutputFormat != "json" {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", watchOutputFormat),
			[]string{"Valid formats: default, json"},
		)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx, true)
	if err != nil {
		return err
	}
	defer s.Close()

	if s.redis == nil {
		return printer.Error(
			"watch needs a redis catalog",
			fmt.Sprintf("catalog.source is %q; only redis publishes change events", s.cfg.Catalog.Source),
			nil,
		)
	}

	sub, err := s.redis.SubscribeCatalogEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Close()

	go func() {
		for err := range sub.Errors() {
			s.logger.Warn("catalog event skipped", "error", err.Error())
		}
	}()

	if watchHealthAddr != "" {
		hs := health.NewServer(s.redis, s.pipeline.Loader, s.logger)
		hs.Start(watchHealthAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			hs.Shutdown(shutdownCtx)
		}()
	}

	printer.Info("Watching catalog %s (Ctrl-C to stop)\n", s.cfg.Tenant)

	err = watch.InvalidateOnChange(ctx, sub, s.pipeline.Loader, eventPrinter(watchOutputFormat))
	if err == context.Canceled {
		return nil
	}
	return err
}

// eventPrinter renders each handled event in the selected format.
func eventPrinter(format string) watch.Handler {
	if format == "json" {
		enc := json.NewEncoder(printer.Stdout())
		return func(ev catalog.Event, removed int) {
			_ = enc.Encode(struct {
				catalog.Event
				Invalidated int `json:"invalidated"`
			}{ev, removed})
		}
	}
	return func(ev catalog.Event, removed int) {
		printer.Println(watch.FormatEvent(ev))
	}
}

func runCatalogReset(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()

	if s.redis == nil {
		return printer.Error("reset needs a redis catalog", fmt.Sprintf("catalog.source is %q", s.cfg.Catalog.Source), nil)
	}
	if err := s.redis.PublishReset(ctx); err != nil {
		return err
	}
	printer.Success("Reset published to %s\n", s.cfg.Tenant)
	return nil
}
