package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aretw0/tendril"
	"github.com/aretw0/tendril/internal/logging"
	"github.com/aretw0/tendril/internal/presentation/tui"
	httpAdapter "github.com/aretw0/tendril/pkg/adapters/http"
	loamAdapter "github.com/aretw0/tendril/pkg/adapters/loam"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the conversation worker",
	Long: `Starts the JSON API and a worker consuming conv.work events. Conversations
left pending by a previous process are resumed at startup. When agents_dir is
set its agents are imported first and, with --watch, re-imported on change.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.HTTP.Addr = addr
		}
		level, err := cfg.Level()
		if err != nil {
			return err
		}
		logger := logging.NewJSON(level)

		if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet {
			tui.PrintBanner(os.Stderr)
		}

		eng, err := tendril.New(cfg, tendril.WithLogger(logger))
		if err != nil {
			return err
		}
		defer eng.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var lib *loamAdapter.Library
		if cfg.AgentsDir != "" {
			lib, err = loamAdapter.Open(cfg.AgentsDir, loamAdapter.WithLogger(logger))
			if err != nil {
				return err
			}
			if _, err := lib.Import(ctx, eng.Store.Agents); err != nil {
				return err
			}
		}

		g, gctx := errgroup.WithContext(ctx)
		if err := eng.Start(gctx); err != nil {
			return err
		}

		handler := httpAdapter.NewHandler(eng.Convs, eng.Store.Agents,
			httpAdapter.WithLogger(logger),
			httpAdapter.WithHub(eng.Hub),
			httpAdapter.WithGatherer(eng.Registry),
		)
		srv := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		g.Go(func() error {
			logger.Info("Starting Tendril Server", "addr", srv.Addr, "store", cfg.Store.Driver, "hub", cfg.Hub.Driver)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		g.Go(func() error {
			eng.Worker.Wait()
			return nil
		})
		if watch, _ := cmd.Flags().GetBool("watch"); watch && lib != nil {
			g.Go(func() error {
				return lib.WatchAndImport(gctx, eng.Store.Agents)
			})
		}

		err = g.Wait()
		logger.Info("Tendril Server stopped")
		return err
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (overrides http.addr)")
	serveCmd.Flags().Bool("watch", false, "Re-import agents_dir when its files change")
	serveCmd.Flags().Bool("quiet", false, "Do not print the banner")
}
