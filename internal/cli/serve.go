package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Mofasaz/aegisai-web/internal/server"
	"github.com/Mofasaz/aegisai-web/internal/tracing"
)

var (
	serveAddr     string
	serveGRPCAddr string
	serveRules    string
	serveNoWatch  bool
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address (overrides server.addr)")
	serveCmd.Flags().StringVar(&serveGRPCAddr, "grpc-addr", "", "gRPC listen address (overrides server.grpc_addr)")
	serveCmd.Flags().StringVar(&serveRules, "rules", "", "Path to rules YAML (overrides rules.path)")
	serveCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "Disable hot-reload of the rules file")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC servers",
	Long: "Runs the JSON API and the gRPC Analyzer with health checks.\n" +
		"The rules file is watched and hot-reloaded; a broken edit keeps the\n" +
		"previous rules active.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if serveGRPCAddr != "" {
		cfg.Server.GRPCAddr = serveGRPCAddr
	}
	if serveRules != "" {
		cfg.Rules.Path = serveRules
	}
	if serveNoWatch {
		cfg.Rules.Watch = false
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, logger.Named("tracing"))
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}

	a, err := newApp(ctx, cfg, logger, appOptions{audit: true, sinks: true})
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.NewRouter(a.engine, cfg.Server, logger.Named("http")),
		ReadHeaderTimeout: 5 * time.Second,
	}
	var grpcSrv *server.GRPC
	if cfg.Server.GRPCAddr != "" {
		grpcSrv = server.NewGRPC(a.engine, logger.Named("grpc"))
		grpcSrv.MarkReady()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.Server.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if grpcSrv != nil {
		g.Go(func() error {
			logger.Info("grpc server listening", zap.String("addr", cfg.Server.GRPCAddr))
			return grpcSrv.Serve(cfg.Server.GRPCAddr)
		})
	}
	if cfg.Rules.Watch {
		reloader, err := server.NewReloader(a.engine, cfg.Rules.Path, cfg.Rules.Debounce, logger.Named("reload"))
		if err != nil {
			logger.Warn("hot-reload disabled", zap.Error(err))
		} else {
			g.Go(func() error { return reloader.Run(gctx) })
		}
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if grpcSrv != nil {
			grpcSrv.GracefulStop()
		}
		return httpSrv.Shutdown(sctx)
	})

	runErr := g.Wait()

	cctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.Close(cctx); err != nil {
		logger.Warn("closing resources", zap.Error(err))
	}
	if err := shutdownTracing(cctx); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
	return runErr
}
