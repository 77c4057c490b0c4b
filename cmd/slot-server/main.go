package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/edirooss/slot-server/internal/config"
	"github.com/edirooss/slot-server/internal/domain/event"
	"github.com/edirooss/slot-server/internal/http/admin"
	"github.com/edirooss/slot-server/internal/redis"
	"github.com/edirooss/slot-server/internal/server"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Read env
	isDev := os.Getenv("ENV") == "dev"

	configPath, port := parseFlags()

	// Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if port != 0 {
		cfg.Port = port
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "invalid -port: %v\n", err)
			os.Exit(1)
		}
	}

	// Create Zap logger
	log := buildLogger(isDev)
	defer log.Sync()
	log = log.Named("main")

	if isDev {
		log.Debug("effective config\n" + spew.Sdump(cfg))
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	// Session events (optional)
	var publisher event.Publisher = event.Nop{}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(ctx, cfg.RedisAddr, cfg.RedisDB, log)
		defer rdb.Close()

		evpub := redis.NewEventPublisher(log, rdb.Client, cfg.EventsChannel, cfg.EventsQueueSize)
		publisher = evpub
		g.Go(func() error { return evpub.Run(ctx) })
	}

	// Session server
	srv := server.New(log, server.Options{
		MaxClients:     cfg.MaxClients,
		ReadBufferSize: cfg.ReadBufferSize,
	}, publisher)
	g.Go(func() error {
		if err := srv.ListenAndServe(cfg.TCPAddr()); err != nil && !errors.Is(err, server.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		return srv.Close()
	})

	// Admin API (optional)
	if cfg.AdminAddr != "" {
		httpsrv := admin.NewHTTPServer(cfg.AdminAddr, admin.NewRouter(log, srv, isDev))
		g.Go(func() error {
			log.Info("running admin HTTP server", zap.String("addr", httpsrv.Addr))
			if err := httpsrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin http: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpsrv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
	log.Info("server closed")
}

// parseFlags handles -v/--version (prints build metadata and exits),
// -config and -port. A zero port means "use the config file".
func parseFlags() (configPath string, port int) {
	v := flag.Bool("v", false, "print version and exit")
	flag.BoolVar(v, "version", false, "print version and exit")
	flag.StringVar(&configPath, "config", config.DefaultPath, "path to YAML config file")
	flag.IntVar(&port, "port", 0, "TCP port to listen on (overrides config)")
	flag.Parse()

	if *v {
		fmt.Printf("slot-server %s (commit %s, built %s)\n", config.Version, config.GitCommit, config.BuildDate)
		os.Exit(0)
	}
	return configPath, port
}

// helpers

func buildLogger(isDev bool) *zap.Logger {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.EncoderConfig.TimeKey = ""
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.DisableStacktrace = true
	logConfig.DisableCaller = true
	if isDev {
		logConfig.Level.SetLevel(zap.DebugLevel)
	} else {
		logConfig.Level.SetLevel(zap.InfoLevel)
	}
	return zap.Must(logConfig.Build())
}
