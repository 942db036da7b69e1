// cmd/discord/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keshon/switchboard/internal/commands"
	"github.com/keshon/switchboard/internal/config"
	"github.com/keshon/switchboard/internal/discord"
	"github.com/keshon/switchboard/internal/middleware"
	"github.com/keshon/switchboard/pkg/dispatch"
	"github.com/keshon/switchboard/pkg/jobmgr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const appName = "switchboard"

func main() {
	log.Printf("[INFO] Starting %v bot...", appName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.New()
	if err != nil {
		log.Fatal("[ERR] ", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	client, err := discord.New(cfg.DiscordToken, discord.Options{
		GuildIDs:  cfg.GuildIDs,
		CachePath: cfg.CommandCachePath,
	})
	if err != nil {
		log.Fatal("[ERR] ", err)
	}
	defer client.Close()

	engine, err := dispatch.New(client, dispatch.Config{
		BindingTTL:    cfg.BindingTTL,
		ReapInterval:  cfg.BindingReapInterval,
		MaxChainDepth: cfg.MaxChainDepth,
		MaxConcurrent: cfg.MaxConcurrent,
		Middleware:    []dispatch.Middleware{middleware.WithCommandLogger()},
		Registerer:    reg,
	})
	if err != nil {
		log.Fatal("[ERR] ", err)
	}
	if err := commands.Register(engine); err != nil {
		log.Fatal("[ERR] ", err)
	}

	jobs := jobmgr.NewManager(func(s string) { log.Println("[DEBUG] job", s) })
	defer jobs.StopAll()
	if cfg.MetricsAddr != "" {
		if err := jobs.StartAsync(ctx, "metrics", func(ctx context.Context) error {
			return serveMetrics(ctx, cfg.MetricsAddr, reg)
		}); err != nil {
			log.Fatal("[ERR] ", err)
		}
	}

	if err := client.Open(); err != nil {
		log.Fatal("[ERR] ", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := engine.Run(ctx); err != nil {
			errCh <- err
		}
		close(errCh)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		log.Printf("[INFO] Received signal %s, shutting down...\n", s)
		cancel()
	case err := <-errCh:
		if err != nil {
			log.Println("[ERR] Discord bot error:", err)
		}
		cancel()
	case <-ctx.Done():
	}

	// let Run drain in-flight dispatches
	<-errCh
	log.Println("[INFO] Discord bot exited cleanly")
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("[INFO] Serving metrics on %s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
