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

	"github.com/robfig/cron/v3"

	"athand/internal/aladhan"
	"athand/internal/config"
	appLog "athand/internal/log"
	"athand/internal/scheduler"
	"athand/internal/web"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
	debug      bool
}

func main() {
	appLog.Info("athand starting", "version", "0.1.0")

	flags := parseFlags()

	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"address", conf.Address,
		"timezone", conf.Timezone,
		"method", conf.Method,
		"school", conf.School,
		"refresh", conf.RefreshCron,
		"once", flags.once,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	client := aladhan.NewClient(conf.APIBaseURL, conf.Method, conf.School)

	// The address is re-read from the config file at the start of every
	// fetch cycle so an edit takes effect without restarting the daemon.
	addressFn := func() string {
		c, lerr := config.Load(flags.configPath)
		if lerr != nil {
			appLog.Error("config reload failed; keeping previous address", lerr)
			return conf.Address
		}
		return c.Address
	}

	sched := scheduler.New(client, addressFn)

	if flags.once {
		runOnce(ctx, sched, conf)
		return
	}

	sched.Start(ctx)
	defer sched.Stop()

	// Safety refresh: the loop normally rearms itself at each event
	// boundary, but a failed or exhausted cycle goes dormant. The cron job
	// re-triggers it so the daemon recovers without manual intervention.
	cr := cron.New()
	if _, err := cr.AddFunc(conf.RefreshCron, sched.Refresh); err != nil {
		appLog.Error("invalid refresh cron expression", err, "refresh", conf.RefreshCron)
		os.Exit(1)
	}
	cr.Start()
	defer cr.Stop()

	srv := &http.Server{
		Addr:    conf.Listen,
		Handler: web.NewServer(conf, sched).Handler(),
	}

	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		if serr := srv.ListenAndServe(); serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			appLog.Error("HTTP server failed", serr)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		appLog.Error("HTTP server shutdown failed", serr)
	}

	appLog.Info("athand exiting")
}

// runOnce performs a single fetch+assemble cycle and prints the timeline.
func runOnce(ctx context.Context, sched *scheduler.Service, conf *config.Config) {
	tl, err := sched.RunOnce(ctx)
	if err != nil {
		appLog.Error("cycle failed", err)
		os.Exit(1)
	}

	loc := time.Local
	if conf.Timezone != "" {
		if l, lerr := time.LoadLocation(conf.Timezone); lerr == nil {
			loc = l
		}
	}

	for i, ev := range tl.Events {
		marker := " "
		if i == tl.CurrentIndex {
			marker = ">"
		}
		fmt.Printf("%s %-10s %s\n", marker, ev.Kind, ev.Time.In(loc).Format(time.RFC3339))
	}
	if _, ok := tl.Current(); !ok {
		fmt.Println("no upcoming event in the fetched window")
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/athand/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one fetch+assemble cycle, print the timeline, and exit")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}
