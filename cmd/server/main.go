package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/noahxzhu/discord-scheduler/internal/bot"
	"github.com/noahxzhu/discord-scheduler/internal/config"
	"github.com/noahxzhu/discord-scheduler/internal/discord"
	"github.com/noahxzhu/discord-scheduler/internal/model"
	"github.com/noahxzhu/discord-scheduler/internal/pushover"
	"github.com/noahxzhu/discord-scheduler/internal/queue"
	"github.com/noahxzhu/discord-scheduler/internal/sink"
	"github.com/noahxzhu/discord-scheduler/internal/storage"
	"github.com/noahxzhu/discord-scheduler/internal/web"
	"github.com/noahxzhu/discord-scheduler/internal/worker"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the config file")
	flag.Parse()

	// Bootstrap logger until the config says otherwise
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	// Load Config
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(os.Stdout, cfg.Logging))

	// Init Storage
	store, err := storage.Open(cfg.Storage)
	if err != nil {
		slog.Error("Failed to open storage", "backend", cfg.Storage.Backend, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	announcements := queue.New(cfg.Announcer.Name, store)
	reminders := queue.New(cfg.Reminders.Name, store)
	for _, q := range []*queue.Queue{announcements, reminders} {
		if err := q.Load(); err != nil {
			slog.Error("Failed to load queue", "queue", q.Name(), "error", err)
			os.Exit(1)
		}
		slog.Info("Queue loaded", "queue", q.Name(), "pending", q.Len())
	}

	// Init Sinks
	mux := sink.NewMux()
	var session *discord.Session
	if cfg.Discord.Token != "" {
		session, err = discord.NewSession(cfg.Discord.Token)
		if err != nil {
			slog.Error("Failed to init discord", "error", err)
			os.Exit(1)
		}
		ds := discord.NewSink(session)
		mux.Handle(model.KindChannel, ds)
		mux.Handle(model.KindUser, ds)

		router := bot.NewRouter(cfg.Discord.CommandPrefix, session)
		bot.NewAnnouncer(announcements, cfg.Schedule.Location(), cfg.Schedule.TimeLayout).Register(router)
		bot.NewRemindMe(reminders, cfg.Discord.CommandPrefix).Register(router)
		session.AddHandler(router.OnMessageCreate(session))

		if err := session.Open(); err != nil {
			slog.Error("Failed to connect to discord", "error", err)
			os.Exit(1)
		}
		defer session.Close()
		slog.Info("Connected to discord")
	} else {
		slog.Warn("discord.token is not set, channel and user deliveries will fail")
	}
	if cfg.Pushover.Token != "" {
		mux.Handle(model.KindPushover, pushover.NewClient(cfg.Pushover.Token, cfg.Pushover.APIURL))
	}

	// Start Workers
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for _, qc := range []struct {
		q      *queue.Queue
		period time.Duration
	}{
		{announcements, cfg.Announcer.TickPeriod},
		{reminders, cfg.Reminders.TickPeriod},
	} {
		w := worker.NewWorker(qc.q, mux, qc.period, cfg.Worker.DeliveryTimeout)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Start(ctx); err != nil {
				slog.Error("Worker failed", "queue", qc.q.Name(), "error", err)
			}
		}()
	}

	// Init Web Server
	srv := web.NewServer(cfg.Server.APIToken, announcements, reminders)
	httpServer := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Starting server", "port", cfg.Server.Port, "auth", cfg.Server.APIToken != "")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	wg.Wait()
	slog.Info("Server exited")
}

func newLogger(w io.Writer, cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
