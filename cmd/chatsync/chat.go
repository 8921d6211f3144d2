package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatsync/config"
	"chatsync/internal/api"
	"chatsync/internal/engine"
	"chatsync/internal/loop"
	"chatsync/internal/media"
	"chatsync/internal/server"
	"chatsync/internal/session"
	"chatsync/internal/transport"
	"chatsync/internal/tui"
	"chatsync/pkg/logger"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

func runChat(cfg *config.Config, store session.Store) error {
	l := logger.New(cfg.AppMode, cfg.LogFile)
	logger.SetGlobalLogger(l)
	defer l.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	// the loop outlives the signal so the close path still runs on it
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	lp := loop.New(cfg.SendBuffer)
	sched := loop.NewTimerScheduler(lp)

	dialer, err := transport.NewDialer(cfg.ServerURL)
	if err != nil {
		return err
	}
	l.Logger.Info("chat client starting", zap.String("endpoint", dialer.Endpoint()), zap.String("server", cfg.ServerURL))
	conn := transport.NewManager(lp, sched, dialer, transport.Options{
		ReconnectDelay: cfg.Timings.Reconnect,
		SnapshotDelay:  cfg.Timings.PresenceSnapshot,
		SendBuffer:     cfg.SendBuffer,
	}, l)
	client := api.NewClient(cfg.ServerURL, api.WithLogger(l), api.WithUploadField(cfg.UploadField))

	bridge := tui.NewBridge(0)
	eng := engine.New(engine.Deps{
		Context:   runCtx,
		Exec:      lp,
		Scheduler: sched,
		Transport: conn,
		API:       client,
		View:      bridge,
		Store:     store,
		Media:     media.NewValidator(cfg.MaxUploadBytes),
		Timings:   cfg.Timings,
		Logger:    l,
	})

	go lp.Run(runCtx)

	creds, err := session.Resume(store, time.Now())
	loginRequired := err != nil
	if loginRequired {
		l.Logger.Info("no usable credentials, showing login", zap.Error(err))
	} else {
		lp.Post(func() { eng.Start(creds) })
	}

	var status *server.Server
	if cfg.StatusAddr != "" {
		status = server.New(cfg.StatusAddr, cfg.AppMode, server.FromLoop(lp, eng), l)
		if err := status.Start(); err != nil {
			l.Errorf("status server: %s", err)
			status = nil
		}
	}

	model := tui.NewModel(tui.Options{
		Controller:    tui.NewLoopController(lp, eng),
		Bridge:        bridge,
		LoginRequired: loginRequired,
	})
	p := tea.NewProgram(model,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithReportFocus(),
		tea.WithContext(ctx),
	)
	_, runErr := p.Run()

	bridge.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := lp.Call(shutdownCtx, eng.Shutdown); err != nil {
		l.Warnf("engine shutdown: %s", err)
	}
	if status != nil {
		_ = status.Shutdown(shutdownCtx)
	}
	cancelRun()
	lp.Stop()
	lp.Wait()

	if runErr != nil && ctx.Err() == nil {
		return runErr
	}
	return nil
}
