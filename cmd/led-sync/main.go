// Command led-sync mirrors an LED on a GPIO pin with a boolean in a cloud key-path store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/led-sync/internal/config"
	"github.com/sweeney/led-sync/internal/connectivity"
	"github.com/sweeney/led-sync/internal/gpio"
	"github.com/sweeney/led-sync/internal/status"
	"github.com/sweeney/led-sync/internal/store"
	"github.com/sweeney/led-sync/internal/syncloop"
	"github.com/sweeney/led-sync/internal/web"
)

func main() {
	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(2)
	}

	logger := newLogger(os.Stderr, cfg.LogLevel)
	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func run(cfg config.Config, logger *slog.Logger) error {
	// Nothing touches the network or the pin before this passes.
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backend.close()

	if cfg.PrintState {
		return printState(ctx, backend.store, cfg, os.Stdout)
	}

	// The pin starts at the level for LED off.
	writer, err := gpio.NewRealWriter(cfg.GPIOChip, cfg.LEDPin, !cfg.LEDActiveHigh)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer writer.Close()
	driver := gpio.NewDriver(writer, cfg.LEDActiveHigh, logger)

	conn := connectivityFor(cfg, backend)

	start := time.Now()
	loop, err := syncloop.New(syncloop.Config{
		StatePath:       cfg.StatePath,
		CommandPath:     cfg.CommandPath,
		PublishInterval: cfg.StatePublish,
		PollInterval:    cfg.CommandPoll,
		ReadCommand:     cfg.ReadCommand,
		CallTimeout:     cfg.CallTimeout,
	}, backend.store, conn, driver, start)
	if err != nil {
		return fmt.Errorf("init sync loop: %w", err)
	}

	tracker := status.NewTracker(start, displayConfig(cfg, backend.endpoint))
	if net := connectivity.ReadNetworkInfo(os.Getenv); net != nil {
		tracker.SetNetwork(net)
	}

	restored, err := loop.Start(ctx, start)
	switch {
	case err != nil:
		logger.Warn("could not read initial command", "path", cfg.CommandPath, "err", err)
	case restored:
		logger.Info("restored command from cloud", "path", cfg.CommandPath, "led", status.LEDLabel(loop.State()))
	}
	tracker.SetOnline(conn.Online())
	tracker.Update(loop.Stats())

	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker, logger)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "err", err)
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("http server shutdown", "err", err)
			}
		}()
		logger.Info("http status server listening", "addr", cfg.HTTPAddr)
	}

	logger.Info("started",
		"backend", cfg.Backend,
		"state_path", cfg.StatePath,
		"command_path", cfg.CommandPath,
		"read_command", cfg.ReadCommand,
		"publish", cfg.StatePublish,
		"poll", cfg.CommandPoll,
		"pin", cfg.LEDPin,
	)

	ticker := time.NewTicker(cfg.Tick)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(ctx, loop, tracker, time.Now, ticker.C, sigCh, logger)
}

// runLoop ticks the sync loop until a signal arrives. Cloud failures are logged and
// retried by the loop's timers; they never end the process.
func runLoop(ctx context.Context, loop *syncloop.Loop, tracker *status.Tracker, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal, logger *slog.Logger) error {
	wasOnline := true

	for {
		select {
		case s := <-sig:
			logger.Info("shutting down", "signal", s.String(), "led", status.LEDLabel(loop.State()))
			return nil

		case <-tick:
			res := loop.Tick(ctx, now())

			if res.Online != wasOnline {
				if res.Online {
					logger.Info("connectivity restored")
				} else {
					logger.Warn("offline, cloud sync paused")
				}
				wasOnline = res.Online
			}
			logResult(logger, res)

			if tracker != nil {
				tracker.SetOnline(res.Online)
				tracker.Update(loop.Stats())
			}
		}
	}
}

func logResult(logger *slog.Logger, res syncloop.Result) {
	if res.PublishErr != nil {
		logger.Warn("publish failed", "err", res.PublishErr)
	}
	if res.PollErr != nil {
		logger.Warn("poll failed", "err", res.PollErr)
	}
	if res.Changed {
		logger.Info("command applied", "led", status.LEDLabel(res.State))
	}
}

// printState reads the state and command paths once and writes them to w.
func printState(ctx context.Context, st store.Store, cfg config.Config, w io.Writer) error {
	read := func(label, path string) error {
		callCtx := ctx
		if cfg.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, cfg.CallTimeout)
			defer cancel()
		}

		v, err := st.GetBool(callCtx, path)
		switch {
		case errors.Is(err, store.ErrNoValue):
			fmt.Fprintf(w, "%s %s: (no value)\n", label, path)
		case err != nil:
			return err
		default:
			fmt.Fprintf(w, "%s %s: %s\n", label, path, status.LEDLabel(v))
		}
		return nil
	}

	if err := read("state", cfg.StatePath); err != nil {
		return err
	}
	return read("command", cfg.CommandPath)
}

func displayConfig(cfg config.Config, endpoint string) status.Config {
	return status.Config{
		Backend:     string(cfg.Backend),
		Endpoint:    endpoint,
		StatePath:   cfg.StatePath,
		CommandPath: cfg.CommandPath,
		ReadCommand: cfg.ReadCommand,
		PublishMs:   cfg.StatePublish.Milliseconds(),
		PollMs:      cfg.CommandPoll.Milliseconds(),
		LEDPin:      cfg.LEDPin,
		ActiveHigh:  cfg.LEDActiveHigh,
		HTTPAddr:    cfg.HTTPAddr,
	}
}
