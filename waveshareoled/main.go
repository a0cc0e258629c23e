// Command waveshareoled drives a Waveshare 1.3" OLED HAT: it renders messages
// received over MQTT and publishes the HAT's button and joystick presses to
// linked actors.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gdamore/tcell/v2"
	"golang.org/x/sync/errgroup"

	"github.com/harveysanders/waveshareoled/waveshareoled/broadcast"
	"github.com/harveysanders/waveshareoled/waveshareoled/bus"
	"github.com/harveysanders/waveshareoled/waveshareoled/hw"
	"github.com/harveysanders/waveshareoled/waveshareoled/input"
	"github.com/harveysanders/waveshareoled/waveshareoled/mqtt"
	"github.com/harveysanders/waveshareoled/waveshareoled/oled"
	"github.com/harveysanders/waveshareoled/waveshareoled/process"
	"github.com/harveysanders/waveshareoled/waveshareoled/provider"
	"github.com/harveysanders/waveshareoled/waveshareoled/sim"
	"github.com/harveysanders/waveshareoled/waveshareoled/subscription"
)

func main() {
	cfg, err := parseConfig(os.Args[1:], os.Getenv)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// The sim backend owns the terminal, so logs go to a file there.
	logOut := io.Writer(os.Stderr)
	if cfg.Backend == backendSim {
		f, err := os.CreateTemp("", "waveshareoled-*.log")
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer f.Close()
		fmt.Fprintln(os.Stderr, "logging to", f.Name())
		logOut = f
	}
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("provider:exit", slog.Any("reason", err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	events := broadcast.New[input.Event](cfg.BusCapacity)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	display, err := startBackend(ctx, g, cfg, events, logger)
	if err != nil {
		return abort(cancel, g, err)
	}

	subs := subscription.NewManager(events, logger)
	prov := provider.New(display, subs, provider.Options{Allow: cfg.Allow}, logger)
	if err := prov.Clear(ctx); err != nil {
		return abort(cancel, g, err)
	}
	logger.Info("provider:ready", slog.String("backend", cfg.Backend))

	if cfg.MQTTAddr != "" {
		client := &mqtt.Client{
			ID:                cfg.MQTTClientID,
			Logger:            logger,
			HeartbeatInterval: cfg.MQTTHeartbeat,
			Prefix:            cfg.MQTTPrefix,
			Username:          cfg.MQTTUsername,
			Password:          cfg.MQTTPassword,
		}
		g.Go(func() error { return client.Serve(ctx, cfg.MQTTAddr, prov) })
	}

	g.Go(func() error {
		<-ctx.Done()
		prov.Shutdown()
		events.Close()
		return nil
	})

	err = g.Wait()
	if errors.Is(err, sim.ErrQuit) {
		return nil
	}
	return err
}

// abort stops whatever startup already launched on g and returns err.
func abort(cancel context.CancelFunc, g *errgroup.Group, err error) error {
	cancel()
	_ = g.Wait()
	return err
}

// startBackend brings the display up and starts its goroutines on g. Any
// error here is a startup failure.
func startBackend(ctx context.Context, g *errgroup.Group, cfg Config, events *broadcast.Bus[input.Event], logger *slog.Logger) (provider.Display, error) {
	switch cfg.Backend {
	case backendProcess:
		b, err := process.New(cfg.Command, events, logger)
		if err != nil {
			return nil, err
		}
		if err := b.Start(ctx); err != nil {
			return nil, err
		}
		g.Go(b.Wait)
		return b, nil

	case backendSim:
		screen, err := tcell.NewScreen()
		if err != nil {
			return nil, fmt.Errorf("sim: screen: %w", err)
		}
		panel := sim.NewPanel()
		term := sim.NewTerminal(screen, panel, cfg.LineMap(), logger)
		ctrl, err := startDisplay(ctx, g, bus.New(panel, panel), oled.Config{}, term, cfg, events, logger)
		if err != nil {
			return nil, err
		}
		g.Go(func() error { return term.Run(ctx) })
		return ctrl, nil

	default:
		panel, err := hw.OpenPanel(cfg.Panel)
		if err != nil {
			return nil, err
		}
		lines, err := hw.OpenLines(cfg.GPIOChip, cfg.LineMap().Offsets(), logger)
		if err != nil {
			panel.Close()
			return nil, err
		}
		devCfg := oled.Config{Reset: panel.Reset}
		if panel.ChipSelect != nil {
			devCfg.ChipSelect = panel.ChipSelect
		}
		ctrl, err := startDisplay(ctx, g, bus.New(bus.SPI{Conn: panel.Conn}, panel.DC), devCfg, lines, cfg, events, logger)
		if err != nil {
			lines.Close()
			panel.Close()
			return nil, err
		}
		g.Go(func() error {
			<-ctx.Done()
			lines.Close()
			return panel.Close()
		})
		return ctrl, nil
	}
}

// startDisplay initializes the panel behind ch and starts the render worker
// and the input poller reading w.
func startDisplay(ctx context.Context, g *errgroup.Group, ch *bus.Channel, devCfg oled.Config, w input.Waiter, cfg Config, events *broadcast.Bus[input.Event], logger *slog.Logger) (*oled.Controller, error) {
	ctrl := oled.NewController(oled.NewDevice(ch, devCfg), cfg.QueueSize, logger)
	if err := ctrl.Initialize(); err != nil {
		return nil, fmt.Errorf("display init: %w", err)
	}
	poller := input.NewPoller(w, cfg.LineMap(), events, logger)
	g.Go(func() error { return ctrl.Run(ctx) })
	g.Go(func() error { return poller.Run(ctx) })
	return ctrl, nil
}
