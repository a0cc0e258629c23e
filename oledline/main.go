// Command oledline speaks the process backend's line protocol on the real
// panel: each stdin line is drawn, and button and joystick presses are printed
// to stdout by name.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/harveysanders/waveshareoled/waveshareoled/bus"
	"github.com/harveysanders/waveshareoled/waveshareoled/hw"
	"github.com/harveysanders/waveshareoled/waveshareoled/input"
	"github.com/harveysanders/waveshareoled/waveshareoled/oled"
	"github.com/harveysanders/waveshareoled/waveshareoled/process"
	"github.com/harveysanders/waveshareoled/waveshareoled/provider"
)

func main() {
	var cfg hw.PanelConfig
	flag.StringVar(&cfg.SPIPort, "spi", "", "SPI port name (empty picks the first).")
	flag.Int64Var(&cfg.SPIClockHz, "spi-hz", 8_000_000, "SPI clock in Hz.")
	flag.StringVar(&cfg.DC, "dc", "GPIO24", "Data/command select pin.")
	flag.StringVar(&cfg.Reset, "rst", "GPIO25", "Panel reset pin.")
	flag.StringVar(&cfg.ChipSelect, "cs", "", "Chip select pin driven by hand.")
	chip := flag.String("gpiochip", "gpiochip0", "GPIO character device of the input lines.")
	flag.Parse()

	// stdout carries events, so logs go to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, *chip, logger); err != nil {
		logger.Error("oledline:exit", slog.Any("reason", err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg hw.PanelConfig, chip string, logger *slog.Logger) error {
	panel, err := hw.OpenPanel(cfg)
	if err != nil {
		return err
	}
	defer panel.Close()
	lineMap := input.DefaultLines()
	lines, err := hw.OpenLines(chip, lineMap.Offsets(), logger)
	if err != nil {
		return err
	}
	defer lines.Close()

	devCfg := oled.Config{Reset: panel.Reset}
	if panel.ChipSelect != nil {
		devCfg.ChipSelect = panel.ChipSelect
	}
	ctrl := oled.NewController(oled.NewDevice(bus.New(bus.SPI{Conn: panel.Conn}, panel.DC), devCfg), oled.DefaultQueueSize, logger)
	if err := ctrl.Initialize(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ctrl.Run(ctx) })
	g.Go(func() error {
		return input.NewPoller(lines, lineMap, &printer{w: os.Stdout}, logger).Run(ctx)
	})
	g.Go(func() error {
		// stdin closing ends the program.
		defer cancel()
		return serveLines(ctx, os.Stdin, ctrl)
	})
	return g.Wait()
}

// serveLines draws each line read from r until r is exhausted or ctx is done.
func serveLines(ctx context.Context, r io.Reader, d provider.Display) error {
	if err := d.Submit(ctx, oled.Clear()); err != nil {
		return err
	}
	// Reads from stdin cannot be interrupted; the reader is left behind on
	// cancellation.
	lines := make(chan string)
	done := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		done <- sc.Err()
	}()
	for {
		select {
		case line := <-lines:
			if err := d.Submit(ctx, decodeLine(line)); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		case err := <-done:
			return err
		case <-ctx.Done():
			return nil
		}
	}
}

func decodeLine(line string) oled.Command {
	if line == process.ClearLine {
		return oled.Clear()
	}
	return oled.Text(strings.ReplaceAll(line, `\n`, "\n"))
}

// printer writes one event name per line.
type printer struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *printer) Publish(ev input.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, ev.String())
}
