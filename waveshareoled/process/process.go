// Package process renders through an external line-oriented program instead
// of driving the panel directly. The program reads one message per line on
// stdin and prints input event names, one per line, on stdout.
package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"github.com/google/shlex"

	"github.com/harveysanders/waveshareoled/waveshareoled/input"
	"github.com/harveysanders/waveshareoled/waveshareoled/oled"
)

// ClearLine is the line that asks the program to blank the panel.
const ClearLine = "PROVIDER_DISPLAY_CLEAR"

var (
	// ErrNotStarted is returned by Submit before Start.
	ErrNotStarted = errors.New("process: not started")
	// ErrExited is returned once the program has exited.
	ErrExited = errors.New("process: exited")
)

// Backend runs the program and implements provider.Display.
type Backend struct {
	argv   []string
	events input.Publisher
	logger *slog.Logger

	mu      sync.Mutex // serializes writes to stdin
	stdin   io.WriteCloser
	closing bool

	exited chan struct{}
	err    error
}

// New parses command with shell quoting rules. Recognized event lines are
// published to events.
func New(command string, events input.Publisher, logger *slog.Logger) (*Backend, error) {
	argv, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("process: parse command %q: %w", command, err)
	}
	if len(argv) == 0 {
		return nil, errors.New("process: empty command")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Backend{
		argv:   argv,
		events: events,
		logger: logger,
		exited: make(chan struct{}),
	}, nil
}

// Start launches the program. It is killed when ctx is done.
func (b *Backend) Start(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, b.argv[0], b.argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("process: stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("process: stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("process: stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("process: start %s: %w", b.argv[0], err)
	}
	b.logger.Info("process:started", slog.String("command", strings.Join(b.argv, " ")), slog.Int("pid", cmd.Process.Pid))

	b.mu.Lock()
	b.stdin = stdin
	b.mu.Unlock()

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		b.readEvents(stdout)
	}()
	go func() {
		defer readers.Done()
		b.readLog(stderr)
	}()
	go func() {
		// Pipes must be drained before cmd.Wait closes them.
		readers.Wait()
		err := cmd.Wait()

		b.mu.Lock()
		closing := b.closing
		b.mu.Unlock()
		switch {
		case closing || ctx.Err() != nil:
			b.err = nil
		case err != nil:
			b.err = fmt.Errorf("%w: %w", ErrExited, err)
		default:
			b.err = ErrExited
		}
		b.logger.Info("process:exited", slog.Any("reason", err))
		close(b.exited)
	}()
	return nil
}

// Submit writes cmd as one line on the program's stdin.
func (b *Backend) Submit(ctx context.Context, cmd oled.Command) error {
	var line string
	switch cmd.Kind {
	case oled.CommandClear:
		line = ClearLine
	case oled.CommandText:
		line = strings.ReplaceAll(cmd.Text, "\n", `\n`)
	default:
		return fmt.Errorf("process: unknown command kind %d", cmd.Kind)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case <-b.exited:
		return ErrExited
	default:
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stdin == nil {
		return ErrNotStarted
	}
	if _, err := io.WriteString(b.stdin, line+"\n"); err != nil {
		return fmt.Errorf("process: write: %w", err)
	}
	return nil
}

// Wait blocks until the program exits. It returns nil if the exit was
// requested by Close or by cancelling the Start context.
func (b *Backend) Wait() error {
	<-b.exited
	return b.err
}

// Close closes the program's stdin, asking it to exit.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closing = true
	if b.stdin == nil {
		return nil
	}
	return b.stdin.Close()
}

func (b *Backend) readEvents(r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		ev, err := input.ParseEvent(line)
		if err != nil {
			b.logger.Debug("process:output", slog.String("line", line))
			continue
		}
		b.logger.Debug("process:event", slog.String("event", ev.String()))
		b.events.Publish(ev)
	}
	if err := sc.Err(); err != nil {
		b.logger.Error("process:stdout-failed", slog.Any("reason", err))
	}
}

func (b *Backend) readLog(r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		b.logger.Info("process:stderr", slog.String("line", sc.Text()))
	}
}
