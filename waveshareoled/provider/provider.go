// Package provider is the operation surface transports call: draw a
// message, clear the panel, and manage event subscriptions.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/harveysanders/waveshareoled/waveshareoled/oled"
	"github.com/harveysanders/waveshareoled/waveshareoled/subscription"
)

// ErrRejected is returned by Subscribe for a client that may not link.
var ErrRejected = errors.New("provider: link rejected")

// Display accepts render commands. *oled.Controller and *process.Backend
// implement it.
type Display interface {
	Submit(ctx context.Context, cmd oled.Command) error
}

// Error is a failed Command API call.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return "provider: " + e.Op + ": " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// Options tune a Provider.
type Options struct {
	// Allow restricts which client ids may subscribe. Empty allows all.
	Allow []string
}

// Provider ties a Display to a subscription Manager.
type Provider struct {
	display Display
	subs    *subscription.Manager
	allow   map[string]bool
	logger  *slog.Logger
}

// New returns a Provider. subs is owned by the Provider from here on.
func New(display Display, subs *subscription.Manager, opts Options, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	p := &Provider{display: display, subs: subs, logger: logger}
	if len(opts.Allow) > 0 {
		p.allow = make(map[string]bool, len(opts.Allow))
		for _, id := range opts.Allow {
			p.allow[id] = true
		}
	}
	return p
}

// DrawMessage shows message on the panel. It returns once the render queue
// has accepted the message.
func (p *Provider) DrawMessage(ctx context.Context, message string) error {
	p.logger.Debug("provider:draw-message", slog.String("message", message))
	if err := p.display.Submit(ctx, oled.Text(message)); err != nil {
		return &Error{Op: "draw_message", Err: err}
	}
	return nil
}

// Clear blanks the panel.
func (p *Provider) Clear(ctx context.Context) error {
	p.logger.Debug("provider:clear")
	if err := p.display.Submit(ctx, oled.Clear()); err != nil {
		return &Error{Op: "clear", Err: err}
	}
	return nil
}

// Subscribe links clientID: every input event from now on is passed to
// deliver. A non-nil error means the link was rejected.
func (p *Provider) Subscribe(clientID string, deliver subscription.DeliverFunc) error {
	if p.allow != nil && !p.allow[clientID] {
		p.logger.Warn("provider:link-rejected", slog.String("client", clientID))
		return fmt.Errorf("%w: %q not allowed", ErrRejected, clientID)
	}
	if err := p.subs.Subscribe(clientID, deliver); err != nil {
		p.logger.Warn("provider:link-rejected", slog.String("client", clientID), slog.Any("reason", err))
		return fmt.Errorf("%w: %w", ErrRejected, err)
	}
	return nil
}

// Unsubscribe drops the link for clientID, if any.
func (p *Provider) Unsubscribe(clientID string) {
	if !p.subs.Unsubscribe(clientID) {
		p.logger.Debug("provider:unlink-unknown", slog.String("client", clientID))
	}
}

// Shutdown cancels every subscription.
func (p *Provider) Shutdown() {
	p.subs.Close()
	p.logger.Info("provider:shutdown")
}
