package mqtt

import (
	"context"
	"log/slog"

	"github.com/harveysanders/waveshareoled/waveshareoled/input"
	"github.com/harveysanders/waveshareoled/waveshareoled/subscription"
)

// Provider is the operation surface the client drives.
// *provider.Provider implements it.
type Provider interface {
	DrawMessage(ctx context.Context, message string) error
	Clear(ctx context.Context) error
	Subscribe(clientID string, deliver subscription.DeliverFunc) error
	Unsubscribe(clientID string)
}

type outbound struct {
	topic   string
	payload []byte
	// link is the subscription context; once it is done the actor has
	// unlinked and the message must not be published.
	link context.Context
}

func (o outbound) live() bool { return o.link == nil || o.link.Err() == nil }

// handler turns inbound publishes into Provider calls and queues the events
// linked actors should receive.
type handler struct {
	topics   Topics
	provider Provider
	out      chan outbound
	logger   *slog.Logger
}

func (h *handler) handle(ctx context.Context, topic string, payload []byte) {
	var err error
	switch topic {
	case h.topics.DrawMessage():
		err = h.provider.DrawMessage(ctx, parseMessage(payload))
	case h.topics.Clear():
		err = h.provider.Clear(ctx)
	case h.topics.LinkPut():
		var actor string
		if actor, err = parseActor(payload); err == nil {
			err = h.provider.Subscribe(actor, h.deliver(actor))
			if err == nil {
				h.logger.Info("mqtt:linked", slog.String("actor", actor))
			}
		}
	case h.topics.LinkDel():
		var actor string
		if actor, err = parseActor(payload); err == nil {
			h.provider.Unsubscribe(actor)
			h.logger.Info("mqtt:unlinked", slog.String("actor", actor))
		}
	default:
		h.logger.Debug("mqtt:unknown-topic", slog.String("topic", topic))
		return
	}
	if err != nil {
		h.logger.Error("mqtt:handle-failed", slog.String("topic", topic), slog.Any("reason", err))
	}
}

// deliver queues ev for actor. It blocks while the queue is full, for
// example while the broker is unreachable, until ctx is cancelled.
func (h *handler) deliver(actor string) subscription.DeliverFunc {
	topic := h.topics.Events(actor)
	return func(ctx context.Context, ev input.Event) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		payload, err := eventPayload(ev)
		if err != nil {
			return err
		}
		select {
		case h.out <- outbound{topic: topic, payload: payload, link: ctx}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
