package mqtt

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/harveysanders/waveshareoled/waveshareoled/input"
)

// DefaultPrefix is the topic prefix used when Client.Prefix is empty.
const DefaultPrefix = "waveshareoled"

// ErrNoActor is returned for a link payload without an actor id.
var ErrNoActor = errors.New("mqtt: missing actor_id")

// Topics names the topics under one prefix.
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultPrefix
	}
	return strings.TrimSuffix(t.Prefix, "/")
}

func (t Topics) DrawMessage() string { return t.prefix() + "/draw_message" }
func (t Topics) Clear() string       { return t.prefix() + "/clear" }
func (t Topics) LinkPut() string     { return t.prefix() + "/link/put" }
func (t Topics) LinkDel() string     { return t.prefix() + "/link/del" }

// Events is the outbound topic for one actor.
func (t Topics) Events(actorID string) string { return t.prefix() + "/events/" + actorID }

// Inbound lists the topics the client subscribes to.
func (t Topics) Inbound() []string {
	return []string{t.DrawMessage(), t.Clear(), t.LinkPut(), t.LinkDel()}
}

// parseMessage accepts {"message": "..."} or plain text.
func parseMessage(payload []byte) string {
	if gjson.ValidBytes(payload) {
		if m := gjson.GetBytes(payload, "message"); m.Exists() {
			return m.String()
		}
	}
	return string(payload)
}

func parseActor(payload []byte) (string, error) {
	if !gjson.ValidBytes(payload) {
		return "", ErrNoActor
	}
	id := gjson.GetBytes(payload, "actor_id").String()
	if id == "" {
		return "", ErrNoActor
	}
	return id, nil
}

func eventPayload(ev input.Event) ([]byte, error) {
	return sjson.SetBytes(nil, "event", ev.String())
}
