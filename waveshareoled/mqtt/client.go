// Package mqtt exposes the provider's operations on an MQTT broker.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	mqtt "github.com/soypat/natiu-mqtt"
)

var pubFlags, _ = mqtt.NewPublishFlags(mqtt.QoS0, false, false)

// Client keeps a broker session alive and serves the provider through it.
type Client struct {
	ID                string
	Timeout           time.Duration
	Logger            *slog.Logger
	HeartbeatInterval time.Duration
	RetryDelay        time.Duration
	Prefix            string
	Username          string // MQTT broker username (optional)
	Password          string // MQTT broker password (optional, requires Username)
	QueueSize         int    // outbound event publishes buffered across reconnects

	packetID uint16
}

func (c *Client) defaults() {
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2 * time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 16
	}
}

// Serve connects to the broker at addr and dispatches its messages to p,
// reconnecting until ctx is done. It returns nil once ctx is done.
func (c *Client) Serve(ctx context.Context, addr string, p Provider) error {
	c.defaults()
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("mqtt: parsing host:port from %s: %w", addr, err)
	}
	h := &handler{
		topics:   Topics{Prefix: c.Prefix},
		provider: p,
		out:      make(chan outbound, c.QueueSize),
		logger:   c.Logger,
	}
	c.Logger.Info("mqtt:address", slog.String("addr", addr))

	for {
		err := c.session(ctx, addr, h)
		if ctx.Err() != nil {
			return nil
		}
		c.Logger.Error("mqtt:disconnected", slog.Any("reason", err))
		select {
		case <-time.After(c.RetryDelay):
		case <-ctx.Done():
			return nil
		}
	}
}

// session runs one TCP connection from dial to disconnect.
func (c *Client) session(ctx context.Context, addr string, h *handler) error {
	c.Logger.Info("socket:dialing", slog.String("addr", addr))
	d := net.Dialer{Timeout: c.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	c.Logger.Info("tcp:connected", slog.String("local", conn.LocalAddr().String()))

	client := mqtt.NewClient(mqtt.ClientConfig{
		Decoder: mqtt.DecoderNoAlloc{UserBuffer: make([]byte, 4096)},
		OnPub: func(_ mqtt.Header, varPub mqtt.VariablesPublish, r io.Reader) error {
			payload, err := io.ReadAll(r)
			if err != nil {
				return err
			}
			topic := string(varPub.TopicName)
			c.Logger.Debug("mqtt:received", slog.String("topic", topic))
			h.handle(ctx, topic, payload)
			return nil
		},
	})

	var varconn mqtt.VariablesConnect
	varconn.SetDefaultMQTT([]byte(c.ID))
	if c.Username != "" {
		varconn.Username = []byte(c.Username)
		if c.Password != "" {
			varconn.Password = []byte(c.Password)
		}
	}

	c.Logger.Info("mqtt:start-connecting")
	connCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()
	conn.SetDeadline(time.Now().Add(c.Timeout))
	if err := client.Connect(connCtx, conn, &varconn); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	c.Logger.Info("mqtt:connected")

	filters := make([]mqtt.SubscribeRequest, 0, len(h.topics.Inbound()))
	for _, t := range h.topics.Inbound() {
		filters = append(filters, mqtt.SubscribeRequest{TopicFilter: []byte(t), QoS: mqtt.QoS0})
	}
	err = client.Subscribe(connCtx, mqtt.VariablesSubscribe{
		PacketIdentifier: c.nextPacketID(),
		TopicFilters:     filters,
	})
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	c.Logger.Info("mqtt:subscribed", slog.Int("topics", len(filters)))
	// Reads block indefinitely from here on; writes keep a deadline.
	conn.SetReadDeadline(time.Time{})

	readDone := make(chan error, 1)
	go func() {
		for client.IsConnected() {
			if err := client.HandleNext(); err != nil && !client.IsConnected() {
				break
			}
		}
		readDone <- client.Err()
	}()

	heartbeat := time.NewTicker(c.HeartbeatInterval)
	defer heartbeat.Stop()
	for {
		select {
		case msg := <-h.out:
			if !msg.live() {
				c.Logger.Debug("mqtt:dropped-unlinked", slog.String("topic", msg.topic))
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(c.Timeout))
			err := client.PublishPayload(pubFlags, mqtt.VariablesPublish{
				TopicName:        []byte(msg.topic),
				PacketIdentifier: c.nextPacketID(),
			}, msg.payload)
			if err != nil {
				c.Logger.Error("mqtt:publish-failed", slog.String("topic", msg.topic), slog.Any("reason", err))
				continue
			}
			c.Logger.Debug("mqtt:published", slog.String("topic", msg.topic))
		case <-heartbeat.C:
			conn.SetWriteDeadline(time.Now().Add(c.Timeout))
			if err := client.StartPing(); err != nil {
				c.Logger.Error("mqtt:ping-failed", slog.Any("reason", err))
			}
		case err := <-readDone:
			if err == nil {
				err = errors.New("connection closed")
			}
			return err
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(c.Timeout))
			client.Disconnect(errors.New("shutting down"))
			return ctx.Err()
		}
	}
}

func (c *Client) nextPacketID() uint16 {
	c.packetID++
	if c.packetID == 0 {
		c.packetID = 1
	}
	return c.packetID
}
