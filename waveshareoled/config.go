package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/harveysanders/waveshareoled/waveshareoled/broadcast"
	"github.com/harveysanders/waveshareoled/waveshareoled/hw"
	"github.com/harveysanders/waveshareoled/waveshareoled/input"
	"github.com/harveysanders/waveshareoled/waveshareoled/mqtt"
	"github.com/harveysanders/waveshareoled/waveshareoled/oled"
)

const passwordEnv = "WAVESHAREOLED_MQTT_PASSWORD"

// Backends.
const (
	backendOLED    = "oled"
	backendSim     = "sim"
	backendProcess = "process"
)

type Config struct {
	Backend string

	Panel    hw.PanelConfig
	GPIOChip string
	Lines    map[input.Event]int // line offset per event

	QueueSize   int
	BusCapacity int
	Command     string // process backend command line

	MQTTAddr      string
	MQTTClientID  string
	MQTTPrefix    string
	MQTTUsername  string
	MQTTPassword  string
	MQTTHeartbeat time.Duration
	Allow         []string

	LogLevel slog.Level
}

// parseConfig reads flags from args; getenv supplies secrets.
func parseConfig(args []string, getenv func(string) string) (Config, error) {
	cfg := Config{Lines: make(map[input.Event]int)}
	fs := flag.NewFlagSet("waveshareoled", flag.ContinueOnError)

	fs.StringVar(&cfg.Backend, "backend", backendOLED, "Display backend: oled, sim or process.")
	fs.StringVar(&cfg.Panel.SPIPort, "spi", "", "SPI port name (empty picks the first).")
	fs.Int64Var(&cfg.Panel.SPIClockHz, "spi-hz", 8_000_000, "SPI clock in Hz.")
	fs.StringVar(&cfg.Panel.DC, "dc", "GPIO24", "Data/command select pin.")
	fs.StringVar(&cfg.Panel.Reset, "rst", "GPIO25", "Panel reset pin.")
	fs.StringVar(&cfg.Panel.ChipSelect, "cs", "", "Chip select pin driven by hand (empty leaves it to the SPI driver).")
	fs.StringVar(&cfg.GPIOChip, "gpiochip", "gpiochip0", "GPIO character device of the input lines.")

	defaults := input.DefaultLines()
	offsets := make(map[input.Event]*int, len(defaults))
	for offset, ev := range defaults {
		offsets[ev] = fs.Int("line-"+ev.String(), offset, "Line offset of "+ev.String()+".")
	}

	fs.IntVar(&cfg.QueueSize, "queue", oled.DefaultQueueSize, "Render queue size.")
	fs.IntVar(&cfg.BusCapacity, "bus-capacity", broadcast.DefaultCapacity, "Events buffered per subscriber.")
	fs.StringVar(&cfg.Command, "command", "", "External display program for the process backend.")

	fs.StringVar(&cfg.MQTTAddr, "mqtt", "", "MQTT broker host:port (empty disables the transport).")
	fs.StringVar(&cfg.MQTTClientID, "mqtt-id", "waveshareoled", "MQTT client id.")
	fs.StringVar(&cfg.MQTTPrefix, "mqtt-prefix", mqtt.DefaultPrefix, "MQTT topic prefix.")
	fs.StringVar(&cfg.MQTTUsername, "mqtt-user", "", "MQTT username; the password is read from $"+passwordEnv+".")
	fs.DurationVar(&cfg.MQTTHeartbeat, "mqtt-heartbeat", 30*time.Second, "MQTT keepalive ping interval.")
	allow := fs.String("allow", "", "Comma separated client ids allowed to link (empty allows all).")
	level := fs.String("log-level", "info", "Log level: debug, info, warn or error.")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	for ev, off := range offsets {
		cfg.Lines[ev] = *off
	}
	for _, id := range strings.Split(*allow, ",") {
		if id = strings.TrimSpace(id); id != "" {
			cfg.Allow = append(cfg.Allow, id)
		}
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(*level)); err != nil {
		return Config{}, fmt.Errorf("log-level: %w", err)
	}
	cfg.MQTTPassword = getenv(passwordEnv)
	return cfg, cfg.Validate()
}

// Validate reports the first inconsistent setting.
func (c Config) Validate() error {
	switch c.Backend {
	case backendOLED, backendSim:
	case backendProcess:
		if strings.TrimSpace(c.Command) == "" {
			return errors.New("process backend needs -command")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("queue must be positive, got %d", c.QueueSize)
	}
	if c.BusCapacity <= 0 {
		return fmt.Errorf("bus-capacity must be positive, got %d", c.BusCapacity)
	}
	seen := make(map[int]input.Event, len(c.Lines))
	for _, ev := range input.Events() {
		off, ok := c.Lines[ev]
		if !ok {
			return fmt.Errorf("no line for %s", ev)
		}
		if off < 0 {
			return fmt.Errorf("line-%s: negative offset %d", ev, off)
		}
		if other, dup := seen[off]; dup {
			return fmt.Errorf("line %d used by both %s and %s", off, other, ev)
		}
		seen[off] = ev
	}
	if c.MQTTPassword != "" && c.MQTTUsername == "" {
		return errors.New("MQTT password set without -mqtt-user")
	}
	if c.MQTTAddr != "" && c.MQTTClientID == "" {
		return errors.New("-mqtt-id must not be empty")
	}
	return nil
}

// LineMap inverts Lines for the poller.
func (c Config) LineMap() input.LineMap {
	m := make(input.LineMap, len(c.Lines))
	for ev, off := range c.Lines {
		m[off] = ev
	}
	return m
}
