package sockev

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shuLhan/share/lib/ini"
)

// Policy selects how long each poll waits for readiness.
type Policy int

const (
	// PolicyBusy polls with a zero timeout and spins when idle.
	PolicyBusy Policy = iota
	// PolicyBlock waits until a descriptor is ready or the loop is stopped.
	PolicyBlock
	// PolicyBounded waits at most Config.PollTimeout per iteration.
	PolicyBounded
)

func (p Policy) String() string {
	switch p {
	case PolicyBusy:
		return "busy"
	case PolicyBlock:
		return "block"
	case PolicyBounded:
		return "bounded"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "busy":
		return PolicyBusy, nil
	case "block":
		return PolicyBlock, nil
	case "bounded":
		return PolicyBounded, nil
	}
	return PolicyBusy, fmt.Errorf("unknown poll policy %q", s)
}

type Config struct {
	Policy      Policy
	PollTimeout time.Duration
	SocketPath  string
	Backlog     int
	BufferSize  int
	LogLevel    string
}

func NewConfig() Config {
	return Config{
		Policy:      PolicyBusy,
		PollTimeout: 100 * time.Millisecond,
		SocketPath:  "/tmp/test.sock",
		Backlog:     128,
		BufferSize:  16 * 1024,
		LogLevel:    "info",
	}
}

// fileConfig mirrors Config in the on-disk INI layout.
type fileConfig struct {
	Policy      string `ini:"reactor::policy"`
	PollTimeout string `ini:"reactor::poll-timeout"`
	SocketPath  string `ini:"socket::path"`
	Backlog     int    `ini:"socket::backlog"`
	BufferSize  int    `ini:"echo::buffer-size"`
	LogLevel    string `ini:"log::level"`
}

// LoadConfig reads an INI file on top of the defaults from NewConfig.
func LoadConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(b)
}

func ParseConfig(b []byte) (Config, error) {
	cfg := NewConfig()
	var fc fileConfig
	if err := ini.Unmarshal(b, &fc); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if fc.Policy != "" {
		p, err := ParsePolicy(fc.Policy)
		if err != nil {
			return cfg, err
		}
		cfg.Policy = p
	}
	if fc.PollTimeout != "" {
		d, err := time.ParseDuration(fc.PollTimeout)
		if err != nil {
			return cfg, fmt.Errorf("poll-timeout: %w", err)
		}
		cfg.PollTimeout = d
	}
	if fc.SocketPath != "" {
		cfg.SocketPath = fc.SocketPath
	}
	if fc.Backlog != 0 {
		cfg.Backlog = fc.Backlog
	}
	if fc.BufferSize != 0 {
		cfg.BufferSize = fc.BufferSize
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Policy {
	case PolicyBusy, PolicyBlock:
	case PolicyBounded:
		if c.PollTimeout < time.Millisecond {
			return fmt.Errorf("bounded policy needs a poll timeout of at least 1ms, got %s", c.PollTimeout)
		}
	default:
		return fmt.Errorf("invalid poll policy %d", int(c.Policy))
	}
	if c.Backlog <= 0 {
		return fmt.Errorf("backlog must be positive, got %d", c.Backlog)
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("buffer size must be positive, got %d", c.BufferSize)
	}
	return nil
}
