package resume

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Side labels which end of the connection initiated it. It is purely
// informational to the connection state machine; it never alters how
// frames are queued, stored, or replayed.
type Side int

const (
	SideClient Side = iota
	SideServer
)

func (s Side) String() string {
	if s == SideServer {
		return "server"
	}
	return "client"
}

// SessionToken is an opaque identifier correlating this connection with the
// peer's resume token. It is immutable for the lifetime of the connection
// and used only for logging and peer correlation.
type SessionToken []byte

func (t SessionToken) String() string {
	return fmt.Sprintf("%x", []byte(t))
}

// Config controls the sizing knobs of a resumable connection: how large the
// frames store's retention window may grow. The reconnect driver's backoff
// schedule is not configurable here.
type Config struct {
	Resume ResumeConfig `yaml:"resume"`
}

type ResumeConfig struct {
	// BufferSize bounds the store's retention window, i.e. sentPosition -
	// localAck, in human-readable form ("256mb", "1gb"). Appends beyond this
	// bound wait until acknowledged frames are released; a single frame
	// larger than the bound fails with ErrStoreOverflow.
	BufferSize string `yaml:"buffer_size"`
	// BufferSizeBytes is BufferSize parsed to bytes. Populated by Validate.
	BufferSizeBytes int64 `yaml:"-"`
}

const defaultBufferSize = "16mb"

// LoadConfig reads and validates a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading resume config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing resume config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating resume config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Resume.BufferSize == "" {
		c.Resume.BufferSize = defaultBufferSize
	}
	parsed, err := ParseByteSize(c.Resume.BufferSize)
	if err != nil {
		return fmt.Errorf("resume.buffer_size: %w", err)
	}
	c.Resume.BufferSizeBytes = parsed
	return nil
}

// ParseByteSize converts human-readable size strings such as "256mb" or
// "1gb" into a byte count.
func ParseByteSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	type suffix struct {
		s string
		m int64
	}
	// Longest suffix first so "mb" isn't mistaken for "b".
	suffixes := []suffix{
		{"gb", 1024 * 1024 * 1024},
		{"mb", 1024 * 1024},
		{"kb", 1024},
		{"b", 1},
	}

	for _, sfx := range suffixes {
		if strings.HasSuffix(s, sfx.s) {
			numStr := strings.TrimSuffix(s, sfx.s)
			num, err := strconv.ParseInt(numStr, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid number %q: %w", numStr, err)
			}
			return num * sfx.m, nil
		}
	}

	num, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unknown size format %q", s)
	}
	return num, nil
}
