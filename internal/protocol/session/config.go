package session

import (
	"time"

	"github.com/danmuck/gforcelink/internal/protocol/frame"
)

// Config defines correlation and reassembly defaults for one link.
type Config struct {
	DefaultTimeout     time.Duration
	MaxReassemblyBytes int
	AnomalyPolicy      frame.AnomalyPolicy
}

// DefaultConfig returns the defaults used when a link is built without overrides.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout:     1000 * time.Millisecond,
		MaxReassemblyBytes: frame.DefaultLimits().MaxMessageBytes,
		AnomalyPolicy:      frame.AnomalyKeepChain,
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = def.DefaultTimeout
	}
	if c.MaxReassemblyBytes <= 0 {
		c.MaxReassemblyBytes = def.MaxReassemblyBytes
	}
	return c
}

// Limits derives the reassembly limits for frame.NewReassembler.
func (c Config) Limits() frame.Limits {
	return frame.Limits{MaxMessageBytes: c.MaxReassemblyBytes}
}
