package feed

import (
	"time"

	"tourdesk/cmd/internal/envcfg"
)

const (
	defaultQueueSize         = 64
	minQueueSize             = 8
	defaultWriteTimeout      = 5 * time.Second
	defaultHeartbeatInterval = 25 * time.Second
	defaultHeartbeatTimeout  = 5 * time.Second
	maxPingFailures          = 3
	maxInboundFrameBytes     = 4 << 10
)

// Config tunes the websocket gateway.
type Config struct {
	// AllowedOrigins lists browser origins (scheme://host[:port]) allowed to connect.
	// Requests without an Origin header (non-browser clients) are always allowed.
	AllowedOrigins []string

	QueueSize         int
	WriteTimeout      time.Duration
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
}

// LoadConfigFromEnv reads TOURDESK_FEED_* variables. defaultOrigins is used
// when TOURDESK_FEED_ALLOWED_ORIGINS is unset, normally the CORS origins.
func LoadConfigFromEnv(defaultOrigins []string) Config {
	cfg := Config{
		AllowedOrigins:    envcfg.CSV("TOURDESK_FEED_ALLOWED_ORIGINS", defaultOrigins),
		QueueSize:         envcfg.Int("TOURDESK_FEED_QUEUE", defaultQueueSize),
		WriteTimeout:      envcfg.Duration("TOURDESK_FEED_WRITE_TIMEOUT", defaultWriteTimeout),
		HeartbeatInterval: envcfg.Duration("TOURDESK_FEED_HEARTBEAT_INTERVAL", defaultHeartbeatInterval),
		HeartbeatTimeout:  envcfg.Duration("TOURDESK_FEED_HEARTBEAT_TIMEOUT", defaultHeartbeatTimeout),
	}
	return cfg.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.QueueSize < minQueueSize {
		c.QueueSize = minQueueSize
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = defaultHeartbeatTimeout
	}
	return c
}
