package app

import (
	"context"
	"fmt"
)

// Run loads configuration, builds the App and serves until ctx is done.
// configPath may be empty; TOURDESK_CONFIG_FILE is consulted then.
func Run(ctx context.Context, configPath string) error {
	cfg, applied, err := LoadConfigWithFile(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log := NewLogger(cfg.LogLevel, cfg.LogFormat)
	if len(applied) > 0 {
		log.Info("config.file.applied", "keys", applied)
	}

	a, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}
