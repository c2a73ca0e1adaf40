package state

import (
	"fmt"
	"os"
	"path/filepath"
)

func RouterConfigValidator(cfg *RouterCfg) error {
	if cfg.Topology == "" && cfg.StaticRoutes == "" {
		return fmt.Errorf("router.Topology must be set")
	}
	if cfg.Topology != "" {
		if _, err := os.Stat(cfg.Topology); err != nil {
			return fmt.Errorf("router.Topology is not readable: %w", err)
		}
	}
	if cfg.StaticRoutes != "" {
		if _, err := os.Stat(cfg.StaticRoutes); err != nil {
			return fmt.Errorf("router.StaticRoutes is not readable: %w", err)
		}
	}
	if !cfg.Host.IsValid() {
		return fmt.Errorf("router.Host is invalid")
	}
	if err := cfg.Locator().Check(cfg.Id); err != nil {
		return fmt.Errorf("router.BasePort: %w", err)
	}
	if cfg.BroadcastPeriod <= 0 {
		return fmt.Errorf("router.BroadcastPeriod must be positive")
	}
	if cfg.ExpiryGrace < 0 {
		return fmt.Errorf("router.ExpiryGrace must not be negative")
	}
	if cfg.Infinity < 2 || cfg.Infinity > 255 {
		return fmt.Errorf("router.Infinity must be within [2, 255], got %d", cfg.Infinity)
	}
	if cfg.DefaultTTL == 0 {
		return fmt.Errorf("router.DefaultTTL must be positive")
	}
	if cfg.LogPath != "" {
		if _, err := filepath.Abs(cfg.LogPath); err != nil {
			return fmt.Errorf("router.LogPath: %w", err)
		}
	}
	return nil
}
