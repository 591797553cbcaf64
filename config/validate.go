package config

import (
	"fmt"
	"strings"

	"ddbox/crypto"
	"ddbox/observability/logging"
)

// Validate checks a loaded configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil config")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("config: DataDir required")
	}
	addr, err := crypto.DecodeAddress(cfg.ContractAddress)
	if err != nil {
		return fmt.Errorf("config: ContractAddress: %w", err)
	}
	if addr.Prefix() != crypto.ContractPrefix {
		return fmt.Errorf("config: ContractAddress must use the %s prefix", crypto.ContractPrefix)
	}
	if _, ok := logging.LookupLevel(cfg.Logging.Level); !ok {
		return fmt.Errorf("config: logging.Level %q unknown", cfg.Logging.Level)
	}
	if cfg.Logging.MaxSizeMB < 0 || cfg.Logging.MaxBackups < 0 || cfg.Logging.MaxAgeDays < 0 {
		return fmt.Errorf("config: logging rotation limits must not be negative")
	}
	if cfg.Ops.RequestsPerSecond < 0 || cfg.Ops.Burst < 0 {
		return fmt.Errorf("config: ops rate limit must not be negative")
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("config: telemetry.SampleRatio must be within [0, 1]")
	}
	return nil
}
