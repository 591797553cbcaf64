package config

import "time"

// Logging controls the structured logger.
type Logging struct {
	Level string `toml:"Level"`
	// File enables a rotated JSON log file next to stdout.
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// Ops configures the operational HTTP surface.
type Ops struct {
	ListenAddress     string  `toml:"ListenAddress"`
	RequestsPerSecond float64 `toml:"RequestsPerSecond"`
	Burst             int     `toml:"Burst"`
	ReadTimeoutSecs   int     `toml:"ReadTimeoutSecs"`
}

// ReadTimeout returns the read header timeout, defaulting to five seconds.
func (o Ops) ReadTimeout() time.Duration {
	if o.ReadTimeoutSecs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(o.ReadTimeoutSecs) * time.Second
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Endpoint    string  `toml:"Endpoint"`
	Insecure    bool    `toml:"Insecure"`
	Headers     string  `toml:"Headers"`
	Traces      bool    `toml:"Traces"`
	Metrics     bool    `toml:"Metrics"`
	SampleRatio float64 `toml:"SampleRatio"`
}
