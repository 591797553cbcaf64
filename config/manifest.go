package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"ddbox/core/types"
	"ddbox/crypto"
	"ddbox/native/blindbox"
)

// Manifest describes a sale deployment. It is consumed once by `ddbox init`.
type Manifest struct {
	Owner           string              `yaml:"owner"`
	Scale           string              `yaml:"scale"`
	BasePrice       string              `yaml:"base_price"`
	FirstPrizeCount *uint32             `yaml:"first_prize_count,omitempty"`
	LedgerMode      blindbox.LedgerMode `yaml:"ledger_mode,omitempty"`
	ExternalLedger  string              `yaml:"external_ledger,omitempty"`
	Windows         ManifestWindows     `yaml:"windows"`
}

// ManifestWindows carries optional initial phase windows.
type ManifestWindows struct {
	Commit *blindbox.PhaseWindow `yaml:"commit,omitempty"`
	Reveal *blindbox.PhaseWindow `yaml:"reveal,omitempty"`
	Closed *blindbox.PhaseWindow `yaml:"closed,omitempty"`
}

// WindowSetting is one window to apply after creation.
type WindowSetting struct {
	Kind   blindbox.WindowKind
	Window blindbox.PhaseWindow
}

// LoadManifest reads and validates a YAML manifest.
func LoadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(raw)
}

// ParseManifest decodes a manifest rejecting unknown keys.
func ParseManifest(raw []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the manifest fields that can be verified offline.
func (m *Manifest) Validate() error {
	if m == nil {
		return fmt.Errorf("manifest: nil")
	}
	if err := crypto.ValidateAddress(strings.TrimSpace(m.Owner)); err != nil {
		return fmt.Errorf("manifest: owner: %w", err)
	}
	if _, err := blindbox.ParseScale(m.Scale); err != nil {
		return fmt.Errorf("manifest: %w", err)
	}
	if _, err := types.ParseCoin(m.BasePrice); err != nil {
		return fmt.Errorf("manifest: base_price: %w", err)
	}
	if m.ExternalLedger != "" && m.LedgerMode != blindbox.LedgerDelegated {
		return fmt.Errorf("manifest: external_ledger requires ledger_mode delegated")
	}
	return nil
}

// CreateParams converts the manifest into engine creation parameters.
func (m *Manifest) CreateParams() (blindbox.CreateParams, error) {
	scale, err := blindbox.ParseScale(m.Scale)
	if err != nil {
		return blindbox.CreateParams{}, fmt.Errorf("manifest: %w", err)
	}
	price, err := types.ParseCoin(m.BasePrice)
	if err != nil {
		return blindbox.CreateParams{}, fmt.Errorf("manifest: base_price: %w", err)
	}
	return blindbox.CreateParams{
		Scale:           scale,
		BasePrice:       price,
		FirstPrizeCount: m.FirstPrizeCount,
		LedgerMode:      m.LedgerMode,
		ExternalLedger:  strings.TrimSpace(m.ExternalLedger),
	}, nil
}

// WindowSettings lists the configured windows in commit, reveal, closed order.
func (m *Manifest) WindowSettings() []WindowSetting {
	var out []WindowSetting
	add := func(kind blindbox.WindowKind, w *blindbox.PhaseWindow) {
		if w != nil {
			out = append(out, WindowSetting{Kind: kind, Window: w.Clone()})
		}
	}
	add(blindbox.WindowCommit, m.Windows.Commit)
	add(blindbox.WindowReveal, m.Windows.Reveal)
	add(blindbox.WindowClosed, m.Windows.Closed)
	return out
}
