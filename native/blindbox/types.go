package blindbox

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"ddbox/core/types"
)

// ModuleName identifies the blind-box module for pause checks and events.
const ModuleName = "blindbox"

// Phase is the coarse lifecycle stage of the sale.
type Phase uint8

const (
	PhaseCommit Phase = iota
	PhaseReveal
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseCommit:
		return "commit"
	case PhaseReveal:
		return "reveal"
	case PhaseClosed:
		return "closed"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// ParsePhase converts a textual phase into its enum value.
func ParsePhase(s string) (Phase, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "commit":
		return PhaseCommit, nil
	case "reveal":
		return PhaseReveal, nil
	case "closed":
		return PhaseClosed, nil
	default:
		return 0, fmt.Errorf("blindbox: unknown phase %q", s)
	}
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Phase) UnmarshalText(text []byte) error {
	parsed, err := ParsePhase(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Scale selects the supply size of a deployment.
type Scale uint8

const (
	ScaleTiny Scale = iota
	ScaleSmall
	ScaleMedium
	ScaleLarge
	ScaleHuge
)

type scaleParams struct {
	name       string
	supply     uint64
	firstPrize uint32
}

var scaleTable = map[Scale]scaleParams{
	ScaleTiny:   {name: "tiny", supply: 10, firstPrize: 1},
	ScaleSmall:  {name: "small", supply: 100, firstPrize: 3},
	ScaleMedium: {name: "medium", supply: 1000, firstPrize: 3},
	ScaleLarge:  {name: "large", supply: 10000, firstPrize: 5},
	ScaleHuge:   {name: "huge", supply: 100000, firstPrize: 5},
}

// TotalSupply returns the number of units available at this scale.
func (s Scale) TotalSupply() uint64 { return scaleTable[s].supply }

// DefaultFirstPrizeCount returns the default number of first prizes.
func (s Scale) DefaultFirstPrizeCount() uint32 { return scaleTable[s].firstPrize }

// Valid reports whether the scale is one of the known values.
func (s Scale) Valid() bool {
	_, ok := scaleTable[s]
	return ok
}

func (s Scale) String() string {
	if p, ok := scaleTable[s]; ok {
		return p.name
	}
	return fmt.Sprintf("scale(%d)", uint8(s))
}

// ParseScale converts a textual scale into its enum value.
func ParseScale(s string) (Scale, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for scale, p := range scaleTable {
		if p.name == name {
			return scale, nil
		}
	}
	return 0, fmt.Errorf("blindbox: unknown scale %q", s)
}

func (s Scale) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Scale) UnmarshalText(text []byte) error {
	parsed, err := ParseScale(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// LedgerMode selects who keeps unit ownership records.
type LedgerMode uint8

const (
	// LedgerInternal keeps ownership and approvals in contract storage.
	LedgerInternal LedgerMode = iota
	// LedgerDelegated forwards ownership operations to an external service.
	LedgerDelegated
)

func (m LedgerMode) String() string {
	switch m {
	case LedgerInternal:
		return "internal"
	case LedgerDelegated:
		return "delegated"
	default:
		return fmt.Sprintf("ledger(%d)", uint8(m))
	}
}

// ParseLedgerMode converts a textual ledger mode; empty selects internal.
func ParseLedgerMode(s string) (LedgerMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "internal":
		return LedgerInternal, nil
	case "delegated":
		return LedgerDelegated, nil
	default:
		return 0, fmt.Errorf("blindbox: unknown ledger mode %q", s)
	}
}

func (m LedgerMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *LedgerMode) UnmarshalText(text []byte) error {
	parsed, err := ParseLedgerMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// WindowKind names one of the three phase windows.
type WindowKind uint8

const (
	WindowCommit WindowKind = iota
	WindowReveal
	WindowClosed
)

func (k WindowKind) String() string {
	switch k {
	case WindowCommit:
		return "commit"
	case WindowReveal:
		return "reveal"
	case WindowClosed:
		return "closed"
	default:
		return fmt.Sprintf("window(%d)", uint8(k))
	}
}

// ParseWindowKind converts a textual window name.
func ParseWindowKind(s string) (WindowKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "commit":
		return WindowCommit, nil
	case "reveal":
		return WindowReveal, nil
	case "closed":
		return WindowClosed, nil
	default:
		return 0, fmt.Errorf("blindbox: unknown window %q", s)
	}
}

func (k WindowKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *WindowKind) UnmarshalText(text []byte) error {
	parsed, err := ParseWindowKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// PhaseWindow bounds when a phase may be acted on. Unset bounds always hold;
// set bounds are inclusive and must all hold.
type PhaseWindow struct {
	StartHeight *uint64 `json:"start_height,omitempty" yaml:"start_height,omitempty"`
	EndHeight   *uint64 `json:"end_height,omitempty" yaml:"end_height,omitempty"`
	StartTime   *uint64 `json:"start_time,omitempty" yaml:"start_time,omitempty"`
	EndTime     *uint64 `json:"end_time,omitempty" yaml:"end_time,omitempty"`
}

// Contains reports whether the block height and time fall inside the window.
func (w PhaseWindow) Contains(height, time uint64) bool {
	if w.StartHeight != nil && height < *w.StartHeight {
		return false
	}
	if w.EndHeight != nil && height > *w.EndHeight {
		return false
	}
	if w.StartTime != nil && time < *w.StartTime {
		return false
	}
	if w.EndTime != nil && time > *w.EndTime {
		return false
	}
	return true
}

// IsUnbounded reports whether no bound is set.
func (w PhaseWindow) IsUnbounded() bool {
	return w.StartHeight == nil && w.EndHeight == nil && w.StartTime == nil && w.EndTime == nil
}

// Clone returns a deep copy of the window.
func (w PhaseWindow) Clone() PhaseWindow {
	return PhaseWindow{
		StartHeight: cloneUint64(w.StartHeight),
		EndHeight:   cloneUint64(w.EndHeight),
		StartTime:   cloneUint64(w.StartTime),
		EndTime:     cloneUint64(w.EndTime),
	}
}

func cloneUint64(v *uint64) *uint64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

// Config is the contract's singleton configuration.
type Config struct {
	Owner           string      `json:"owner"`
	TotalSupply     uint64      `json:"total_supply"`
	Scale           Scale       `json:"scale"`
	BasePrice       types.Coin  `json:"base_price"`
	Phase           Phase       `json:"phase"`
	NextUnitID      uint64      `json:"next_unit_id"`
	Paused          bool        `json:"paused"`
	CommitWindow    PhaseWindow `json:"commit_window"`
	RevealWindow    PhaseWindow `json:"reveal_window"`
	ClosedWindow    PhaseWindow `json:"closed_window"`
	FirstPrizeCount uint32      `json:"first_prize_count"`
	LedgerMode      LedgerMode  `json:"ledger_mode"`
	ExternalLedger  string      `json:"external_ledger,omitempty"`
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	clone.BasePrice = c.BasePrice.Clone()
	clone.CommitWindow = c.CommitWindow.Clone()
	clone.RevealWindow = c.RevealWindow.Clone()
	clone.ClosedWindow = c.ClosedWindow.Clone()
	return &clone
}

// IsPaused implements common.PauseView.
func (c *Config) IsPaused(module string) bool {
	return c != nil && module == ModuleName && c.Paused
}

// Window returns the window configured for the supplied kind.
func (c *Config) Window(kind WindowKind) PhaseWindow {
	switch kind {
	case WindowReveal:
		return c.RevealWindow
	case WindowClosed:
		return c.ClosedWindow
	default:
		return c.CommitWindow
	}
}

func (c *Config) setWindow(kind WindowKind, w PhaseWindow) {
	switch kind {
	case WindowReveal:
		c.RevealWindow = w
	case WindowClosed:
		c.ClosedWindow = w
	default:
		c.CommitWindow = w
	}
}

// Reveal is a verified commitment opening.
type Reveal struct {
	Value string `json:"value"`
	Salt  string `json:"salt"`
}

// Unit is an internally tracked collectible.
type Unit struct {
	ID       uint64 `json:"id"`
	Owner    string `json:"owner"`
	Approval string `json:"approval,omitempty"`
}

// Clone returns a copy of the unit.
func (u *Unit) Clone() *Unit {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}

// Version records the contract name and version written on create and migrate.
type Version struct {
	Contract string `json:"contract"`
	Version  string `json:"version"`
}

// Tier is the settlement bracket assigned to a voter.
type Tier uint8

const (
	TierNone Tier = iota
	TierFirst
	TierSecond
	TierThird
)

// Valid reports whether the tier is one of the three assignable brackets.
func (t Tier) Valid() bool { return t >= TierFirst && t <= TierThird }

// payoutRatio returns the numerator and denominator applied to principal.
func (t Tier) payoutRatio() (uint64, uint64) {
	switch t {
	case TierFirst:
		return 2, 1
	case TierSecond:
		return 1, 1
	default:
		return 1, 2
	}
}

func zeroIfNil(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
