package blindbox

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"ddbox/core/events"
	"ddbox/core/types"
	"ddbox/crypto"
	"ddbox/native/common"
)

// ContractName and ContractVersion are recorded on create and migrate.
const (
	ContractName    = "ddbox:blindbox"
	ContractVersion = "1.0.0"
)

type engineState interface {
	BlindBoxConfig() (*Config, bool, error)
	BlindBoxPutConfig(cfg *Config) error
	BlindBoxVersion() (*Version, bool, error)
	BlindBoxPutVersion(v *Version) error

	BlindBoxDeposit(addr string) (*uint256.Int, error)
	BlindBoxPutDeposit(addr string, amount *uint256.Int) error

	BlindBoxCommitment(addr string) (string, bool, error)
	BlindBoxPutCommitment(addr string, commitment string) error
	BlindBoxReveal(addr string) (*Reveal, bool, error)
	BlindBoxPutReveal(addr string, reveal *Reveal) error
	// BlindBoxIterateReveals visits reveal records in ascending address order.
	BlindBoxIterateReveals(fn func(addr string, reveal *Reveal) bool) error

	BlindBoxTier(addr string) (Tier, bool, error)
	BlindBoxPutTier(addr string, tier Tier) error
	// BlindBoxIterateTiers visits tier assignments with addresses strictly
	// greater than startAfter, in ascending order.
	BlindBoxIterateTiers(startAfter string, fn func(addr string, tier Tier) bool) error

	BlindBoxUnit(id uint64) (*Unit, bool, error)
	BlindBoxPutUnit(unit *Unit) error
	// BlindBoxIterateUnits visits units with ids strictly greater than
	// startAfter (all units when nil), in ascending id order.
	BlindBoxIterateUnits(startAfter *uint64, fn func(unit *Unit) bool) error
	// BlindBoxIterateOwnerUnits visits ids held by owner strictly greater than
	// startAfter, in ascending order.
	BlindBoxIterateOwnerUnits(owner string, startAfter *uint64, fn func(id uint64) bool) error
	BlindBoxOperator(owner, operator string) (bool, error)
	BlindBoxSetOperator(owner, operator string, approved bool) error
}

// Engine wires the blind-box sale logic with persistence and event emission.
type Engine struct {
	state    engineState
	emitter  events.Emitter
	validate func(string) error
}

// NewEngine constructs a blind-box engine with default dependencies.
func NewEngine() *Engine {
	return &Engine{
		emitter:  events.NoopEmitter{},
		validate: crypto.ValidateAddress,
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetAddressValidator overrides the address format check applied to
// recipients, spenders, operators and ledger handles.
func (e *Engine) SetAddressValidator(fn func(string) error) {
	if fn == nil {
		e.validate = crypto.ValidateAddress
		return
	}
	e.validate = fn
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || evt == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(WrapEvent(evt))
}

func (e *Engine) checkAddress(addr string) (string, error) {
	trimmed := strings.TrimSpace(addr)
	validate := e.validate
	if validate == nil {
		validate = crypto.ValidateAddress
	}
	if err := validate(trimmed); err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidAddress, addr, err)
	}
	return trimmed, nil
}

// loadConfig returns the stored configuration or ErrNotInitialised.
func (e *Engine) loadConfig() (*Config, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	cfg, ok, err := e.state.BlindBoxConfig()
	if err != nil {
		return nil, fmt.Errorf("blindbox engine: load config: %w", err)
	}
	if !ok || cfg == nil {
		return nil, ErrNotInitialised
	}
	return cfg, nil
}

func (e *Engine) storeConfig(cfg *Config) error {
	if err := e.state.BlindBoxPutConfig(cfg); err != nil {
		return fmt.Errorf("blindbox engine: store config: %w", err)
	}
	return nil
}

func requireOwner(cfg *Config, caller string) error {
	if cfg.Owner != caller {
		return ErrUnauthorized
	}
	return nil
}

func requireActive(cfg *Config) error {
	if err := common.Guard(cfg, ModuleName); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	return nil
}

// ledger returns the ownership strategy selected at creation.
func (e *Engine) ledger(cfg *Config) UnitLedger {
	if cfg.LedgerMode == LedgerDelegated {
		return delegatedLedger{}
	}
	return internalLedger{state: e.state}
}
