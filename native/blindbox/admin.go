package blindbox

import (
	"fmt"
	"strings"

	"ddbox/core/types"
)

// CreateParams configures a new sale.
type CreateParams struct {
	Scale     Scale
	BasePrice types.Coin
	// FirstPrizeCount overrides the scale default when set.
	FirstPrizeCount *uint32
	LedgerMode      LedgerMode
	// ExternalLedger optionally registers the delegated ownership service at
	// creation time.
	ExternalLedger string
}

var allowedTransitions = map[Phase]map[Phase]bool{
	PhaseCommit: {PhaseReveal: true, PhaseClosed: true},
	PhaseReveal: {PhaseCommit: true, PhaseClosed: true},
	PhaseClosed: {PhaseCommit: true},
}

// CanTransition reports whether the phase machine permits from -> to.
func CanTransition(from, to Phase) bool {
	return allowedTransitions[from][to]
}

func validatePrice(price types.Coin) error {
	if strings.TrimSpace(price.Denom) == "" {
		return fmt.Errorf("%w: denom required", ErrInvalidPrice)
	}
	if price.IsZero() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidPrice)
	}
	return nil
}

// Create initialises the contract. The caller becomes the owner.
func (e *Engine) Create(env types.Env, params CreateParams) (*Config, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if _, ok, err := e.state.BlindBoxConfig(); err != nil {
		return nil, fmt.Errorf("blindbox engine: load config: %w", err)
	} else if ok {
		return nil, ErrAlreadyInitialised
	}
	if !params.Scale.Valid() {
		return nil, ErrInvalidScale
	}
	if err := validatePrice(params.BasePrice); err != nil {
		return nil, err
	}
	if params.LedgerMode != LedgerInternal && params.LedgerMode != LedgerDelegated {
		return nil, fmt.Errorf("blindbox engine: unknown ledger mode %d", params.LedgerMode)
	}
	firstPrize := params.Scale.DefaultFirstPrizeCount()
	if params.FirstPrizeCount != nil {
		firstPrize = *params.FirstPrizeCount
	}
	cfg := &Config{
		Owner:           env.Caller,
		TotalSupply:     params.Scale.TotalSupply(),
		Scale:           params.Scale,
		BasePrice:       params.BasePrice.Clone(),
		Phase:           PhaseCommit,
		FirstPrizeCount: firstPrize,
		LedgerMode:      params.LedgerMode,
	}
	if handle := strings.TrimSpace(params.ExternalLedger); handle != "" {
		if cfg.LedgerMode != LedgerDelegated {
			return nil, fmt.Errorf("%w: external ledger requires delegated mode", ErrInvalidState)
		}
		checked, err := e.checkAddress(handle)
		if err != nil {
			return nil, err
		}
		cfg.ExternalLedger = checked
	}
	if err := e.storeConfig(cfg); err != nil {
		return nil, err
	}
	if err := e.writeVersion(); err != nil {
		return nil, err
	}
	e.emit(CreatedEvent(cfg))
	return cfg.Clone(), nil
}

func (e *Engine) writeVersion() error {
	if err := e.state.BlindBoxPutVersion(&Version{Contract: ContractName, Version: ContractVersion}); err != nil {
		return fmt.Errorf("blindbox engine: store version: %w", err)
	}
	return nil
}

// SetPrice replaces the base price.
func (e *Engine) SetPrice(env types.Env, price types.Coin) error {
	cfg, err := e.loadConfig()
	if err != nil {
		return err
	}
	if err := requireOwner(cfg, env.Caller); err != nil {
		return err
	}
	if err := validatePrice(price); err != nil {
		return err
	}
	cfg.BasePrice = price.Clone()
	if err := e.storeConfig(cfg); err != nil {
		return err
	}
	e.emit(PriceUpdatedEvent(cfg.BasePrice))
	return nil
}

// SetPause toggles the pause flag.
func (e *Engine) SetPause(env types.Env, paused bool) error {
	cfg, err := e.loadConfig()
	if err != nil {
		return err
	}
	if err := requireOwner(cfg, env.Caller); err != nil {
		return err
	}
	cfg.Paused = paused
	if err := e.storeConfig(cfg); err != nil {
		return err
	}
	e.emit(PauseUpdatedEvent(paused))
	return nil
}

// SetWindow replaces one of the phase windows.
func (e *Engine) SetWindow(env types.Env, kind WindowKind, window PhaseWindow) error {
	cfg, err := e.loadConfig()
	if err != nil {
		return err
	}
	if err := requireOwner(cfg, env.Caller); err != nil {
		return err
	}
	if kind > WindowClosed {
		return fmt.Errorf("blindbox engine: unknown window %d", kind)
	}
	cfg.setWindow(kind, window.Clone())
	if err := e.storeConfig(cfg); err != nil {
		return err
	}
	e.emit(WindowUpdatedEvent(kind, window))
	return nil
}

// SetPhase moves the phase machine. Transitions outside the allowed table,
// self-loops included, fail with InvalidStateTransitionError.
func (e *Engine) SetPhase(env types.Env, phase Phase) error {
	cfg, err := e.loadConfig()
	if err != nil {
		return err
	}
	if err := requireOwner(cfg, env.Caller); err != nil {
		return err
	}
	if !CanTransition(cfg.Phase, phase) {
		return &InvalidStateTransitionError{From: cfg.Phase, To: phase}
	}
	from := cfg.Phase
	cfg.Phase = phase
	if err := e.storeConfig(cfg); err != nil {
		return err
	}
	e.emit(PhaseUpdatedEvent(from, phase))
	return nil
}

// Migrate switches the deployment to a new scale. Per-participant records are
// untouched; the supply may not shrink below the units already issued.
func (e *Engine) Migrate(env types.Env, scale Scale) (*Config, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	if err := requireOwner(cfg, env.Caller); err != nil {
		return nil, err
	}
	if !scale.Valid() {
		return nil, ErrInvalidScale
	}
	if cfg.NextUnitID > scale.TotalSupply() {
		return nil, fmt.Errorf("%w: %d issued, %s supply is %d", ErrSupplyBelowCursor, cfg.NextUnitID, scale, scale.TotalSupply())
	}
	from := cfg.Scale
	cfg.Scale = scale
	cfg.TotalSupply = scale.TotalSupply()
	cfg.FirstPrizeCount = scale.DefaultFirstPrizeCount()
	if err := e.storeConfig(cfg); err != nil {
		return nil, err
	}
	if err := e.writeVersion(); err != nil {
		return nil, err
	}
	e.emit(MigratedEvent(from, scale, cfg.TotalSupply))
	return cfg.Clone(), nil
}

// RegisterExternalLedger records the ownership service used by the delegated
// variant.
func (e *Engine) RegisterExternalLedger(env types.Env, handle string) error {
	cfg, err := e.loadConfig()
	if err != nil {
		return err
	}
	if err := requireOwner(cfg, env.Caller); err != nil {
		return err
	}
	if cfg.LedgerMode != LedgerDelegated {
		return fmt.Errorf("%w: contract keeps an internal ledger", ErrInvalidState)
	}
	checked, err := e.checkAddress(handle)
	if err != nil {
		return err
	}
	cfg.ExternalLedger = checked
	if err := e.storeConfig(cfg); err != nil {
		return err
	}
	e.emit(LedgerRegisteredEvent(checked))
	return nil
}
