package blindbox

import (
	"fmt"

	"github.com/holiman/uint256"
)

const (
	// DefaultPageLimit applies when a paginated query sets no limit.
	DefaultPageLimit = 50
	// MaxPageLimit caps every paginated query.
	MaxPageLimit = 1000
)

// TierPage is one page of a tier membership listing. NextStartAfter is set
// when more matching addresses exist past the page; it is the cursor to pass
// as startAfter on the following call.
type TierPage struct {
	Addresses      []string `json:"addresses"`
	NextStartAfter *string  `json:"next_start_after,omitempty"`
}

// UnitPage is one page of unit ids.
type UnitPage struct {
	IDs            []uint64 `json:"ids"`
	NextStartAfter *uint64  `json:"next_start_after,omitempty"`
}

func pageLimit(limit *uint32) int {
	if limit == nil {
		return DefaultPageLimit
	}
	if *limit > MaxPageLimit {
		return MaxPageLimit
	}
	return int(*limit)
}

// Config returns a snapshot of the configuration.
func (e *Engine) Config() (*Config, error) {
	return e.loadConfig()
}

// Version returns the recorded contract version.
func (e *Engine) Version() (*Version, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	v, ok, err := e.state.BlindBoxVersion()
	if err != nil {
		return nil, fmt.Errorf("blindbox engine: load version: %w", err)
	}
	if !ok {
		return nil, ErrNotInitialised
	}
	return v, nil
}

// DepositOf returns the cumulative principal of addr; zero when none.
func (e *Engine) DepositOf(addr string) (*uint256.Int, error) {
	if _, err := e.loadConfig(); err != nil {
		return nil, err
	}
	checked, err := e.checkAddress(addr)
	if err != nil {
		return nil, err
	}
	amount, err := e.state.BlindBoxDeposit(checked)
	if err != nil {
		return nil, fmt.Errorf("blindbox engine: load deposit: %w", err)
	}
	return zeroIfNil(amount), nil
}

// TierOf returns the settled tier of addr, or TierNone.
func (e *Engine) TierOf(addr string) (Tier, error) {
	if _, err := e.loadConfig(); err != nil {
		return TierNone, err
	}
	checked, err := e.checkAddress(addr)
	if err != nil {
		return TierNone, err
	}
	tier, ok, err := e.state.BlindBoxTier(checked)
	if err != nil {
		return TierNone, fmt.Errorf("blindbox engine: load tier: %w", err)
	}
	if !ok {
		return TierNone, nil
	}
	return tier, nil
}

// TierList pages through the addresses assigned to tier in ascending order,
// starting strictly after startAfter.
func (e *Engine) TierList(tier Tier, startAfter string, limit *uint32) (*TierPage, error) {
	if _, err := e.loadConfig(); err != nil {
		return nil, err
	}
	if !tier.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTier, tier)
	}
	if startAfter != "" {
		checked, err := e.checkAddress(startAfter)
		if err != nil {
			return nil, err
		}
		startAfter = checked
	}
	take := pageLimit(limit)
	page := &TierPage{Addresses: make([]string, 0, take)}
	cursor := startAfter
	err := e.state.BlindBoxIterateTiers(startAfter, func(addr string, t Tier) bool {
		if t != tier {
			return true
		}
		if len(page.Addresses) < take {
			page.Addresses = append(page.Addresses, addr)
			cursor = addr
			return true
		}
		next := cursor
		page.NextStartAfter = &next
		return false
	})
	if err != nil {
		return nil, fmt.Errorf("blindbox engine: list tiers: %w", err)
	}
	return page, nil
}

func (e *Engine) ownershipConfig() (*Config, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.LedgerMode == LedgerDelegated {
		if cfg.ExternalLedger == "" {
			return nil, ErrLedgerNotConfigured
		}
		return nil, fmt.Errorf("%w: query %s directly", ErrDelegatedLedger, cfg.ExternalLedger)
	}
	return cfg, nil
}

// UnitInfo returns the owner and approval of a unit.
func (e *Engine) UnitInfo(id uint64) (*Unit, error) {
	if _, err := e.ownershipConfig(); err != nil {
		return nil, err
	}
	unit, ok, err := e.state.BlindBoxUnit(id)
	if err != nil {
		return nil, fmt.Errorf("blindbox engine: load unit %d: %w", id, err)
	}
	if !ok || unit == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnitNotFound, id)
	}
	return unit, nil
}

// OwnerOf returns the owner of a unit.
func (e *Engine) OwnerOf(id uint64) (string, error) {
	unit, err := e.UnitInfo(id)
	if err != nil {
		return "", err
	}
	return unit.Owner, nil
}

// Approval returns the single-unit approval, empty when none.
func (e *Engine) Approval(id uint64) (string, error) {
	unit, err := e.UnitInfo(id)
	if err != nil {
		return "", err
	}
	return unit.Approval, nil
}

// IsApprovedForAll reports whether operator may act for every unit of owner.
func (e *Engine) IsApprovedForAll(owner, operator string) (bool, error) {
	if _, err := e.ownershipConfig(); err != nil {
		return false, err
	}
	o, err := e.checkAddress(owner)
	if err != nil {
		return false, err
	}
	op, err := e.checkAddress(operator)
	if err != nil {
		return false, err
	}
	approved, err := e.state.BlindBoxOperator(o, op)
	if err != nil {
		return false, fmt.Errorf("blindbox engine: load operator: %w", err)
	}
	return approved, nil
}

func collectIDs(take int, startAfter *uint64, iterate func(fn func(id uint64) bool) error) (*UnitPage, error) {
	page := &UnitPage{IDs: make([]uint64, 0, take)}
	cursor := startAfter
	err := iterate(func(id uint64) bool {
		if len(page.IDs) < take {
			page.IDs = append(page.IDs, id)
			last := id
			cursor = &last
			return true
		}
		page.NextStartAfter = cursor
		return false
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// Units pages through the ids held by owner.
func (e *Engine) Units(owner string, startAfter *uint64, limit *uint32) (*UnitPage, error) {
	if _, err := e.ownershipConfig(); err != nil {
		return nil, err
	}
	checked, err := e.checkAddress(owner)
	if err != nil {
		return nil, err
	}
	page, err := collectIDs(pageLimit(limit), startAfter, func(fn func(uint64) bool) error {
		return e.state.BlindBoxIterateOwnerUnits(checked, startAfter, fn)
	})
	if err != nil {
		return nil, fmt.Errorf("blindbox engine: list units: %w", err)
	}
	return page, nil
}

// AllUnits pages through every issued id.
func (e *Engine) AllUnits(startAfter *uint64, limit *uint32) (*UnitPage, error) {
	if _, err := e.ownershipConfig(); err != nil {
		return nil, err
	}
	page, err := collectIDs(pageLimit(limit), startAfter, func(fn func(uint64) bool) error {
		return e.state.BlindBoxIterateUnits(startAfter, func(unit *Unit) bool { return fn(unit.ID) })
	})
	if err != nil {
		return nil, fmt.Errorf("blindbox engine: list units: %w", err)
	}
	return page, nil
}
