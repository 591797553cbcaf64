package state

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"ddbox/core/types"
	"ddbox/native/blindbox"
)

const (
	windowStartHeight uint8 = 1 << iota
	windowEndHeight
	windowStartTime
	windowEndTime
)

// storedWindow flags which bounds are set; RLP cannot tell an absent uint64
// from zero.
type storedWindow struct {
	Flags       uint8
	StartHeight uint64
	EndHeight   uint64
	StartTime   uint64
	EndTime     uint64
}

func newStoredWindow(w blindbox.PhaseWindow) storedWindow {
	var out storedWindow
	if w.StartHeight != nil {
		out.Flags |= windowStartHeight
		out.StartHeight = *w.StartHeight
	}
	if w.EndHeight != nil {
		out.Flags |= windowEndHeight
		out.EndHeight = *w.EndHeight
	}
	if w.StartTime != nil {
		out.Flags |= windowStartTime
		out.StartTime = *w.StartTime
	}
	if w.EndTime != nil {
		out.Flags |= windowEndTime
		out.EndTime = *w.EndTime
	}
	return out
}

func (s storedWindow) toWindow() blindbox.PhaseWindow {
	var w blindbox.PhaseWindow
	pick := func(flag uint8, v uint64) *uint64 {
		if s.Flags&flag == 0 {
			return nil
		}
		out := v
		return &out
	}
	w.StartHeight = pick(windowStartHeight, s.StartHeight)
	w.EndHeight = pick(windowEndHeight, s.EndHeight)
	w.StartTime = pick(windowStartTime, s.StartTime)
	w.EndTime = pick(windowEndTime, s.EndTime)
	return w
}

type storedConfig struct {
	Owner           string
	TotalSupply     uint64
	Scale           uint8
	BaseDenom       string
	BaseAmount      *big.Int
	Phase           uint8
	NextUnitID      uint64
	Paused          bool
	CommitWindow    storedWindow
	RevealWindow    storedWindow
	ClosedWindow    storedWindow
	FirstPrizeCount uint32
	LedgerMode      uint8
	ExternalLedger  string
}

func newStoredConfig(cfg *blindbox.Config) *storedConfig {
	amount := new(big.Int)
	if cfg.BasePrice.Amount != nil {
		amount = cfg.BasePrice.Amount.ToBig()
	}
	return &storedConfig{
		Owner:           cfg.Owner,
		TotalSupply:     cfg.TotalSupply,
		Scale:           uint8(cfg.Scale),
		BaseDenom:       cfg.BasePrice.Denom,
		BaseAmount:      amount,
		Phase:           uint8(cfg.Phase),
		NextUnitID:      cfg.NextUnitID,
		Paused:          cfg.Paused,
		CommitWindow:    newStoredWindow(cfg.CommitWindow),
		RevealWindow:    newStoredWindow(cfg.RevealWindow),
		ClosedWindow:    newStoredWindow(cfg.ClosedWindow),
		FirstPrizeCount: cfg.FirstPrizeCount,
		LedgerMode:      uint8(cfg.LedgerMode),
		ExternalLedger:  cfg.ExternalLedger,
	}
}

func (s *storedConfig) toConfig() (*blindbox.Config, error) {
	amount, err := fromBig(s.BaseAmount)
	if err != nil {
		return nil, fmt.Errorf("base price: %w", err)
	}
	return &blindbox.Config{
		Owner:           s.Owner,
		TotalSupply:     s.TotalSupply,
		Scale:           blindbox.Scale(s.Scale),
		BasePrice:       types.Coin{Denom: s.BaseDenom, Amount: amount},
		Phase:           blindbox.Phase(s.Phase),
		NextUnitID:      s.NextUnitID,
		Paused:          s.Paused,
		CommitWindow:    s.CommitWindow.toWindow(),
		RevealWindow:    s.RevealWindow.toWindow(),
		ClosedWindow:    s.ClosedWindow.toWindow(),
		FirstPrizeCount: s.FirstPrizeCount,
		LedgerMode:      blindbox.LedgerMode(s.LedgerMode),
		ExternalLedger:  s.ExternalLedger,
	}, nil
}

type storedReveal struct {
	Value string
	Salt  string
}

type storedUnit struct {
	Owner    string
	Approval string
}

type storedVersion struct {
	Contract string
	Version  string
}

func fromBig(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("amount %s overflows 256 bits", v)
	}
	return out, nil
}

// BlindBoxConfig loads the singleton configuration.
func (m *Manager) BlindBoxConfig() (*blindbox.Config, bool, error) {
	stored := new(storedConfig)
	ok, err := m.KVGet(blindBoxConfigKey, stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	cfg, err := stored.toConfig()
	if err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}

// BlindBoxPutConfig persists the singleton configuration.
func (m *Manager) BlindBoxPutConfig(cfg *blindbox.Config) error {
	if cfg == nil {
		return fmt.Errorf("blindbox: config must not be nil")
	}
	return m.KVPut(blindBoxConfigKey, newStoredConfig(cfg))
}

func (m *Manager) BlindBoxVersion() (*blindbox.Version, bool, error) {
	stored := new(storedVersion)
	ok, err := m.KVGet(blindBoxContractVersionKey, stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &blindbox.Version{Contract: stored.Contract, Version: stored.Version}, true, nil
}

func (m *Manager) BlindBoxPutVersion(v *blindbox.Version) error {
	if v == nil {
		return fmt.Errorf("blindbox: version must not be nil")
	}
	return m.KVPut(blindBoxContractVersionKey, &storedVersion{Contract: v.Contract, Version: v.Version})
}

// BlindBoxDeposit returns the cumulative principal of addr, zero when absent.
func (m *Manager) BlindBoxDeposit(addr string) (*uint256.Int, error) {
	stored := new(big.Int)
	ok, err := m.KVGet(depositKey(addr), stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(uint256.Int), nil
	}
	return fromBig(stored)
}

func (m *Manager) BlindBoxPutDeposit(addr string, amount *uint256.Int) error {
	if amount == nil {
		amount = new(uint256.Int)
	}
	return m.KVPut(depositKey(addr), amount.ToBig())
}

func (m *Manager) BlindBoxCommitment(addr string) (string, bool, error) {
	var commitment string
	ok, err := m.KVGet(commitKey(addr), &commitment)
	if err != nil || !ok {
		return "", ok, err
	}
	return commitment, true, nil
}

func (m *Manager) BlindBoxPutCommitment(addr string, commitment string) error {
	return m.KVPut(commitKey(addr), commitment)
}

func (m *Manager) BlindBoxReveal(addr string) (*blindbox.Reveal, bool, error) {
	stored := new(storedReveal)
	ok, err := m.KVGet(revealKey(addr), stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &blindbox.Reveal{Value: stored.Value, Salt: stored.Salt}, true, nil
}

func (m *Manager) BlindBoxPutReveal(addr string, reveal *blindbox.Reveal) error {
	if reveal == nil {
		return fmt.Errorf("blindbox: reveal must not be nil")
	}
	return m.KVPut(revealKey(addr), &storedReveal{Value: reveal.Value, Salt: reveal.Salt})
}

// BlindBoxIterateReveals visits reveals in ascending address order.
func (m *Manager) BlindBoxIterateReveals(fn func(addr string, reveal *blindbox.Reveal) bool) error {
	return m.kvIterate(blindBoxRevealPrefix, nil, func(suffix, value []byte) (bool, error) {
		stored := new(storedReveal)
		if err := rlp.DecodeBytes(value, stored); err != nil {
			return false, fmt.Errorf("decode reveal %s: %w", suffix, err)
		}
		return fn(string(suffix), &blindbox.Reveal{Value: stored.Value, Salt: stored.Salt}), nil
	})
}

func (m *Manager) BlindBoxTier(addr string) (blindbox.Tier, bool, error) {
	var tier uint8
	ok, err := m.KVGet(tierKey(addr), &tier)
	if err != nil || !ok {
		return blindbox.TierNone, ok, err
	}
	return blindbox.Tier(tier), true, nil
}

func (m *Manager) BlindBoxPutTier(addr string, tier blindbox.Tier) error {
	return m.KVPut(tierKey(addr), uint8(tier))
}

// BlindBoxIterateTiers visits tier assignments after startAfter in ascending
// address order.
func (m *Manager) BlindBoxIterateTiers(startAfter string, fn func(addr string, tier blindbox.Tier) bool) error {
	var after []byte
	if startAfter != "" {
		after = []byte(startAfter)
	}
	return m.kvIterate(blindBoxTierPrefix, after, func(suffix, value []byte) (bool, error) {
		var tier uint8
		if err := rlp.DecodeBytes(value, &tier); err != nil {
			return false, fmt.Errorf("decode tier %s: %w", suffix, err)
		}
		return fn(string(suffix), blindbox.Tier(tier)), nil
	})
}

func (m *Manager) BlindBoxUnit(id uint64) (*blindbox.Unit, bool, error) {
	stored := new(storedUnit)
	ok, err := m.KVGet(unitKey(id), stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &blindbox.Unit{ID: id, Owner: stored.Owner, Approval: stored.Approval}, true, nil
}

// BlindBoxPutUnit stores a unit and keeps the owner index in step with it.
func (m *Manager) BlindBoxPutUnit(unit *blindbox.Unit) error {
	if unit == nil {
		return fmt.Errorf("blindbox: unit must not be nil")
	}
	previous, ok, err := m.BlindBoxUnit(unit.ID)
	if err != nil {
		return err
	}
	if ok && previous.Owner != unit.Owner {
		if err := m.KVDelete(ownerUnitKey(previous.Owner, unit.ID)); err != nil {
			return err
		}
	}
	if err := m.KVPut(unitKey(unit.ID), &storedUnit{Owner: unit.Owner, Approval: unit.Approval}); err != nil {
		return err
	}
	return m.KVPut(ownerUnitKey(unit.Owner, unit.ID), uint8(1))
}

func decodeUnitID(raw []byte) (uint64, error) {
	if len(raw) != 8 {
		return 0, fmt.Errorf("malformed unit key %x", raw)
	}
	return binary.BigEndian.Uint64(raw), nil
}

func unitCursor(startAfter *uint64) []byte {
	if startAfter == nil {
		return nil
	}
	return encodeUnitID(*startAfter)
}

// BlindBoxIterateUnits visits units after startAfter in ascending id order.
func (m *Manager) BlindBoxIterateUnits(startAfter *uint64, fn func(unit *blindbox.Unit) bool) error {
	return m.kvIterate(blindBoxUnitPrefix, unitCursor(startAfter), func(suffix, value []byte) (bool, error) {
		id, err := decodeUnitID(suffix)
		if err != nil {
			return false, err
		}
		stored := new(storedUnit)
		if err := rlp.DecodeBytes(value, stored); err != nil {
			return false, fmt.Errorf("decode unit %d: %w", id, err)
		}
		return fn(&blindbox.Unit{ID: id, Owner: stored.Owner, Approval: stored.Approval}), nil
	})
}

// BlindBoxIterateOwnerUnits visits ids held by owner after startAfter.
func (m *Manager) BlindBoxIterateOwnerUnits(owner string, startAfter *uint64, fn func(id uint64) bool) error {
	return m.kvIterate(ownerUnitPrefix(owner), unitCursor(startAfter), func(suffix, _ []byte) (bool, error) {
		id, err := decodeUnitID(suffix)
		if err != nil {
			return false, err
		}
		return fn(id), nil
	})
}

func (m *Manager) BlindBoxOperator(owner, operator string) (bool, error) {
	return m.KVGet(operatorKey(owner, operator), nil)
}

func (m *Manager) BlindBoxSetOperator(owner, operator string, approved bool) error {
	if !approved {
		return m.KVDelete(operatorKey(owner, operator))
	}
	return m.KVPut(operatorKey(owner, operator), uint8(1))
}
