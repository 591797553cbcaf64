package blindbox

import (
	"bytes"
	"sort"

	"github.com/holiman/uint256"

	"ddbox/crypto"
)

type operatorKey struct {
	owner    string
	operator string
}

type mockState struct {
	config      *Config
	version     *Version
	deposits    map[string]*uint256.Int
	commitments map[string]string
	reveals     map[string]*Reveal
	tiers       map[string]Tier
	units       map[uint64]*Unit
	operators   map[operatorKey]bool
	failPut     error

	revealVisits int
}

func newMockState() *mockState {
	return &mockState{
		deposits:    make(map[string]*uint256.Int),
		commitments: make(map[string]string),
		reveals:     make(map[string]*Reveal),
		tiers:       make(map[string]Tier),
		units:       make(map[uint64]*Unit),
		operators:   make(map[operatorKey]bool),
	}
}

func (m *mockState) BlindBoxConfig() (*Config, bool, error) {
	if m.config == nil {
		return nil, false, nil
	}
	return m.config.Clone(), true, nil
}

func (m *mockState) BlindBoxPutConfig(cfg *Config) error {
	if m.failPut != nil {
		return m.failPut
	}
	m.config = cfg.Clone()
	return nil
}

func (m *mockState) BlindBoxVersion() (*Version, bool, error) {
	if m.version == nil {
		return nil, false, nil
	}
	v := *m.version
	return &v, true, nil
}

func (m *mockState) BlindBoxPutVersion(v *Version) error {
	clone := *v
	m.version = &clone
	return nil
}

func (m *mockState) BlindBoxDeposit(addr string) (*uint256.Int, error) {
	amount, ok := m.deposits[addr]
	if !ok {
		return new(uint256.Int), nil
	}
	return new(uint256.Int).Set(amount), nil
}

func (m *mockState) BlindBoxPutDeposit(addr string, amount *uint256.Int) error {
	m.deposits[addr] = new(uint256.Int).Set(amount)
	return nil
}

func (m *mockState) BlindBoxCommitment(addr string) (string, bool, error) {
	c, ok := m.commitments[addr]
	return c, ok, nil
}

func (m *mockState) BlindBoxPutCommitment(addr string, commitment string) error {
	m.commitments[addr] = commitment
	return nil
}

func (m *mockState) BlindBoxReveal(addr string) (*Reveal, bool, error) {
	r, ok := m.reveals[addr]
	if !ok {
		return nil, false, nil
	}
	clone := *r
	return &clone, true, nil
}

func (m *mockState) BlindBoxPutReveal(addr string, reveal *Reveal) error {
	clone := *reveal
	m.reveals[addr] = &clone
	return nil
}

func sortedKeys[V any](in map[string]V) []string {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *mockState) BlindBoxIterateReveals(fn func(addr string, reveal *Reveal) bool) error {
	for _, addr := range sortedKeys(m.reveals) {
		m.revealVisits++
		clone := *m.reveals[addr]
		if !fn(addr, &clone) {
			return nil
		}
	}
	return nil
}

func (m *mockState) BlindBoxTier(addr string) (Tier, bool, error) {
	t, ok := m.tiers[addr]
	return t, ok, nil
}

func (m *mockState) BlindBoxPutTier(addr string, tier Tier) error {
	m.tiers[addr] = tier
	return nil
}

func (m *mockState) BlindBoxIterateTiers(startAfter string, fn func(addr string, tier Tier) bool) error {
	for _, addr := range sortedKeys(m.tiers) {
		if startAfter != "" && addr <= startAfter {
			continue
		}
		if !fn(addr, m.tiers[addr]) {
			return nil
		}
	}
	return nil
}

func (m *mockState) BlindBoxUnit(id uint64) (*Unit, bool, error) {
	unit, ok := m.units[id]
	if !ok {
		return nil, false, nil
	}
	return unit.Clone(), true, nil
}

func (m *mockState) BlindBoxPutUnit(unit *Unit) error {
	m.units[unit.ID] = unit.Clone()
	return nil
}

func (m *mockState) sortedUnitIDs() []uint64 {
	ids := make([]uint64, 0, len(m.units))
	for id := range m.units {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m *mockState) BlindBoxIterateUnits(startAfter *uint64, fn func(unit *Unit) bool) error {
	for _, id := range m.sortedUnitIDs() {
		if startAfter != nil && id <= *startAfter {
			continue
		}
		if !fn(m.units[id].Clone()) {
			return nil
		}
	}
	return nil
}

func (m *mockState) BlindBoxIterateOwnerUnits(owner string, startAfter *uint64, fn func(id uint64) bool) error {
	for _, id := range m.sortedUnitIDs() {
		if m.units[id].Owner != owner || (startAfter != nil && id <= *startAfter) {
			continue
		}
		if !fn(id) {
			return nil
		}
	}
	return nil
}

func (m *mockState) BlindBoxOperator(owner, operator string) (bool, error) {
	return m.operators[operatorKey{owner: owner, operator: operator}], nil
}

func (m *mockState) BlindBoxSetOperator(owner, operator string, approved bool) error {
	key := operatorKey{owner: owner, operator: operator}
	if approved {
		m.operators[key] = true
		return nil
	}
	delete(m.operators, key)
	return nil
}

func testAddr(b byte) string {
	return crypto.MustNewAddress(crypto.AccountPrefix, bytes.Repeat([]byte{b}, 20)).String()
}

func testContract() string {
	return crypto.MustNewAddress(crypto.ContractPrefix, bytes.Repeat([]byte{0xcc}, 20)).String()
}
