package blindbox

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"

	"ddbox/core/events"
	"ddbox/core/types"
)

var (
	ownerAddr = testAddr(0x01)
	aliceAddr = testAddr(0x02)
	bobAddr   = testAddr(0x03)
	carolAddr = testAddr(0x04)
)

func envFor(caller string) types.Env {
	return types.Env{Caller: caller, Height: 100, Time: 1_700_000_000, Contract: testContract()}
}

func newTestEngine(t *testing.T) (*Engine, *mockState, *events.Recorder) {
	t.Helper()
	engine := NewEngine()
	state := newMockState()
	recorder := events.NewRecorder()
	engine.SetState(state)
	engine.SetEmitter(recorder)
	return engine, state, recorder
}

func createSale(t *testing.T, engine *Engine, scale Scale, mode LedgerMode) *Config {
	t.Helper()
	cfg, err := engine.Create(envFor(ownerAddr), CreateParams{
		Scale:      scale,
		BasePrice:  types.NewCoin("ujunox", 100),
		LedgerMode: mode,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return cfg
}

func TestCreateDefaults(t *testing.T) {
	engine, state, recorder := newTestEngine(t)
	cfg := createSale(t, engine, ScaleSmall, LedgerInternal)

	if cfg.Owner != ownerAddr || cfg.Phase != PhaseCommit || cfg.NextUnitID != 0 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.TotalSupply != 100 || cfg.FirstPrizeCount != 3 {
		t.Fatalf("scale defaults not applied: supply=%d first=%d", cfg.TotalSupply, cfg.FirstPrizeCount)
	}
	if !cfg.CommitWindow.IsUnbounded() || !cfg.RevealWindow.IsUnbounded() || !cfg.ClosedWindow.IsUnbounded() {
		t.Fatalf("expected unset windows")
	}
	if state.version == nil || state.version.Contract != ContractName {
		t.Fatalf("expected version record, got %+v", state.version)
	}
	evts := recorder.Events()
	if len(evts) != 1 || evts[0].Type != EventTypeCreated {
		t.Fatalf("unexpected events %+v", evts)
	}

	if _, err := engine.Create(envFor(aliceAddr), CreateParams{Scale: ScaleTiny, BasePrice: types.NewCoin("ujunox", 1)}); !errors.Is(err, ErrAlreadyInitialised) {
		t.Fatalf("expected ErrAlreadyInitialised, got %v", err)
	}
}

func TestCreateOverridesAndValidation(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	if _, err := engine.Create(envFor(ownerAddr), CreateParams{Scale: ScaleTiny, BasePrice: types.NewCoin("", 10)}); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice for empty denom, got %v", err)
	}
	if _, err := engine.Create(envFor(ownerAddr), CreateParams{Scale: ScaleTiny, BasePrice: types.NewCoin("ujunox", 0)}); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice for zero amount, got %v", err)
	}
	if _, err := engine.Create(envFor(ownerAddr), CreateParams{Scale: Scale(42), BasePrice: types.NewCoin("ujunox", 1)}); !errors.Is(err, ErrInvalidScale) {
		t.Fatalf("expected ErrInvalidScale, got %v", err)
	}
	first := uint32(7)
	cfg, err := engine.Create(envFor(ownerAddr), CreateParams{
		Scale:           ScaleLarge,
		BasePrice:       types.NewCoin("ujunox", 1),
		FirstPrizeCount: &first,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if cfg.FirstPrizeCount != 7 || cfg.TotalSupply != 10000 {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestScaleTable(t *testing.T) {
	cases := []struct {
		scale  Scale
		supply uint64
		first  uint32
	}{
		{ScaleTiny, 10, 1},
		{ScaleSmall, 100, 3},
		{ScaleMedium, 1000, 3},
		{ScaleLarge, 10000, 5},
		{ScaleHuge, 100000, 5},
	}
	for _, tc := range cases {
		if tc.scale.TotalSupply() != tc.supply || tc.scale.DefaultFirstPrizeCount() != tc.first {
			t.Fatalf("%s: got (%d,%d)", tc.scale, tc.scale.TotalSupply(), tc.scale.DefaultFirstPrizeCount())
		}
		parsed, err := ParseScale(tc.scale.String())
		if err != nil || parsed != tc.scale {
			t.Fatalf("parse %s: %v %v", tc.scale, parsed, err)
		}
	}
}

func TestOwnerOnlyAdministration(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	createSale(t, engine, ScaleTiny, LedgerInternal)
	before := state.config.Clone()

	env := envFor(aliceAddr)
	checks := map[string]error{
		"price":  engine.SetPrice(env, types.NewCoin("ujunox", 5)),
		"pause":  engine.SetPause(env, true),
		"window": engine.SetWindow(env, WindowCommit, PhaseWindow{}),
		"phase":  engine.SetPhase(env, PhaseReveal),
		"ledger": engine.RegisterExternalLedger(env, testContract()),
	}
	for name, err := range checks {
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("%s: expected ErrUnauthorized, got %v", name, err)
		}
	}
	if _, err := engine.Migrate(env, ScaleSmall); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("migrate: expected ErrUnauthorized, got %v", err)
	}
	if _, err := engine.Finalize(env); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("finalize: expected ErrUnauthorized, got %v", err)
	}
	if state.config.Paused != before.Paused || state.config.BasePrice.String() != before.BasePrice.String() || state.config.Phase != before.Phase {
		t.Fatalf("unauthorized calls changed config")
	}
}

func TestPhaseTransitionTable(t *testing.T) {
	phases := []Phase{PhaseCommit, PhaseReveal, PhaseClosed}
	allowed := map[[2]Phase]bool{
		{PhaseCommit, PhaseReveal}: true,
		{PhaseCommit, PhaseClosed}: true,
		{PhaseReveal, PhaseCommit}: true,
		{PhaseReveal, PhaseClosed}: true,
		{PhaseClosed, PhaseCommit}: true,
	}
	for _, from := range phases {
		for _, to := range phases {
			engine, state, _ := newTestEngine(t)
			createSale(t, engine, ScaleTiny, LedgerInternal)
			state.config.Phase = from

			err := engine.SetPhase(envFor(ownerAddr), to)
			if allowed[[2]Phase{from, to}] {
				if err != nil {
					t.Fatalf("%s->%s: unexpected error %v", from, to, err)
				}
				if state.config.Phase != to {
					t.Fatalf("%s->%s: phase not updated", from, to)
				}
				continue
			}
			var transition *InvalidStateTransitionError
			if !errors.As(err, &transition) || !errors.Is(err, ErrInvalidStateTransition) {
				t.Fatalf("%s->%s: expected InvalidStateTransitionError, got %v", from, to, err)
			}
			if transition.From != from || transition.To != to {
				t.Fatalf("%s->%s: error reports %s->%s", from, to, transition.From, transition.To)
			}
			if state.config.Phase != from {
				t.Fatalf("%s->%s: rejected transition changed phase", from, to)
			}
		}
	}
}

func TestPhaseWindowContains(t *testing.T) {
	u := func(v uint64) *uint64 { return &v }
	cases := []struct {
		name   string
		window PhaseWindow
		height uint64
		time   uint64
		want   bool
	}{
		{"unbounded", PhaseWindow{}, 5, 5, true},
		{"height inclusive start", PhaseWindow{StartHeight: u(10)}, 10, 0, true},
		{"height before start", PhaseWindow{StartHeight: u(10)}, 9, 0, false},
		{"height inclusive end", PhaseWindow{EndHeight: u(10)}, 10, 0, true},
		{"height after end", PhaseWindow{EndHeight: u(10)}, 11, 0, false},
		{"time inside", PhaseWindow{StartTime: u(100), EndTime: u(200)}, 0, 150, true},
		{"time after end", PhaseWindow{StartTime: u(100), EndTime: u(200)}, 0, 201, false},
		{"all dimensions must hold", PhaseWindow{StartHeight: u(1), EndHeight: u(5), StartTime: u(100)}, 3, 99, false},
		{"all dimensions hold", PhaseWindow{StartHeight: u(1), EndHeight: u(5), StartTime: u(100)}, 3, 100, true},
	}
	for _, tc := range cases {
		if got := tc.window.Contains(tc.height, tc.time); got != tc.want {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestSetWindowAndPrice(t *testing.T) {
	engine, state, recorder := newTestEngine(t)
	createSale(t, engine, ScaleTiny, LedgerInternal)
	start := uint64(50)
	if err := engine.SetWindow(envFor(ownerAddr), WindowReveal, PhaseWindow{StartHeight: &start}); err != nil {
		t.Fatalf("set window: %v", err)
	}
	start = 99
	if got := state.config.RevealWindow.StartHeight; got == nil || *got != 50 {
		t.Fatalf("window not stored by value: %v", got)
	}
	if err := engine.SetPrice(envFor(ownerAddr), types.NewCoin("uatom", 7)); err != nil {
		t.Fatalf("set price: %v", err)
	}
	if state.config.BasePrice.String() != "7uatom" {
		t.Fatalf("unexpected price %s", state.config.BasePrice)
	}
	evts := recorder.Events()
	if evts[len(evts)-1].Type != EventTypePriceUpdated || evts[len(evts)-2].Attributes["startHeight"] != "50" {
		t.Fatalf("unexpected events %+v", evts)
	}
}

func TestMigrateRederivesSupply(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	createSale(t, engine, ScaleSmall, LedgerInternal)
	state.deposits[aliceAddr] = uint256.NewInt(5)
	state.config.NextUnitID = 40

	if _, err := engine.Migrate(envFor(ownerAddr), ScaleTiny); !errors.Is(err, ErrSupplyBelowCursor) {
		t.Fatalf("expected ErrSupplyBelowCursor, got %v", err)
	}
	cfg, err := engine.Migrate(envFor(ownerAddr), ScaleLarge)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if cfg.TotalSupply != 10000 || cfg.FirstPrizeCount != 5 || cfg.NextUnitID != 40 || cfg.Owner != ownerAddr {
		t.Fatalf("unexpected config after migrate %+v", cfg)
	}
	if _, ok := state.deposits[aliceAddr]; !ok {
		t.Fatalf("migrate touched participant records")
	}
}

func TestRegisterExternalLedger(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	createSale(t, engine, ScaleTiny, LedgerInternal)
	if err := engine.RegisterExternalLedger(envFor(ownerAddr), testContract()); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for internal ledger, got %v", err)
	}

	engine, state, _ = newTestEngine(t)
	createSale(t, engine, ScaleTiny, LedgerDelegated)
	if err := engine.RegisterExternalLedger(envFor(ownerAddr), "not-an-address"); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
	if err := engine.RegisterExternalLedger(envFor(ownerAddr), testContract()); err != nil {
		t.Fatalf("register: %v", err)
	}
	if state.config.ExternalLedger != testContract() {
		t.Fatalf("ledger handle not stored")
	}
}

func TestOperationsRequireInitialisation(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	if err := engine.Commit(envFor(aliceAddr), "abc"); !errors.Is(err, ErrNotInitialised) {
		t.Fatalf("expected ErrNotInitialised, got %v", err)
	}
	if _, err := NewEngine().Config(); !errors.Is(err, ErrNilState) {
		t.Fatalf("expected ErrNilState, got %v", err)
	}
}
