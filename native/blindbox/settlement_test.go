package blindbox

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/holiman/uint256"

	"ddbox/core/types"
	"ddbox/native/common"
)

// runSale drives every participant through deposit, commit and reveal and
// leaves the contract in the closed phase.
func runSale(t *testing.T, engine *Engine, deposits map[string]uint64) {
	t.Helper()
	for addr, amount := range deposits {
		if amount == 0 {
			continue
		}
		if _, err := engine.Deposit(envFor(addr), []types.Coin{types.NewCoin("ujunox", amount)}); err != nil {
			t.Fatalf("deposit %s: %v", addr, err)
		}
	}
	for addr := range deposits {
		if err := engine.Commit(envFor(addr), CommitmentFor(addr, "v-"+addr, "salt")); err != nil {
			t.Fatalf("commit %s: %v", addr, err)
		}
	}
	if err := engine.SetPhase(envFor(ownerAddr), PhaseReveal); err != nil {
		t.Fatalf("reveal phase: %v", err)
	}
	for addr := range deposits {
		if err := engine.Reveal(envFor(addr), "v-"+addr, "salt"); err != nil {
			t.Fatalf("reveal %s: %v", addr, err)
		}
	}
	if err := engine.SetPhase(envFor(ownerAddr), PhaseClosed); err != nil {
		t.Fatalf("closed phase: %v", err)
	}
}

func TestTierSizes(t *testing.T) {
	cases := []struct{ n, first, second int }{
		{1, 1, 1},
		{3, 1, 1},
		{10, 1, 5},
		{19, 1, 9},
		{20, 2, 10},
		{1000, 100, 500},
	}
	for _, tc := range cases {
		first, second := TierSizes(tc.n)
		if first != tc.first || second != tc.second {
			t.Fatalf("n=%d: got (%d,%d) want (%d,%d)", tc.n, first, second, tc.first, tc.second)
		}
	}
}

func TestPayoutLaw(t *testing.T) {
	p := uint256.NewInt(101)
	for tier, want := range map[Tier]uint64{TierFirst: 202, TierSecond: 101, TierThird: 50} {
		got, err := PayoutFor(tier, p)
		if err != nil {
			t.Fatalf("tier %d: %v", tier, err)
		}
		if got.Uint64() != want {
			t.Fatalf("tier %d: got %d want %d", tier, got.Uint64(), want)
		}
	}
	huge := new(uint256.Int).SetAllOne()
	if _, err := PayoutFor(TierFirst, huge); !errors.Is(err, ErrAmountOverflow) {
		t.Fatalf("expected ErrAmountOverflow, got %v", err)
	}
}

func TestFinalizeEndToEnd(t *testing.T) {
	engine, state, recorder := newTestEngine(t)
	createSale(t, engine, ScaleSmall, LedgerInternal)
	runSale(t, engine, map[string]uint64{aliceAddr: 100, bobAddr: 100, carolAddr: 100})

	settlement, err := engine.Finalize(envFor(ownerAddr))
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	ordered := []string{aliceAddr, bobAddr, carolAddr}
	sort.Strings(ordered)
	wantPayout := []uint64{200, 100, 50}
	wantTier := []Tier{TierFirst, TierSecond, TierThird}

	if len(settlement.Transfers) != 3 {
		t.Fatalf("expected 3 transfers, got %d", len(settlement.Transfers))
	}
	for i, addr := range ordered {
		transfer := settlement.Transfers[i]
		if transfer.Recipient != addr || transfer.Coin.Denom != "ujunox" || transfer.Coin.Amount.Uint64() != wantPayout[i] {
			t.Fatalf("transfer %d: got %+v", i, transfer)
		}
		if state.tiers[addr] != wantTier[i] {
			t.Fatalf("%s: tier %d want %d", addr, state.tiers[addr], wantTier[i])
		}
		outcome := settlement.Outcomes[i]
		if outcome.Address != addr || !outcome.Settled || outcome.Principal.Uint64() != 100 {
			t.Fatalf("outcome %d: %+v", i, outcome)
		}
	}
	evts := recorder.Events()
	last := evts[len(evts)-1]
	if last.Type != EventTypeFinalized || last.Attributes["transfers"] != "3" || last.Attributes["runId"] != settlement.RunID {
		t.Fatalf("unexpected finalize event %+v", last)
	}
}

func TestFinalizeTierPercentages(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	createSale(t, engine, ScaleSmall, LedgerInternal)
	state.config.Phase = PhaseClosed
	addrs := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		addr := testAddr(byte(0x10 + i))
		addrs = append(addrs, addr)
		state.reveals[addr] = &Reveal{Value: fmt.Sprint(i), Salt: "s"}
		state.deposits[addr] = uint256.NewInt(10)
	}
	sort.Strings(addrs)

	settlement, err := engine.Finalize(envFor(ownerAddr))
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	counts := map[Tier]int{}
	for i, addr := range addrs {
		tier := state.tiers[addr]
		counts[tier]++
		if settlement.Outcomes[i].Tier != tier {
			t.Fatalf("outcome tier mismatch for %s", addr)
		}
	}
	if counts[TierFirst] != 1 || counts[TierSecond] != 5 || counts[TierThird] != 4 {
		t.Fatalf("unexpected tier split %v", counts)
	}
	if state.tiers[addrs[0]] != TierFirst || state.tiers[addrs[9]] != TierThird {
		t.Fatalf("tiers not assigned in ascending address order")
	}
}

func TestFinalizeSkipsZeroPrincipal(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	createSale(t, engine, ScaleSmall, LedgerInternal)
	runSale(t, engine, map[string]uint64{aliceAddr: 0, bobAddr: 100})

	settlement, err := engine.Finalize(envFor(ownerAddr))
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if len(settlement.Outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(settlement.Outcomes))
	}
	if len(settlement.Transfers) != 1 || settlement.Transfers[0].Recipient != bobAddr {
		t.Fatalf("unexpected transfers %+v", settlement.Transfers)
	}
	if _, ok := state.tiers[aliceAddr]; ok {
		t.Fatalf("zero principal voter received a tier")
	}
	tier, err := engine.TierOf(aliceAddr)
	if err != nil || tier != TierNone {
		t.Fatalf("TierOf = %d, %v", tier, err)
	}
}

func TestFinalizeIsDeterministic(t *testing.T) {
	values := make(map[string]string)
	for i := 0; i < 7; i++ {
		values[testAddr(byte(0x30+i))] = fmt.Sprint(i * 3)
	}
	build := func() *Settlement {
		engine, state, _ := newTestEngine(t)
		createSale(t, engine, ScaleSmall, LedgerInternal)
		state.config.Phase = PhaseClosed
		for addr, value := range values {
			state.reveals[addr] = &Reveal{Value: value, Salt: "s"}
			state.deposits[addr] = uint256.NewInt(100)
		}
		env := envFor(ownerAddr)
		idx := uint32(4)
		env.TxIndex = &idx
		settlement, err := engine.Finalize(env)
		if err != nil {
			t.Fatalf("finalize: %v", err)
		}
		return settlement
	}
	a, b := build(), build()
	if a.RunID != b.RunID || a.Seed != b.Seed || len(a.Outcomes) != len(b.Outcomes) {
		t.Fatalf("settlement runs differ")
	}
	for i := range a.Outcomes {
		if a.Outcomes[i].Draw != b.Outcomes[i].Draw || !a.Outcomes[i].Payout.Eq(b.Outcomes[i].Payout) {
			t.Fatalf("outcome %d differs", i)
		}
	}
	env := envFor(ownerAddr)
	wantSeed := fmt.Sprintf("%d%d%s%d", env.Height, env.Time, env.Contract, 4)
	if a.Seed != wantSeed {
		t.Fatalf("seed = %q, want %q", a.Seed, wantSeed)
	}
	first := a.Outcomes[0]
	sum := sha256.Sum256([]byte(wantSeed + first.Address + values[first.Address]))
	if first.DrawValue(1).Cmp(new(uint256.Int).SetBytes(sum[8:24]).ToBig()) != 0 {
		t.Fatalf("draw does not match digest window")
	}
}

func TestFinalizeGuards(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	createSale(t, engine, ScaleTiny, LedgerInternal)

	if _, err := engine.Finalize(envFor(ownerAddr)); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState in commit phase, got %v", err)
	}
	state.config.Phase = PhaseClosed
	state.config.Paused = true
	if _, err := engine.Finalize(envFor(ownerAddr)); !errors.Is(err, ErrInvalidState) || !errors.Is(err, common.ErrModulePaused) {
		t.Fatalf("expected paused ErrInvalidState, got %v", err)
	}
	state.config.Paused = false
	end := uint64(10)
	state.config.ClosedWindow = PhaseWindow{EndHeight: &end}
	_, err := engine.Finalize(envFor(ownerAddr))
	if !errors.Is(err, ErrInvalidState) || !errors.Is(err, ErrOutsideWindow) {
		t.Fatalf("expected window ErrInvalidState, got %v", err)
	}
	state.config.ClosedWindow = PhaseWindow{}

	settlement, err := engine.Finalize(envFor(ownerAddr))
	if err != nil {
		t.Fatalf("finalize without voters: %v", err)
	}
	if settlement.Note != NoteNoVoters || len(settlement.Transfers) != 0 {
		t.Fatalf("unexpected empty settlement %+v", settlement)
	}
}

func TestFinalizeTooManyVoters(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	createSale(t, engine, ScaleTiny, LedgerInternal)
	state.config.Phase = PhaseClosed
	for i := 0; i < MaxVoters+5; i++ {
		addr := fmt.Sprintf("voter-%05d", i)
		state.reveals[addr] = &Reveal{Value: "v"}
		state.deposits[addr] = uint256.NewInt(1)
	}
	_, err := engine.Finalize(envFor(ownerAddr))
	var tooMany *TooManyVotersError
	if !errors.As(err, &tooMany) || !errors.Is(err, ErrTooManyVoters) {
		t.Fatalf("expected TooManyVotersError, got %v", err)
	}
	if tooMany.Count != MaxVoters+1 || tooMany.Max != MaxVoters {
		t.Fatalf("unexpected counts %+v", tooMany)
	}
	if state.revealVisits != MaxVoters+1 {
		t.Fatalf("iteration visited %d reveals, want %d", state.revealVisits, MaxVoters+1)
	}
	if len(state.tiers) != 0 {
		t.Fatalf("rejected settlement assigned tiers")
	}
}

func TestFinalizeRerunOverwritesTiers(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	createSale(t, engine, ScaleSmall, LedgerInternal)
	runSale(t, engine, map[string]uint64{aliceAddr: 100})
	if _, err := engine.Finalize(envFor(ownerAddr)); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	state.tiers[aliceAddr] = TierThird
	if _, err := engine.Finalize(envFor(ownerAddr)); err != nil {
		t.Fatalf("refinalize: %v", err)
	}
	if state.tiers[aliceAddr] != TierFirst {
		t.Fatalf("rerun did not overwrite tier")
	}
}
