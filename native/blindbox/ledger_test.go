package blindbox

import (
	"encoding/json"
	"errors"
	"testing"

	"ddbox/core/types"
)

func mintTo(t *testing.T, engine *Engine, owner string, amount uint64) {
	t.Helper()
	if _, err := engine.Deposit(envFor(owner), []types.Coin{types.NewCoin("ujunox", amount)}); err != nil {
		t.Fatalf("deposit: %v", err)
	}
}

func TestInternalTransferAuthorization(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	createSale(t, engine, ScaleTiny, LedgerInternal)
	mintTo(t, engine, aliceAddr, 300)

	if _, err := engine.Transfer(envFor(bobAddr), carolAddr, 0); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := engine.Transfer(envFor(aliceAddr), bobAddr, 0); err != nil {
		t.Fatalf("owner transfer: %v", err)
	}
	if state.units[0].Owner != bobAddr {
		t.Fatalf("owner not updated")
	}

	if _, err := engine.Approve(envFor(aliceAddr), bobAddr, 1); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := engine.Transfer(envFor(bobAddr), carolAddr, 1); err != nil {
		t.Fatalf("approved transfer: %v", err)
	}
	if unit := state.units[1]; unit.Owner != carolAddr || unit.Approval != "" {
		t.Fatalf("transfer did not clear approval: %+v", unit)
	}

	if _, err := engine.ApproveAll(envFor(aliceAddr), carolAddr); err != nil {
		t.Fatalf("approve all: %v", err)
	}
	if _, err := engine.Transfer(envFor(carolAddr), bobAddr, 2); err != nil {
		t.Fatalf("operator transfer: %v", err)
	}
	if _, err := engine.RevokeAll(envFor(aliceAddr), carolAddr); err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	approved, err := engine.IsApprovedForAll(aliceAddr, carolAddr)
	if err != nil || approved {
		t.Fatalf("operator still approved: %v %v", approved, err)
	}
}

func TestInternalApprovalOwnerOnly(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	createSale(t, engine, ScaleTiny, LedgerInternal)
	mintTo(t, engine, aliceAddr, 100)

	if _, err := engine.Approve(envFor(bobAddr), carolAddr, 0); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := engine.Approve(envFor(aliceAddr), bobAddr, 0); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := engine.Revoke(envFor(bobAddr), bobAddr, 0); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := engine.Revoke(envFor(aliceAddr), carolAddr, 0); err != nil {
		t.Fatalf("revoke other spender: %v", err)
	}
	if state.units[0].Approval != bobAddr {
		t.Fatalf("revoke for another spender cleared approval")
	}
	if _, err := engine.Revoke(envFor(aliceAddr), bobAddr, 0); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	approval, err := engine.Approval(0)
	if err != nil || approval != "" {
		t.Fatalf("approval = %q, %v", approval, err)
	}
}

func TestRevokeEmitsOnlyWhenApprovalCleared(t *testing.T) {
	engine, state, recorder := newTestEngine(t)
	createSale(t, engine, ScaleTiny, LedgerInternal)
	mintTo(t, engine, aliceAddr, 100)
	if _, err := engine.Approve(envFor(aliceAddr), bobAddr, 0); err != nil {
		t.Fatalf("approve: %v", err)
	}

	countRevoked := func() int {
		n := 0
		for _, evt := range recorder.Events() {
			if evt.Type == EventTypeUnitRevoked {
				n++
			}
		}
		return n
	}
	if _, err := engine.Revoke(envFor(aliceAddr), carolAddr, 0); err != nil {
		t.Fatalf("revoke other spender: %v", err)
	}
	if got := countRevoked(); got != 0 {
		t.Fatalf("revoke of an unheld approval emitted %d events", got)
	}
	if state.units[0].Approval != bobAddr {
		t.Fatalf("approval changed to %q", state.units[0].Approval)
	}
	if _, err := engine.Revoke(envFor(aliceAddr), bobAddr, 0); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if got := countRevoked(); got != 1 {
		t.Fatalf("expected one revoke event, got %d", got)
	}
	if _, err := engine.Revoke(envFor(aliceAddr), bobAddr, 0); err != nil {
		t.Fatalf("repeat revoke: %v", err)
	}
	if got := countRevoked(); got != 1 {
		t.Fatalf("repeat revoke emitted again, total %d", got)
	}
}

func TestInternalLedgerErrors(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	createSale(t, engine, ScaleTiny, LedgerInternal)
	mintTo(t, engine, aliceAddr, 100)

	if _, err := engine.Transfer(envFor(aliceAddr), bobAddr, 99); !errors.Is(err, ErrUnitNotFound) {
		t.Fatalf("expected ErrUnitNotFound, got %v", err)
	}
	if _, err := engine.Transfer(envFor(aliceAddr), "invalid_address", 0); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
	if _, err := engine.ApproveAll(envFor(bobAddr), "bad"); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
	if _, err := engine.ApproveAll(envFor(bobAddr), carolAddr); err != nil {
		t.Fatalf("approve all by any caller: %v", err)
	}
	if _, err := engine.OwnerOf(5); !errors.Is(err, ErrUnitNotFound) {
		t.Fatalf("expected ErrUnitNotFound, got %v", err)
	}
}

func TestDelegatedLedgerForwards(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	createSale(t, engine, ScaleTiny, LedgerDelegated)

	if _, err := engine.Transfer(envFor(bobAddr), carolAddr, 3); !errors.Is(err, ErrLedgerNotConfigured) {
		t.Fatalf("expected ErrLedgerNotConfigured, got %v", err)
	}
	if err := engine.RegisterExternalLedger(envFor(ownerAddr), testContract()); err != nil {
		t.Fatalf("register: %v", err)
	}

	out, err := engine.Transfer(envFor(bobAddr), carolAddr, 3)
	if err != nil {
		t.Fatalf("forward transfer: %v", err)
	}
	if len(out) != 1 || out[0].Action != ActionTransfer || out[0].Target != testContract() {
		t.Fatalf("unexpected instructions %+v", out)
	}
	var transfer TransferPayload
	if err := json.Unmarshal(out[0].Payload, &transfer); err != nil || transfer.Recipient != carolAddr || transfer.TokenID != 3 {
		t.Fatalf("unexpected payload %s (%v)", out[0].Payload, err)
	}

	calls := []struct {
		action string
		run    func() ([]types.Instruction, error)
	}{
		{ActionApprove, func() ([]types.Instruction, error) { return engine.Approve(envFor(bobAddr), carolAddr, 1) }},
		{ActionRevoke, func() ([]types.Instruction, error) { return engine.Revoke(envFor(bobAddr), carolAddr, 1) }},
		{ActionApproveAll, func() ([]types.Instruction, error) { return engine.ApproveAll(envFor(bobAddr), carolAddr) }},
		{ActionRevokeAll, func() ([]types.Instruction, error) { return engine.RevokeAll(envFor(bobAddr), carolAddr) }},
	}
	for _, call := range calls {
		out, err := call.run()
		if err != nil {
			t.Fatalf("%s: %v", call.action, err)
		}
		if len(out) != 1 || out[0].Action != call.action {
			t.Fatalf("%s: unexpected instructions %+v", call.action, out)
		}
	}
	if len(state.units) != 0 || len(state.operators) != 0 {
		t.Fatalf("delegated ledger wrote local ownership data")
	}

	if _, err := engine.OwnerOf(3); !errors.Is(err, ErrDelegatedLedger) {
		t.Fatalf("expected ErrDelegatedLedger, got %v", err)
	}
	if _, err := engine.IsApprovedForAll(aliceAddr, bobAddr); !errors.Is(err, ErrDelegatedLedger) {
		t.Fatalf("expected ErrDelegatedLedger, got %v", err)
	}
}
