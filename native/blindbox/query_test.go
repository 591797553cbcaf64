package blindbox

import (
	"errors"
	"sort"
	"testing"

	"github.com/holiman/uint256"
)

func TestTierListPagination(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	createSale(t, engine, ScaleSmall, LedgerInternal)

	var second []string
	for i := 0; i < 8; i++ {
		addr := testAddr(byte(0x40 + i))
		tier := TierSecond
		if i%3 == 0 {
			tier = TierThird
		}
		state.tiers[addr] = tier
		if tier == TierSecond {
			second = append(second, addr)
		}
	}
	sort.Strings(second)

	limit := uint32(2)
	var collected []string
	cursor := ""
	for pages := 0; ; pages++ {
		if pages > 10 {
			t.Fatalf("pagination did not terminate")
		}
		page, err := engine.TierList(TierSecond, cursor, &limit)
		if err != nil {
			t.Fatalf("tier list: %v", err)
		}
		collected = append(collected, page.Addresses...)
		if page.NextStartAfter == nil {
			break
		}
		if *page.NextStartAfter != page.Addresses[len(page.Addresses)-1] {
			t.Fatalf("cursor is not the last returned address")
		}
		cursor = *page.NextStartAfter
	}
	if len(collected) != len(second) {
		t.Fatalf("collected %d addresses, want %d", len(collected), len(second))
	}
	for i := range second {
		if collected[i] != second[i] {
			t.Fatalf("page order mismatch at %d", i)
		}
	}

	zero := uint32(0)
	page, err := engine.TierList(TierSecond, "", &zero)
	if err != nil {
		t.Fatalf("zero limit: %v", err)
	}
	if len(page.Addresses) != 0 || page.NextStartAfter == nil {
		t.Fatalf("zero limit should return an empty page with a cursor, got %+v", page)
	}

	page, err = engine.TierList(TierFirst, "", nil)
	if err != nil || len(page.Addresses) != 0 || page.NextStartAfter != nil {
		t.Fatalf("empty tier: %+v %v", page, err)
	}
	if _, err := engine.TierList(TierSecond, "garbage", nil); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
	if _, err := engine.TierList(Tier(4), "", nil); !errors.Is(err, ErrInvalidTier) {
		t.Fatalf("expected ErrInvalidTier, got %v", err)
	}
}

func TestDepositAndTierQueries(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	createSale(t, engine, ScaleTiny, LedgerInternal)
	state.deposits[aliceAddr] = uint256.NewInt(250)
	state.tiers[aliceAddr] = TierSecond

	amount, err := engine.DepositOf(aliceAddr)
	if err != nil || amount.Uint64() != 250 {
		t.Fatalf("DepositOf = %v, %v", amount, err)
	}
	amount, err = engine.DepositOf(bobAddr)
	if err != nil || !amount.IsZero() {
		t.Fatalf("DepositOf(unknown) = %v, %v", amount, err)
	}
	tier, err := engine.TierOf(aliceAddr)
	if err != nil || tier != TierSecond {
		t.Fatalf("TierOf = %d, %v", tier, err)
	}
	version, err := engine.Version()
	if err != nil || version.Version != ContractVersion {
		t.Fatalf("Version = %+v, %v", version, err)
	}
}

func TestUnitListings(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	createSale(t, engine, ScaleTiny, LedgerInternal)
	mintTo(t, engine, aliceAddr, 300)
	mintTo(t, engine, bobAddr, 200)

	limit := uint32(2)
	page, err := engine.Units(aliceAddr, nil, &limit)
	if err != nil {
		t.Fatalf("units: %v", err)
	}
	if len(page.IDs) != 2 || page.IDs[0] != 0 || page.IDs[1] != 1 || page.NextStartAfter == nil || *page.NextStartAfter != 1 {
		t.Fatalf("unexpected first page %+v", page)
	}
	page, err = engine.Units(aliceAddr, page.NextStartAfter, &limit)
	if err != nil || len(page.IDs) != 1 || page.IDs[0] != 2 || page.NextStartAfter != nil {
		t.Fatalf("unexpected second page %+v %v", page, err)
	}
	all, err := engine.AllUnits(nil, nil)
	if err != nil || len(all.IDs) != 5 {
		t.Fatalf("AllUnits = %+v, %v", all, err)
	}
}
