package blindbox

import (
	"fmt"

	"github.com/holiman/uint256"

	"ddbox/core/types"
)

// DepositReceipt describes the outcome of a successful deposit.
type DepositReceipt struct {
	Paid      types.Coin
	Minted    uint64
	FirstID   uint64
	Principal *uint256.Int
	// Instructions carries the batch mint for the delegated ledger.
	Instructions []types.Instruction
}

// paymentFor returns the first attached coin in the base denomination.
func paymentFor(funds []types.Coin, denom string) types.Coin {
	for _, coin := range funds {
		if coin.Denom == denom {
			return coin.Clone()
		}
	}
	return types.Coin{Denom: denom, Amount: new(uint256.Int)}
}

// Deposit accepts payment in the base denomination and issues one unit per
// whole multiple of the base price, bounded by the remaining supply. The full
// paid amount is credited to the caller's principal, remainder included.
func (e *Engine) Deposit(env types.Env, funds []types.Coin) (*DepositReceipt, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	if err := requireActive(cfg); err != nil {
		return nil, err
	}
	ledger := e.ledger(cfg)
	if err := ledger.Ready(cfg); err != nil {
		return nil, err
	}
	paid := paymentFor(funds, cfg.BasePrice.Denom)
	base := zeroIfNil(cfg.BasePrice.Amount)
	if paid.IsZero() || paid.Amount.Lt(base) {
		return nil, fmt.Errorf("%w: sent %s, base %s", ErrInsufficientFunds, paid, cfg.BasePrice)
	}

	multiples := new(uint256.Int).Div(paid.Amount, base)
	var remaining uint64
	if cfg.NextUnitID < cfg.TotalSupply {
		remaining = cfg.TotalSupply - cfg.NextUnitID
	}
	minted := remaining
	if multiples.IsUint64() && multiples.Uint64() < remaining {
		minted = multiples.Uint64()
	}
	if minted == 0 {
		return nil, ErrNoUnitsAvailable
	}

	principal, err := e.state.BlindBoxDeposit(env.Caller)
	if err != nil {
		return nil, fmt.Errorf("blindbox engine: load deposit: %w", err)
	}
	updated, overflow := new(uint256.Int).AddOverflow(zeroIfNil(principal), paid.Amount)
	if overflow {
		return nil, ErrAmountOverflow
	}

	firstID := cfg.NextUnitID
	instructions, err := ledger.Mint(cfg, env.Caller, firstID, minted)
	if err != nil {
		return nil, err
	}
	if err := e.state.BlindBoxPutDeposit(env.Caller, updated); err != nil {
		return nil, fmt.Errorf("blindbox engine: store deposit: %w", err)
	}
	cfg.NextUnitID = firstID + minted
	if err := e.storeConfig(cfg); err != nil {
		return nil, err
	}
	e.emit(DepositEvent(env.Caller, paid, minted, firstID))
	return &DepositReceipt{
		Paid:         paid,
		Minted:       minted,
		FirstID:      firstID,
		Principal:    updated,
		Instructions: instructions,
	}, nil
}
