package blindbox

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"ddbox/core/types"
)

// MaxVoters caps the number of reveals a single settlement will process.
const MaxVoters = 1000

// NoteNoVoters is reported when a settlement finds no reveals.
const NoteNoVoters = "no voters"

// VoterOutcome is the per-voter result of a settlement run.
type VoterOutcome struct {
	Address string `json:"address"`
	// Draw holds three big-endian 128-bit values taken from bytes [0:16],
	// [8:24] and [16:32] of the voter digest. They are reported only and do
	// not influence tier order.
	Draw      [3][16]byte  `json:"-"`
	Tier      Tier         `json:"tier"`
	Principal *uint256.Int `json:"principal"`
	Payout    *uint256.Int `json:"payout"`
	// Settled is false for voters without principal; no tier is stored for
	// them and no transfer is made.
	Settled bool `json:"settled"`
}

// MarshalJSON renders amounts as decimal strings and draws as hex.
func (o VoterOutcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Address   string    `json:"address"`
		Draws     [3]string `json:"draws"`
		Tier      Tier      `json:"tier"`
		Principal string    `json:"principal"`
		Payout    string    `json:"payout"`
		Settled   bool      `json:"settled"`
	}{
		Address:   o.Address,
		Draws:     [3]string{o.DrawHex(0), o.DrawHex(1), o.DrawHex(2)},
		Tier:      o.Tier,
		Principal: zeroIfNil(o.Principal).Dec(),
		Payout:    zeroIfNil(o.Payout).Dec(),
		Settled:   o.Settled,
	})
}

// DrawValue returns draw i as an unsigned integer.
func (o VoterOutcome) DrawValue(i int) *big.Int {
	return new(big.Int).SetBytes(o.Draw[i][:])
}

// DrawHex returns draw i hex encoded.
func (o VoterOutcome) DrawHex(i int) string {
	return hex.EncodeToString(o.Draw[i][:])
}

// Settlement is the result of Finalize.
type Settlement struct {
	RunID     string           `json:"run_id"`
	Seed      string           `json:"seed"`
	Height    uint64           `json:"height"`
	Time      uint64           `json:"time"`
	Denom     string           `json:"denom"`
	Outcomes  []VoterOutcome   `json:"outcomes"`
	Transfers []types.Transfer `json:"transfers"`
	Note      string           `json:"note,omitempty"`
}

// TierSizes splits n voters into first and second bracket sizes; the third
// bracket takes the remainder. Both leading brackets hold at least one voter.
func TierSizes(n int) (first, second int) {
	first = n * 10 / 100
	if first < 1 {
		first = 1
	}
	second = n * 50 / 100
	if second < 1 {
		second = 1
	}
	return first, second
}

func tierForIndex(i, first, second int) Tier {
	switch {
	case i < first:
		return TierFirst
	case i < first+second:
		return TierSecond
	default:
		return TierThird
	}
}

// PayoutFor applies the tier ratio to principal: 2p, p or floor(p/2).
func PayoutFor(tier Tier, principal *uint256.Int) (*uint256.Int, error) {
	num, den := tier.payoutRatio()
	scaled, overflow := new(uint256.Int).MulOverflow(zeroIfNil(principal), uint256.NewInt(num))
	if overflow {
		return nil, ErrAmountOverflow
	}
	return scaled.Div(scaled, uint256.NewInt(den)), nil
}

func settlementSeed(env types.Env) string {
	return strconv.FormatUint(env.Height, 10) +
		strconv.FormatUint(env.Time, 10) +
		env.Contract +
		strconv.FormatUint(uint64(env.TxIndexOrZero()), 10)
}

func drawFor(seed, addr, value string) [3][16]byte {
	sum := sha256.Sum256([]byte(seed + addr + value))
	var draw [3][16]byte
	copy(draw[0][:], sum[0:16])
	copy(draw[1][:], sum[8:24])
	copy(draw[2][:], sum[16:32])
	return draw
}

type voter struct {
	addr  string
	value string
}

func (e *Engine) collectVoters() ([]voter, error) {
	voters := make([]voter, 0)
	count := 0
	err := e.state.BlindBoxIterateReveals(func(addr string, reveal *Reveal) bool {
		count++
		if count > MaxVoters {
			return false
		}
		if reveal != nil {
			voters = append(voters, voter{addr: addr, value: reveal.Value})
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("blindbox engine: load reveals: %w", err)
	}
	if count > MaxVoters {
		return nil, &TooManyVotersError{Count: count, Max: MaxVoters}
	}
	return voters, nil
}

// Finalize settles the sale. Voters are every revealed address in ascending
// order; they are split into three brackets by position and paid out of the
// contract in the base denomination. All tier writes happen before any
// transfer is built.
func (e *Engine) Finalize(env types.Env) (*Settlement, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	if err := requireOwner(cfg, env.Caller); err != nil {
		return nil, err
	}
	if err := requireActive(cfg); err != nil {
		return nil, err
	}
	if !cfg.ClosedWindow.Contains(env.Height, env.Time) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidState, newOutsideWindowError(WindowClosed, cfg.ClosedWindow, env.Height, env.Time))
	}
	if cfg.Phase != PhaseClosed {
		return nil, fmt.Errorf("%w: phase is %s, want %s", ErrInvalidState, cfg.Phase, PhaseClosed)
	}

	seed := settlementSeed(env)
	settlement := &Settlement{
		RunID:  ethcrypto.Keccak256Hash([]byte(seed)).Hex(),
		Seed:   seed,
		Height: env.Height,
		Time:   env.Time,
		Denom:  cfg.BasePrice.Denom,
	}

	voters, err := e.collectVoters()
	if err != nil {
		return nil, err
	}
	if len(voters) == 0 {
		settlement.Note = NoteNoVoters
		e.emit(FinalizedEvent(settlement.RunID, 0, 0, NoteNoVoters))
		return settlement, nil
	}

	first, second := TierSizes(len(voters))
	settlement.Outcomes = make([]VoterOutcome, 0, len(voters))
	for i, v := range voters {
		principal, err := e.state.BlindBoxDeposit(v.addr)
		if err != nil {
			return nil, fmt.Errorf("blindbox engine: load deposit: %w", err)
		}
		outcome := VoterOutcome{
			Address:   v.addr,
			Draw:      drawFor(seed, v.addr, v.value),
			Tier:      tierForIndex(i, first, second),
			Principal: zeroIfNil(principal),
			Payout:    new(uint256.Int),
		}
		if !outcome.Principal.IsZero() {
			payout, err := PayoutFor(outcome.Tier, outcome.Principal)
			if err != nil {
				return nil, err
			}
			if err := e.state.BlindBoxPutTier(v.addr, outcome.Tier); err != nil {
				return nil, fmt.Errorf("blindbox engine: store tier: %w", err)
			}
			outcome.Payout = payout
			outcome.Settled = true
		}
		settlement.Outcomes = append(settlement.Outcomes, outcome)
	}

	for _, outcome := range settlement.Outcomes {
		if outcome.Payout.IsZero() {
			continue
		}
		settlement.Transfers = append(settlement.Transfers, types.Transfer{
			Recipient: outcome.Address,
			Coin:      types.Coin{Denom: cfg.BasePrice.Denom, Amount: new(uint256.Int).Set(outcome.Payout)},
		})
	}

	e.emit(FinalizedEvent(settlement.RunID, len(voters), len(settlement.Transfers), ""))
	return settlement, nil
}
