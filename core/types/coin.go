package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

var (
	// ErrInvalidCoin is returned when a coin literal cannot be parsed.
	ErrInvalidCoin = errors.New("types: invalid coin")
)

// Coin is an amount of a single native denomination.
type Coin struct {
	Denom  string
	Amount *uint256.Int
}

// NewCoin builds a coin from a denomination and a uint64 amount.
func NewCoin(denom string, amount uint64) Coin {
	return Coin{Denom: denom, Amount: uint256.NewInt(amount)}
}

// Clone returns a deep copy of the coin.
func (c Coin) Clone() Coin {
	out := Coin{Denom: c.Denom}
	if c.Amount != nil {
		out.Amount = new(uint256.Int).Set(c.Amount)
	}
	return out
}

// IsZero reports whether the coin carries no value.
func (c Coin) IsZero() bool {
	return c.Amount == nil || c.Amount.IsZero()
}

func (c Coin) String() string {
	amount := "0"
	if c.Amount != nil {
		amount = c.Amount.Dec()
	}
	return amount + c.Denom
}

type coinJSON struct {
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

// MarshalJSON encodes the amount as a decimal string.
func (c Coin) MarshalJSON() ([]byte, error) {
	amount := "0"
	if c.Amount != nil {
		amount = c.Amount.Dec()
	}
	return json.Marshal(coinJSON{Denom: c.Denom, Amount: amount})
}

// UnmarshalJSON decodes a coin whose amount is a decimal string.
func (c *Coin) UnmarshalJSON(data []byte) error {
	var raw coinJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	amount, err := uint256.FromDecimal(strings.TrimSpace(raw.Amount))
	if err != nil {
		return fmt.Errorf("%w: amount %q: %v", ErrInvalidCoin, raw.Amount, err)
	}
	c.Denom = raw.Denom
	c.Amount = amount
	return nil
}

// ParseCoin parses a literal such as "250ujunox".
func ParseCoin(literal string) (Coin, error) {
	trimmed := strings.TrimSpace(literal)
	split := 0
	for split < len(trimmed) && trimmed[split] >= '0' && trimmed[split] <= '9' {
		split++
	}
	if split == 0 || split == len(trimmed) {
		return Coin{}, fmt.Errorf("%w: %q", ErrInvalidCoin, literal)
	}
	amount, err := uint256.FromDecimal(trimmed[:split])
	if err != nil {
		return Coin{}, fmt.Errorf("%w: %q: %v", ErrInvalidCoin, literal, err)
	}
	return Coin{Denom: trimmed[split:], Amount: amount}, nil
}

// ParseCoins parses a comma separated list of coin literals. An empty string
// yields no coins.
func ParseCoins(literal string) ([]Coin, error) {
	if strings.TrimSpace(literal) == "" {
		return nil, nil
	}
	parts := strings.Split(literal, ",")
	coins := make([]Coin, 0, len(parts))
	for _, part := range parts {
		coin, err := ParseCoin(part)
		if err != nil {
			return nil, err
		}
		coins = append(coins, coin)
	}
	return coins, nil
}
