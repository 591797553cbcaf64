package crypto

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
)

// AddressPrefix defines the human-readable part of a bech32 address.
type AddressPrefix string

const (
	// AccountPrefix is used for participant and owner accounts.
	AccountPrefix AddressPrefix = "dd"
	// ContractPrefix is used for contract and external ledger handles.
	ContractPrefix AddressPrefix = "ddc"

	addressLength = 20
)

var (
	// ErrInvalidAddress is returned when a string is not a well-formed address.
	ErrInvalidAddress = errors.New("crypto: invalid address")
)

// Address represents a 20-byte account identifier with a specific prefix.
type Address struct {
	prefix AddressPrefix
	bytes  []byte
}

// NewAddress builds an address from raw bytes. The payload must be 20 bytes.
func NewAddress(prefix AddressPrefix, b []byte) (Address, error) {
	if len(b) != addressLength {
		return Address{}, fmt.Errorf("%w: payload must be %d bytes, got %d", ErrInvalidAddress, addressLength, len(b))
	}
	if strings.TrimSpace(string(prefix)) == "" {
		return Address{}, fmt.Errorf("%w: empty prefix", ErrInvalidAddress)
	}
	return Address{prefix: prefix, bytes: append([]byte(nil), b...)}, nil
}

// MustNewAddress is like NewAddress but panics on malformed input. Intended for
// fixtures and constants.
func MustNewAddress(prefix AddressPrefix, b []byte) Address {
	addr, err := NewAddress(prefix, b)
	if err != nil {
		panic(err)
	}
	return addr
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (a Address) Bytes() []byte {
	return append([]byte(nil), a.bytes...)
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

// DecodeAddress parses a bech32 address string.
func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("%w: converting bits: %v", ErrInvalidAddress, err)
	}
	return NewAddress(AddressPrefix(prefix), conv)
}

// ValidateAddress reports whether the supplied string is a canonical address
// with one of the known prefixes. Mixed or upper case encodings are rejected so
// that every stored key has a single spelling.
func ValidateAddress(addrStr string) error {
	if strings.TrimSpace(addrStr) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	if addrStr != strings.ToLower(addrStr) {
		return fmt.Errorf("%w: %s is not lower case", ErrInvalidAddress, addrStr)
	}
	addr, err := DecodeAddress(addrStr)
	if err != nil {
		return err
	}
	switch addr.Prefix() {
	case AccountPrefix, ContractPrefix:
		return nil
	default:
		return fmt.Errorf("%w: unknown prefix %q", ErrInvalidAddress, addr.Prefix())
	}
}
