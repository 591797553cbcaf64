package crypto

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	raw := bytes.Repeat([]byte{0x42}, 20)
	addr := MustNewAddress(AccountPrefix, raw)
	encoded := addr.String()
	if !strings.HasPrefix(encoded, "dd1") {
		t.Fatalf("unexpected encoding %s", encoded)
	}
	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Prefix() != AccountPrefix || !bytes.Equal(decoded.Bytes(), raw) {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}
	if err := ValidateAddress(encoded); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateAddressRejectsMalformed(t *testing.T) {
	upper := strings.ToUpper(MustNewAddress(AccountPrefix, bytes.Repeat([]byte{1}, 20)).String())
	foreign := MustNewAddress("cosmos", bytes.Repeat([]byte{2}, 20)).String()
	cases := []string{"", "invalid_address", "dd1qqqq", upper, foreign}
	for _, input := range cases {
		if err := ValidateAddress(input); !errors.Is(err, ErrInvalidAddress) {
			t.Fatalf("expected ErrInvalidAddress for %q, got %v", input, err)
		}
	}
}

func TestNewAddressLength(t *testing.T) {
	if _, err := NewAddress(AccountPrefix, []byte{1, 2, 3}); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected length error, got %v", err)
	}
}
