package state

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"ddbox/storage"
)

// Manager reads and writes contract records on top of an ordered key-value
// store. Keys are stored verbatim so prefix iteration follows key order.
type Manager struct {
	store storage.Store
}

// NewManager creates a state manager operating on the provided store, usually
// the transaction of a single invocation.
func NewManager(store storage.Store) *Manager {
	return &Manager{store: store}
}

// KVPut stores the provided value under the supplied key using RLP encoding.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.store.Put(key, encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.store.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the supplied key. Missing keys are not an error.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return m.store.Delete(key)
}

// kvIterate walks every key under prefix strictly after the given suffix,
// handing the suffix and raw value to fn.
func (m *Manager) kvIterate(prefix []byte, after []byte, fn func(suffix, value []byte) (bool, error)) error {
	var start []byte
	if after != nil {
		start = make([]byte, 0, len(prefix)+len(after)+1)
		start = append(start, prefix...)
		start = append(start, after...)
		start = append(start, 0x00)
	}
	var innerErr error
	err := m.store.Iterate(prefix, start, func(key, value []byte) bool {
		cont, err := fn(key[len(prefix):], value)
		if err != nil {
			innerErr = err
			return false
		}
		return cont
	})
	if err != nil {
		return err
	}
	return innerErr
}
