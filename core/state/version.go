package state

import (
	"errors"
	"fmt"

	"ddbox/storage"
)

// StateVersion is the record layout written by this binary. Bump it with any
// incompatible change to the stored blind-box records.
const StateVersion uint32 = 1

var stateVersionKey = []byte("state/version")

// ErrStateVersionMismatch is matched by every *VersionMismatchError.
var ErrStateVersionMismatch = errors.New("state: schema version mismatch")

// VersionMismatchError reports the layout found on disk.
type VersionMismatchError struct {
	OnDisk   uint32
	Expected uint32
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("%s: on-disk=%d expected=%d", ErrStateVersionMismatch, e.OnDisk, e.Expected)
}

func (e *VersionMismatchError) Unwrap() error { return ErrStateVersionMismatch }

// SetStateVersion stamps the store.
func (m *Manager) SetStateVersion(version uint32) error {
	if m == nil {
		return fmt.Errorf("state: manager unavailable")
	}
	return m.KVPut(stateVersionKey, version)
}

// StateVersion returns the stamped layout version, if any.
func (m *Manager) StateVersion() (uint32, bool, error) {
	if m == nil {
		return 0, false, fmt.Errorf("state: manager unavailable")
	}
	var stored uint32
	ok, err := m.KVGet(stateVersionKey, &stored)
	if err != nil {
		return 0, false, fmt.Errorf("state: read version: %w", err)
	}
	return stored, ok, nil
}

// EnsureStateVersion stamps an empty store with StateVersion and rejects a
// store written with another layout unless allowMigrate is set.
func EnsureStateVersion(db storage.Store, allowMigrate bool) error {
	if db == nil {
		return fmt.Errorf("state: store must not be nil")
	}
	manager := NewManager(db)
	version, ok, err := manager.StateVersion()
	if err != nil {
		return err
	}
	switch {
	case !ok:
		return manager.SetStateVersion(StateVersion)
	case version == StateVersion, allowMigrate:
		return nil
	default:
		return &VersionMismatchError{OnDisk: version, Expected: StateVersion}
	}
}
