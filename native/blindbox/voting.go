package blindbox

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"ddbox/core/types"
)

// CommitmentFor returns hex(sha256(address|value|salt)), the commitment a
// participant must submit before revealing value and salt.
func CommitmentFor(address, value, salt string) string {
	sum := sha256.Sum256([]byte(address + "|" + value + "|" + salt))
	return hex.EncodeToString(sum[:])
}

// Commit stores the caller's commitment, replacing any earlier one.
func (e *Engine) Commit(env types.Env, commitment string) error {
	cfg, err := e.loadConfig()
	if err != nil {
		return err
	}
	if cfg.Phase != PhaseCommit {
		return ErrCommitNotActive
	}
	if !cfg.CommitWindow.Contains(env.Height, env.Time) {
		return newOutsideWindowError(WindowCommit, cfg.CommitWindow, env.Height, env.Time)
	}
	if err := e.state.BlindBoxPutCommitment(env.Caller, commitment); err != nil {
		return fmt.Errorf("blindbox engine: store commitment: %w", err)
	}
	e.emit(CommittedEvent(env.Caller))
	return nil
}

// Reveal opens the caller's commitment. Nothing is stored unless the value and
// salt hash to the committed string.
func (e *Engine) Reveal(env types.Env, value, salt string) error {
	cfg, err := e.loadConfig()
	if err != nil {
		return err
	}
	if cfg.Phase != PhaseReveal {
		return ErrRevealNotActive
	}
	if !cfg.RevealWindow.Contains(env.Height, env.Time) {
		return newOutsideWindowError(WindowReveal, cfg.RevealWindow, env.Height, env.Time)
	}
	committed, ok, err := e.state.BlindBoxCommitment(env.Caller)
	if err != nil {
		return fmt.Errorf("blindbox engine: load commitment: %w", err)
	}
	if !ok {
		return ErrNothingToReveal
	}
	if CommitmentFor(env.Caller, value, salt) != committed {
		return ErrCommitmentMismatch
	}
	if err := e.state.BlindBoxPutReveal(env.Caller, &Reveal{Value: value, Salt: salt}); err != nil {
		return fmt.Errorf("blindbox engine: store reveal: %w", err)
	}
	e.emit(RevealedEvent(env.Caller))
	return nil
}
