package common

import (
	"errors"
	"fmt"
)

// ErrModulePaused is matched by every PausedError.
var ErrModulePaused = errors.New("module paused")

// PauseView exposes the pause switch of a module.
type PauseView interface {
	IsPaused(module string) bool
}

// PausedError names the module that refused the call.
type PausedError struct {
	Module string
}

func (e *PausedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Module, ErrModulePaused)
}

func (e *PausedError) Unwrap() error { return ErrModulePaused }

// Guard returns a *PausedError when module is paused in p. A nil view or an
// empty module name never blocks.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return &PausedError{Module: module}
	}
	return nil
}
