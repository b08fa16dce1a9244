package common

import "errors"

var ErrModulePaused = errors.New("module paused")

// ModuleEscrow names the escrow module for pause lookups.
const ModuleEscrow = "escrow"

// PauseView reports whether a named module has been administratively frozen.
type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
