package common

import (
	"errors"
	"fmt"
)

var ErrModulePaused = errors.New("module paused")

type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects mutations against a paused module. A nil view pauses nothing.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return fmt.Errorf("%w: %s", ErrModulePaused, module)
	}
	return nil
}

// PausedSet is a static PauseView built from configuration.
type PausedSet map[string]bool

func NewPausedSet(modules ...string) PausedSet {
	set := make(PausedSet, len(modules))
	for _, module := range modules {
		if module != "" {
			set[module] = true
		}
	}
	return set
}

func (s PausedSet) IsPaused(module string) bool {
	return s[module]
}
