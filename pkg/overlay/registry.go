package overlay

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Annotator names registered by this package.
const (
	NameBasic = "basic"
	NameNone  = "none"
)

// ErrUnknownAnnotator is returned by New for a name nobody registered.
var ErrUnknownAnnotator = errors.New("overlay: unknown annotator")

// Factory builds an annotator encoding at quality.
type Factory func(quality int) Annotator

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// Register makes an annotator available to New.
func Register(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// New builds the named annotator.
func New(name string, quality int) (Annotator, error) {
	factoriesMu.RLock()
	f, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownAnnotator, name, Names())
	}
	return f(quality), nil
}

// Names returns the registered annotator names, sorted.
func Names() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register(NameBasic, func(quality int) Annotator { return NewBasic(quality) })
	Register(NameNone, func(int) Annotator { return Passthrough{} })
}
