package incubation

import (
	"github.com/okian/hatch/internal/domain/failure"
	"github.com/okian/hatch/internal/domain/model"
)

// Null is the Incubator used when no talent is selected. It is never
// incubating, polls to nothing and stops silently. It cannot adopt a
// pair: doing so means the real engine was never wired.
type Null struct{}

// NullIncubator is the shared Null instance.
var NullIncubator Incubator = Null{}

// Incubate always fails with failure.ErrNotConfigured.
func (Null) Incubate(model.Talent, model.Session) error {
	return failure.NewKind("incubation.incubate", failure.ErrNotConfigured)
}

// Poll reports nothing.
func (Null) Poll() (*model.Pair, error) { return nil, nil }

// Stop is a no-op.
func (Null) Stop() error { return nil }

// IsIncubating is always false.
func (Null) IsIncubating() bool { return false }
