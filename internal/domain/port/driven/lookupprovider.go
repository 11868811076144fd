package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/prharmony/internal/domain/model"
)

// LookupProvider is the search capability behind a multi-select control.
// One implementation exists per entity kind.
type LookupProvider interface {
	// Kind names the entity kind ("user", "group") for logs and metrics.
	Kind() string
	Search(ctx context.Context, query string) ([]model.SelectableEntity, error)
	// MinimumQueryLength is the rune count below which no search is issued.
	MinimumQueryLength() int
	// QuietPeriod is the debounce interval between the last keystroke and the search.
	QuietPeriod() time.Duration
	// FormatResult renders an entity in the suggestion list.
	FormatResult(e model.SelectableEntity) string
	// FormatSelection renders an entity as a selected tag.
	FormatSelection(e model.SelectableEntity) string
}
