package notifier

import (
	"context"

	"github.com/jwalitptl/lab-api/internal/model"
)

// Notifier delivers one critical-result notification. Implementations
// return an error for the dispatcher to retry; they do not retry
// themselves.
type Notifier interface {
	NotifyCriticalResult(ctx context.Context, alert *model.Alert, result *model.Result) error
}

// Directory resolves provider IDs to notification addresses. Identity
// is an external collaborator; this interface is the seam it plugs
// into.
type Directory interface {
	ProviderEmail(ctx context.Context, providerID string) (string, error)
}
