package interfaces

import "github.com/ternarybob/subsidia/internal/models"

// HistoryLedger records which opportunities were already surfaced to a
// scope (an end user or organization), so repeat discovery runs do not
// present the same grant twice.
type HistoryLedger interface {
	// IsShown reports whether an opportunity with this title or URL was
	// already recorded for the scope. Title comparison is case-insensitive.
	IsShown(scope, title, url string) (bool, error)

	// RecordShown appends a ledger entry for the opportunity.
	RecordShown(scope string, opp *models.Opportunity) error

	// ShownTitles lists titles already recorded for the scope, newest
	// first, capped at limit. Zero limit means no cap.
	ShownTitles(scope string, limit int) ([]string, error)

	// Close releases the underlying store.
	Close() error
}
