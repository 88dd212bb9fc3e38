package badger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/subsidia/internal/interfaces"
	"github.com/ternarybob/subsidia/internal/models"
)

// LedgerStorage implements the HistoryLedger interface for Badger
type LedgerStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewLedgerStorage creates a new LedgerStorage instance
func NewLedgerStorage(db *BadgerDB, logger arbor.ILogger) interfaces.HistoryLedger {
	return &LedgerStorage{
		db:     db,
		logger: logger,
	}
}

// IsShown reports whether an opportunity with this title or URL was
// already recorded for the scope. Titles compare case-insensitively.
func (s *LedgerStorage) IsShown(scope, title, url string) (bool, error) {
	var records []models.ShownRecord
	if err := s.db.Store().Find(&records, badgerhold.Where("Scope").Eq(scope)); err != nil {
		return false, fmt.Errorf("failed to query ledger: %w", err)
	}

	lowerTitle := strings.ToLower(strings.TrimSpace(title))
	for _, record := range records {
		if lowerTitle != "" && record.LowerTitle == lowerTitle {
			return true, nil
		}
		if url != "" && record.URL == url {
			return true, nil
		}
	}
	return false, nil
}

// RecordShown appends a ledger entry for the opportunity.
func (s *LedgerStorage) RecordShown(scope string, opp *models.Opportunity) error {
	if opp == nil || opp.Title == "" {
		return fmt.Errorf("opportunity title is required")
	}

	record := models.ShownRecord{
		Key:        uuid.New().String(),
		Scope:      scope,
		Title:      opp.Title,
		LowerTitle: strings.ToLower(strings.TrimSpace(opp.Title)),
		URL:        opp.OfficialURL,
		ShownAt:    time.Now(),
	}

	if err := s.db.Store().Insert(record.Key, &record); err != nil {
		return fmt.Errorf("failed to record shown opportunity: %w", err)
	}

	s.logger.Debug().
		Str("scope", scope).
		Str("title", opp.Title).
		Msg("Opportunity recorded in history ledger")
	return nil
}

// ShownTitles returns the titles already recorded for a scope, newest
// first, capped at limit. Used to build search exclusion lists.
func (s *LedgerStorage) ShownTitles(scope string, limit int) ([]string, error) {
	var records []models.ShownRecord
	query := badgerhold.Where("Scope").Eq(scope).SortBy("ShownAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to list shown titles: %w", err)
	}

	titles := make([]string, 0, len(records))
	for _, record := range records {
		titles = append(titles, record.Title)
	}
	return titles, nil
}

// Close releases the underlying store.
func (s *LedgerStorage) Close() error {
	return s.db.Close()
}
