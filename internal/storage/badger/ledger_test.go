package badger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/subsidia/internal/common"
	"github.com/ternarybob/subsidia/internal/models"
)

func newTestLedger(t *testing.T) *LedgerStorage {
	t.Helper()

	cfg := &common.BadgerConfig{Path: t.TempDir()}
	db, err := NewBadgerDB(common.GetLogger(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &LedgerStorage{db: db, logger: common.GetLogger()}
}

func TestLedgerRoundTrip(t *testing.T) {
	ledger := newTestLedger(t)

	opp := models.NewOpportunity("子ども未来財団 地域活動助成")
	opp.OfficialURL = "https://example.or.jp/kodomo/boshu"

	shown, err := ledger.IsShown("user-1", opp.Title, opp.OfficialURL)
	require.NoError(t, err)
	assert.False(t, shown)

	require.NoError(t, ledger.RecordShown("user-1", opp))

	shown, err = ledger.IsShown("user-1", opp.Title, opp.OfficialURL)
	require.NoError(t, err)
	assert.True(t, shown)
}

func TestLedgerTitleMatchIsCaseInsensitive(t *testing.T) {
	ledger := newTestLedger(t)

	opp := models.NewOpportunity("Community Grant Program")
	require.NoError(t, ledger.RecordShown("user-1", opp))

	shown, err := ledger.IsShown("user-1", "community grant program", "")
	require.NoError(t, err)
	assert.True(t, shown)
}

func TestLedgerMatchesByURLAlone(t *testing.T) {
	ledger := newTestLedger(t)

	opp := models.NewOpportunity("地域助成プログラム")
	opp.OfficialURL = "https://example.or.jp/josei"
	require.NoError(t, ledger.RecordShown("user-1", opp))

	shown, err := ledger.IsShown("user-1", "別の名前で再登場した助成", "https://example.or.jp/josei")
	require.NoError(t, err)
	assert.True(t, shown)
}

func TestLedgerScopesAreIsolated(t *testing.T) {
	ledger := newTestLedger(t)

	opp := models.NewOpportunity("地域助成プログラム")
	opp.OfficialURL = "https://example.or.jp/josei"
	require.NoError(t, ledger.RecordShown("user-1", opp))

	shown, err := ledger.IsShown("user-2", opp.Title, opp.OfficialURL)
	require.NoError(t, err)
	assert.False(t, shown)
}

func TestLedgerShownTitles(t *testing.T) {
	ledger := newTestLedger(t)

	for _, title := range []string{"助成A", "助成B", "助成C"} {
		opp := models.NewOpportunity(title)
		require.NoError(t, ledger.RecordShown("user-1", opp))
		time.Sleep(5 * time.Millisecond)
	}

	titles, err := ledger.ShownTitles("user-1", 2)
	require.NoError(t, err)
	require.Len(t, titles, 2)
	assert.Equal(t, "助成C", titles[0])
	assert.Equal(t, "助成B", titles[1])

	all, err := ledger.ShownTitles("user-1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestLedgerRejectsEmptyTitle(t *testing.T) {
	ledger := newTestLedger(t)

	err := ledger.RecordShown("user-1", models.NewOpportunity(""))
	assert.Error(t, err)
}
