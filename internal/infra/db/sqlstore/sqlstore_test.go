package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/iaccessible/internal/domain/credits"
	"github.com/bryanwahyu/iaccessible/internal/domain/scanerrors"
	"github.com/bryanwahyu/iaccessible/internal/domain/scans"
	"github.com/bryanwahyu/iaccessible/internal/infra/db/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sqlite.Connect(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(context.Background(), db, SQLite))
	return db
}

func strp(s string) *string { return &s }

func sampleRecord(id, user string, end time.Time) *scans.ScanRecord {
	return &scans.ScanRecord{
		ID:                scans.ScanID(id),
		UserID:            user,
		TargetURL:         "https://example.com/",
		ScanLabel:         "webpage-label",
		ScanType:          scans.TypeWebpageAccessibility,
		ServicesRequested: scans.Services{Accessibility: true, SEO: true},
		Status:            scans.StatusCompleted,
		StartTimestamp:    end.Add(-2 * time.Second),
		EndTimestamp:      end,
		CreditsConsumed:   10,
		SummaryCounts:     scans.SummaryCounts{Violation: 2, Pass: 7, Elapsed: 1200},
		ToolID:            "iaccessible-checker-v1.0",
		RuleArchive:       "latest",
		Policies:          []string{"WCAG_2_1"},
		NumRulesExecuted:  9,
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Migrate(context.Background(), db, SQLite))
}

func TestScanRepository_SaveAndRead(t *testing.T) {
	ctx := context.Background()
	repo := NewScanRepository(openTestDB(t), SQLite)
	end := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	rec := sampleRecord("11111111-1111-1111-1111-111111111111", "user-1", end)
	require.NoError(t, repo.SaveScan(ctx, rec))

	items := []scans.ResultItem{
		{RuleID: "img_alt_valid", ReasonID: strp("Fail_1"), Level: scans.LevelViolation, Value: "VALUE_PV_GROUP_REQUIRED,FAIL",
			Message: "Image does not have a text alternative", Snippet: `<img src="a.png">`,
			PathDOM: strp("/html[1]/body[1]/img[1]"), PathARIA: strp("/document[1]/img[1]"), Category: "Perceivable", PageURL: rec.TargetURL},
		{RuleID: "html_lang_exists", Level: scans.LevelViolation, Value: "VALUE_PV_GROUP_REQUIRED,FAIL",
			Message: "missing lang", Snippet: "<html>", Category: "Understandable", PageURL: rec.TargetURL},
	}
	require.NoError(t, repo.SaveResultItems(ctx, rec.ID, items))

	got, err := repo.Get(ctx, "user-1", rec.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.ServicesRequested, got.ServicesRequested)
	assert.Equal(t, rec.SummaryCounts, got.SummaryCounts)
	assert.Equal(t, rec.Policies, got.Policies)
	assert.True(t, rec.EndTimestamp.Equal(got.EndTimestamp))
	assert.Equal(t, int64(10), got.CreditsConsumed)

	foreign, err := repo.Get(ctx, "user-2", rec.ID)
	require.NoError(t, err)
	assert.Nil(t, foreign)

	stored, err := repo.ListItems(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "img_alt_valid", stored[0].RuleID)
	assert.Equal(t, "Fail_1", *stored[0].ReasonID)
	assert.Equal(t, "/html[1]/body[1]/img[1]", *stored[0].PathDOM)
	assert.NotEmpty(t, stored[0].ID)
	assert.Nil(t, stored[1].ReasonID)
	assert.Nil(t, stored[1].PathARIA)
	assert.Equal(t, rec.ID, stored[1].ScanID)
}

func TestScanRepository_ItemBatchIsAtomic(t *testing.T) {
	ctx := context.Background()
	repo := NewScanRepository(openTestDB(t), SQLite)
	rec := sampleRecord("22222222-2222-2222-2222-222222222222", "user-1", time.Now())
	require.NoError(t, repo.SaveScan(ctx, rec))

	// the duplicate id fails the second insert, so the first must roll back too
	items := []scans.ResultItem{
		{ID: "dup", RuleID: "a", Level: scans.LevelViolation},
		{ID: "dup", RuleID: "b", Level: scans.LevelViolation},
	}
	require.Error(t, repo.SaveResultItems(ctx, rec.ID, items))

	stored, err := repo.ListItems(ctx, rec.ID)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestScanRepository_LatestAndPaginate(t *testing.T) {
	ctx := context.Background()
	repo := NewScanRepository(openTestDB(t), SQLite)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("00000000-0000-0000-0000-00000000000%d", i)
		require.NoError(t, repo.SaveScan(ctx, sampleRecord(id, "user-1", base.Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, repo.SaveScan(ctx, sampleRecord("99999999-0000-0000-0000-000000000000", "user-2", base)))

	latest, err := repo.Latest(ctx, "user-1", 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, scans.ScanID("00000000-0000-0000-0000-000000000004"), latest[0].ID)

	page, err := repo.Paginate(ctx, "user-1", 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Data, 2)
	assert.Equal(t, scans.ScanID("00000000-0000-0000-0000-000000000002"), page.Data[0].ID)

	empty, err := repo.Paginate(ctx, "nobody", 1, 10)
	require.NoError(t, err)
	assert.NotNil(t, empty.Data)
	assert.Zero(t, empty.Total)
}

func TestScanRepository_PaginateHugePageStaysInRange(t *testing.T) {
	ctx := context.Background()
	repo := NewScanRepository(openTestDB(t), SQLite)
	require.NoError(t, repo.SaveScan(ctx, sampleRecord("00000000-0000-0000-0000-000000000001", "user-1", time.Now().UTC())))

	page, err := repo.Paginate(ctx, "user-1", math.MaxInt, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	assert.Empty(t, page.Data)
	assert.Positive(t, page.Page)
}

func TestLedger_DebitSuccess(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(openTestDB(t), SQLite)
	require.NoError(t, l.EnsureUser(ctx, "user-1", "a@example.com", 25))

	tx, err := l.Debit(ctx, credits.Debit{
		UserID:        "user-1",
		Cost:          10,
		Type:          credits.TypeScanUsageWebpageAccessibility,
		Description:   "Ad-hoc accessibility scan for URL: https://example.com",
		RelatedScanID: "scan-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(-10), tx.Amount)
	assert.Equal(t, int64(15), tx.BalanceAfter)

	u, err := l.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(15), u.CreditBalance)

	txs, err := l.Transactions(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "scan-1", txs[0].RelatedScanID)
	assert.Equal(t, u.CreditBalance, txs[0].BalanceAfter)
	assert.Equal(t, credits.TypeScanUsageWebpageAccessibility, txs[0].Type)
}

func TestLedger_DebitExactBalanceReachesZero(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(openTestDB(t), SQLite)
	require.NoError(t, l.EnsureUser(ctx, "user-1", "", 10))

	tx, err := l.Debit(ctx, credits.Debit{UserID: "user-1", Cost: 10, Type: credits.TypeScanUsageWebpageAccessibility})
	require.NoError(t, err)
	assert.Zero(t, tx.BalanceAfter)
}

func TestLedger_DebitInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(openTestDB(t), SQLite)
	require.NoError(t, l.EnsureUser(ctx, "user-1", "", 9))

	_, err := l.Debit(ctx, credits.Debit{UserID: "user-1", Cost: 10, Type: credits.TypeScanUsageWebpageAccessibility})
	assert.ErrorIs(t, err, credits.ErrInsufficientFunds)

	u, err := l.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(9), u.CreditBalance)

	txs, err := l.Transactions(ctx, "user-1", 10)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestLedger_DebitProfileNotFound(t *testing.T) {
	l := NewLedger(openTestDB(t), SQLite)
	_, err := l.Debit(context.Background(), credits.Debit{UserID: "ghost", Cost: 10})
	assert.ErrorIs(t, err, credits.ErrProfileNotFound)

	_, err = l.Balance(context.Background(), "ghost")
	assert.ErrorIs(t, err, credits.ErrProfileNotFound)
}

func TestLedger_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(openTestDB(t), SQLite)
	require.NoError(t, l.EnsureUser(ctx, "user-1", "", 10))

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		short     int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Debit(ctx, credits.Debit{UserID: "user-1", Cost: 10, Type: credits.TypeScanUsageWebpageAccessibility})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case assert.ErrorIs(t, err, credits.ErrInsufficientFunds):
				short++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, short)

	u, err := l.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Zero(t, u.CreditBalance)

	txs, err := l.Transactions(ctx, "user-1", 20)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestLedger_Grant(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(openTestDB(t), SQLite)

	_, err := l.Grant(ctx, "user-1", 50, "welcome", false)
	assert.ErrorIs(t, err, credits.ErrProfileNotFound)

	tx, err := l.Grant(ctx, "user-1", 50, "welcome", true)
	require.NoError(t, err)
	assert.Equal(t, int64(50), tx.BalanceAfter)
	assert.Equal(t, credits.TypeGrant, tx.Type)

	tx, err = l.Grant(ctx, "user-1", 5, "bonus", true)
	require.NoError(t, err)
	assert.Equal(t, int64(55), tx.BalanceAfter)

	txs, err := l.Transactions(ctx, "user-1", 10)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestScanErrorRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewScanErrorRepository(openTestDB(t), SQLite)

	require.NoError(t, repo.Save(ctx, &scanerrors.ScanError{
		UserID:      "user-1",
		ScanID:      "scan-1",
		URL:         "https://example.com",
		Phase:       scanerrors.PhaseSettle,
		Message:     "db down",
		DetailsJSON: "not json",
	}))
	require.NoError(t, repo.Save(ctx, &scanerrors.ScanError{UserID: "user-1", ScanID: "scan-2", Phase: scanerrors.PhasePersist}))

	list, err := repo.ListByScan(ctx, "user-1", "scan-1", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, scanerrors.PhaseSettle, list[0].Phase)
	assert.JSONEq(t, `{"raw":"not json"}`, list[0].DetailsJSON)
	assert.NotZero(t, list[0].ID)

	other, err := repo.ListByScan(ctx, "user-1", "scan-2", 0)
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, "-", other[0].Message)
	assert.Equal(t, "{}", other[0].DetailsJSON)
}

func TestRebind(t *testing.T) {
	q := `SELECT a FROM t WHERE x = ? AND y = ?`
	assert.Equal(t, q, SQLite.Rebind(q))
	assert.Equal(t, `SELECT a FROM t WHERE x = $1 AND y = $2`, Postgres.Rebind(q))
}

func TestSchemaPerDialect(t *testing.T) {
	mysql := schema(MySQL)
	assert.Contains(t, mysql[1], "DATETIME(6)")
	assert.Contains(t, mysql[1], "INDEX idx_scans_user_end")
	assert.Len(t, mysql, 5)

	pg := schema(Postgres)
	assert.Contains(t, pg[4], "BIGSERIAL PRIMARY KEY")
	assert.Len(t, pg, 8)
}
