package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	domain "github.com/bryanwahyu/iaccessible/internal/domain/scanerrors"
)

type ScanErrorRepository struct {
	db      *sql.DB
	dialect Dialect
}

func NewScanErrorRepository(db *sql.DB, d Dialect) *ScanErrorRepository {
	return &ScanErrorRepository{db: db, dialect: d}
}

func (r *ScanErrorRepository) Save(ctx context.Context, e *domain.ScanError) error {
	const q = `
INSERT INTO scan_errors
  (user_id, scan_id, url, phase, message, details_json, created_at)
VALUES (?,?,?,?,?,?,?)
`
	msg := e.Message
	if strings.TrimSpace(msg) == "" {
		msg = "-"
	}
	details := e.DetailsJSON
	if strings.TrimSpace(details) == "" {
		details = "{}"
	} else {
		// invalid json gets wrapped as a raw string field
		var js any
		if json.Unmarshal([]byte(details), &js) != nil {
			b, _ := json.Marshal(map[string]string{"raw": details})
			details = string(b)
		}
	}
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(q),
		stringOrDash(e.UserID), stringOrDash(e.ScanID), e.URL, stringOrDash(string(e.Phase)),
		msg, details, utc(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting scan error: %w", err)
	}
	return nil
}

// ListByScan returns the newest errors recorded for one scan of userID.
func (r *ScanErrorRepository) ListByScan(ctx context.Context, userID string, scanID string, limit int) ([]*domain.ScanError, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, user_id, scan_id, url, phase, message, details_json, created_at
FROM scan_errors
WHERE user_id = ? AND scan_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?`
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(q), userID, scanID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying scan errors: %w", err)
	}
	defer rows.Close()

	out := []*domain.ScanError{}
	for rows.Next() {
		var e domain.ScanError
		if err := rows.Scan(&e.ID, &e.UserID, &e.ScanID, &e.URL, &e.Phase, &e.Message, &e.DetailsJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning scan error row: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
