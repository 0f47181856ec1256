package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	domain "github.com/bryanwahyu/iaccessible/internal/domain/scans"
)

type ScanRepository struct {
	db      *sql.DB
	dialect Dialect
}

func NewScanRepository(db *sql.DB, d Dialect) *ScanRepository {
	return &ScanRepository{db: db, dialect: d}
}

const scanColumns = `id, user_id, target_url, scan_label, scan_type, services_json, status,
 start_timestamp, end_timestamp, credits_consumed,
 violation, potential_violation, recommendation, potential_recommendation, manual, pass, ignored, elapsed_ms,
 tool_id, rule_archive, policies_json, num_rules_executed, report_url`

// SaveScan inserts a ScanRecord. Records are never updated afterwards.
func (r *ScanRepository) SaveScan(ctx context.Context, s *domain.ScanRecord) error {
	q := `INSERT INTO scans (` + scanColumns + `)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`

	c := s.SummaryCounts
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(q),
		string(s.ID), s.UserID, s.TargetURL, s.ScanLabel, string(s.ScanType), toJSON(s.ServicesRequested), string(s.Status),
		utc(s.StartTimestamp), utc(s.EndTimestamp), s.CreditsConsumed,
		c.Violation, c.PotentialViolation, c.Recommendation, c.PotentialRecommendation, c.Manual, c.Pass, c.Ignored, c.Elapsed,
		stringOrDash(s.ToolID), stringOrDash(s.RuleArchive), toJSON(s.Policies), s.NumRulesExecuted, s.ReportURL,
	)
	if err != nil {
		return fmt.Errorf("inserting scan %s: %w", s.ID, err)
	}
	return nil
}

// SaveResultItems writes all items in a single transaction: either every item
// becomes visible or none does.
func (r *ScanRepository) SaveResultItems(ctx context.Context, scanID domain.ScanID, items []domain.ResultItem) (err error) {
	if len(items) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning item batch: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, r.dialect.Rebind(`INSERT INTO scan_result_items
 (id, scan_id, seq, rule_id, reason_id, level, value_code, message, snippet, path_dom, path_aria, category, page_url)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`))
	if err != nil {
		return fmt.Errorf("preparing item insert: %w", err)
	}
	defer stmt.Close()

	for i := range items {
		it := &items[i]
		if it.ID == "" {
			it.ID = uuid.New().String()
		}
		it.ScanID = scanID
		if _, err = stmt.ExecContext(ctx,
			it.ID, string(scanID), i, it.RuleID, nullString(it.ReasonID), it.Level, it.Value, it.Message, it.Snippet,
			nullString(it.PathDOM), nullString(it.PathARIA), it.Category, it.PageURL,
		); err != nil {
			return fmt.Errorf("inserting item %d of scan %s: %w", i, scanID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing item batch: %w", err)
	}
	return nil
}

// Get returns nil, nil when no scan with id belongs to userID.
func (r *ScanRepository) Get(ctx context.Context, userID string, id domain.ScanID) (*domain.ScanRecord, error) {
	q := `SELECT ` + scanColumns + ` FROM scans WHERE user_id=? AND id=? LIMIT 1`
	s, err := scanRecord(r.db.QueryRowContext(ctx, r.dialect.Rebind(q), userID, string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// Latest scans per user
func (r *ScanRepository) Latest(ctx context.Context, userID string, limit int) ([]*domain.ScanRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT ` + scanColumns + ` FROM scans WHERE user_id=? ORDER BY end_timestamp DESC, id DESC LIMIT ?`
	return r.query(ctx, q, userID, limit)
}

// Paginate with offset + limit (classic pagination)
func (r *ScanRepository) Paginate(ctx context.Context, userID string, page, pageSize int) (domain.PaginatedResult, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	// keep the offset inside what every driver accepts
	if maxPage := math.MaxInt32 / pageSize; page > maxPage {
		page = maxPage
	}
	offset := (page - 1) * pageSize

	var total int64
	if err := r.db.QueryRowContext(ctx, r.dialect.Rebind(`SELECT COUNT(*) FROM scans WHERE user_id=?`), userID).Scan(&total); err != nil {
		return domain.PaginatedResult{}, fmt.Errorf("counting scans: %w", err)
	}

	q := `SELECT ` + scanColumns + ` FROM scans WHERE user_id=? ORDER BY end_timestamp DESC, id DESC LIMIT ? OFFSET ?`
	data, err := r.query(ctx, q, userID, pageSize, offset)
	if err != nil {
		return domain.PaginatedResult{}, err
	}
	if data == nil {
		data = []*domain.ScanRecord{}
	}

	return domain.PaginatedResult{
		Data:       data,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(pageSize))),
	}, nil
}

// ListItems returns a scan's findings in report order.
func (r *ScanRepository) ListItems(ctx context.Context, scanID domain.ScanID) ([]domain.ResultItem, error) {
	const q = `SELECT id, scan_id, rule_id, reason_id, level, value_code, message, snippet, path_dom, path_aria, category, page_url
FROM scan_result_items WHERE scan_id=? ORDER BY seq ASC`
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(q), string(scanID))
	if err != nil {
		return nil, fmt.Errorf("querying items: %w", err)
	}
	defer rows.Close()

	out := []domain.ResultItem{}
	for rows.Next() {
		var it domain.ResultItem
		var reason, dom, aria sql.NullString
		if err := rows.Scan(&it.ID, &it.ScanID, &it.RuleID, &reason, &it.Level, &it.Value, &it.Message, &it.Snippet,
			&dom, &aria, &it.Category, &it.PageURL); err != nil {
			return nil, fmt.Errorf("scanning item row: %w", err)
		}
		it.ReasonID = nullable(reason)
		it.PathDOM = nullable(dom)
		it.PathARIA = nullable(aria)
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *ScanRepository) query(ctx context.Context, q string, args ...any) ([]*domain.ScanRecord, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("querying scans: %w", err)
	}
	defer rows.Close()

	var out []*domain.ScanRecord
	for rows.Next() {
		s, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.ScanRecord, error) {
	var s domain.ScanRecord
	var services, policies string
	c := &s.SummaryCounts
	if err := row.Scan(
		&s.ID, &s.UserID, &s.TargetURL, &s.ScanLabel, &s.ScanType, &services, &s.Status,
		&s.StartTimestamp, &s.EndTimestamp, &s.CreditsConsumed,
		&c.Violation, &c.PotentialViolation, &c.Recommendation, &c.PotentialRecommendation, &c.Manual, &c.Pass, &c.Ignored, &c.Elapsed,
		&s.ToolID, &s.RuleArchive, &policies, &s.NumRulesExecuted, &s.ReportURL,
	); err != nil {
		return nil, err
	}
	fromJSON(services, &s.ServicesRequested)
	fromJSON(policies, &s.Policies)
	return &s, nil
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
