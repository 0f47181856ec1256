package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Migrate creates every table and index the repositories need. It is idempotent.
func Migrate(ctx context.Context, db *sql.DB, d Dialect) error {
	for _, stmt := range schema(d) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrating %s schema: %w", d, err)
		}
	}
	return nil
}

func schema(d Dialect) []string {
	ts := d.timestampType()
	r := strings.NewReplacer("{ts}", ts, "{serial}", d.serialPK())

	tables := []string{
		`CREATE TABLE IF NOT EXISTS users (
  id VARCHAR(128) PRIMARY KEY,
  email VARCHAR(255) NOT NULL DEFAULT '',
  credit_balance BIGINT NOT NULL DEFAULT 0,
  created_at {ts} NOT NULL,
  updated_at {ts} NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS scans (
  id VARCHAR(64) PRIMARY KEY,
  user_id VARCHAR(128) NOT NULL,
  target_url TEXT NOT NULL,
  scan_label TEXT NOT NULL,
  scan_type VARCHAR(64) NOT NULL,
  services_json TEXT NOT NULL,
  status VARCHAR(32) NOT NULL,
  start_timestamp {ts} NOT NULL,
  end_timestamp {ts} NOT NULL,
  credits_consumed BIGINT NOT NULL,
  violation INT NOT NULL DEFAULT 0,
  potential_violation INT NOT NULL DEFAULT 0,
  recommendation INT NOT NULL DEFAULT 0,
  potential_recommendation INT NOT NULL DEFAULT 0,
  manual INT NOT NULL DEFAULT 0,
  pass INT NOT NULL DEFAULT 0,
  ignored INT NOT NULL DEFAULT 0,
  elapsed_ms BIGINT NOT NULL DEFAULT 0,
  tool_id VARCHAR(128) NOT NULL,
  rule_archive VARCHAR(128) NOT NULL,
  policies_json TEXT NOT NULL,
  num_rules_executed INT NOT NULL DEFAULT 0,
  report_url TEXT NOT NULL{mysql_scans_idx}
)`,
		`CREATE TABLE IF NOT EXISTS scan_result_items (
  id VARCHAR(64) PRIMARY KEY,
  scan_id VARCHAR(64) NOT NULL,
  seq INT NOT NULL,
  rule_id VARCHAR(128) NOT NULL,
  reason_id VARCHAR(128) NULL,
  level VARCHAR(64) NOT NULL,
  value_code TEXT NOT NULL,
  message TEXT NOT NULL,
  snippet TEXT NOT NULL,
  path_dom TEXT NULL,
  path_aria TEXT NULL,
  category VARCHAR(128) NOT NULL,
  page_url TEXT NOT NULL{mysql_items_idx}
)`,
		`CREATE TABLE IF NOT EXISTS credit_transactions (
  id VARCHAR(64) PRIMARY KEY,
  user_id VARCHAR(128) NOT NULL,
  amount BIGINT NOT NULL,
  type VARCHAR(64) NOT NULL,
  description TEXT NOT NULL,
  related_scan_id VARCHAR(64) NOT NULL DEFAULT '',
  transaction_date {ts} NOT NULL,
  balance_after BIGINT NOT NULL{mysql_tx_idx}
)`,
		`CREATE TABLE IF NOT EXISTS scan_errors (
  id {serial},
  user_id VARCHAR(128) NOT NULL,
  scan_id VARCHAR(64) NOT NULL,
  url TEXT NOT NULL,
  phase VARCHAR(32) NOT NULL,
  message TEXT NOT NULL,
  details_json TEXT NOT NULL,
  created_at {ts} NOT NULL
)`,
	}

	// MySQL has no CREATE INDEX IF NOT EXISTS, so its indexes live in the table DDL.
	idx := strings.NewReplacer(
		"{mysql_scans_idx}", "",
		"{mysql_items_idx}", "",
		"{mysql_tx_idx}", "",
	)
	if d == MySQL {
		idx = strings.NewReplacer(
			"{mysql_scans_idx}", ",\n  INDEX idx_scans_user_end (user_id, end_timestamp)",
			"{mysql_items_idx}", ",\n  INDEX idx_items_scan (scan_id, seq)",
			"{mysql_tx_idx}", ",\n  INDEX idx_tx_user_date (user_id, transaction_date)",
		)
	}

	out := make([]string, 0, len(tables)+3)
	for _, t := range tables {
		out = append(out, idx.Replace(r.Replace(t)))
	}
	if d != MySQL {
		out = append(out,
			`CREATE INDEX IF NOT EXISTS idx_scans_user_end ON scans (user_id, end_timestamp)`,
			`CREATE INDEX IF NOT EXISTS idx_items_scan ON scan_result_items (scan_id, seq)`,
			`CREATE INDEX IF NOT EXISTS idx_tx_user_date ON credit_transactions (user_id, transaction_date)`,
		)
	}
	return out
}
