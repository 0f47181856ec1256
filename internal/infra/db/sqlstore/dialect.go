// Package sqlstore implements the scan, ledger and scan-error repositories on
// database/sql for MySQL, Postgres and SQLite.
package sqlstore

import (
	"strconv"
	"strings"
)

// Dialect selects placeholder style and DDL fragments.
type Dialect int

const (
	MySQL Dialect = iota
	Postgres
	SQLite
)

func (d Dialect) String() string {
	switch d {
	case MySQL:
		return "mysql"
	case Postgres:
		return "postgres"
	case SQLite:
		return "sqlite"
	default:
		return "unknown"
	}
}

// Rebind rewrites ? placeholders to $1..$n for Postgres.
func (d Dialect) Rebind(q string) string {
	if d != Postgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d Dialect) timestampType() string {
	switch d {
	case MySQL:
		return "DATETIME(6)"
	case Postgres:
		return "TIMESTAMPTZ"
	default:
		return "DATETIME"
	}
}

func (d Dialect) serialPK() string {
	switch d {
	case MySQL:
		return "BIGINT AUTO_INCREMENT PRIMARY KEY"
	case Postgres:
		return "BIGSERIAL PRIMARY KEY"
	default:
		return "INTEGER PRIMARY KEY AUTOINCREMENT"
	}
}

// insertIgnore returns the statement prefix and suffix for an insert that
// silently skips an existing primary key.
func (d Dialect) insertIgnore() (prefix, suffix string) {
	if d == MySQL {
		return "INSERT IGNORE INTO", ""
	}
	return "INSERT INTO", " ON CONFLICT (id) DO NOTHING"
}
