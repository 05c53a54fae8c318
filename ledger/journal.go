// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// journalSchema holds the ledger rows plus a single-row meta table
// carrying the id watermark. The watermark outlives every row: rows
// come and go with retention, but next_id only moves forward.
const journalSchema = `
CREATE TABLE IF NOT EXISTS egress_ledger (
    id             INTEGER PRIMARY KEY,
    created_at     INTEGER NOT NULL,
    decision       TEXT NOT NULL,
    reason         TEXT NOT NULL DEFAULT '',
    dest_host      TEXT NOT NULL,
    dest_port      INTEGER NOT NULL,
    protocol       TEXT NOT NULL,
    bytes_in       INTEGER NOT NULL DEFAULT 0,
    bytes_out      INTEGER NOT NULL DEFAULT 0,
    corr_id        TEXT NOT NULL DEFAULT '',
    proj           TEXT NOT NULL DEFAULT '',
    posture        TEXT NOT NULL,
    matched_prefix TEXT NOT NULL DEFAULT '',
    lease_id       TEXT NOT NULL DEFAULT '',
    status         TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS egress_ledger_created
    ON egress_ledger (created_at);

CREATE TABLE IF NOT EXISTS ledger_meta (
    key   TEXT PRIMARY KEY,
    value INTEGER NOT NULL
);

INSERT OR IGNORE INTO ledger_meta (key, value) VALUES ('next_id', 1);
`

// Journal is the SQLite persistence layer behind a Ledger. A single
// connection suffices: the ledger serializes all writes under its own
// lock.
type Journal struct {
	pool *sqlitex.Pool
	path string
}

// OpenJournal opens (creating if needed) the ledger database at path.
// Use ":memory:" for a throwaway database in tests.
func OpenJournal(path string) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("ledger journal: path is required")
	}

	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize: 1,
		PrepareConn: func(conn *sqlite.Conn) error {
			pragmas := []string{
				"PRAGMA journal_mode=WAL",
				"PRAGMA synchronous=NORMAL",
				"PRAGMA busy_timeout=5000",
			}
			for _, pragma := range pragmas {
				if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
					return fmt.Errorf("%s: %w", pragma, err)
				}
			}
			return sqlitex.ExecuteScript(conn, journalSchema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("ledger journal: opening %s: %w", path, err)
	}

	return &Journal{pool: pool, path: path}, nil
}

// Close closes the underlying connection pool.
func (j *Journal) Close() error {
	if err := j.pool.Close(); err != nil {
		return fmt.Errorf("ledger journal: closing %s: %w", j.path, err)
	}
	return nil
}

func (j *Journal) take() (*sqlite.Conn, error) {
	conn, err := j.pool.Take(context.Background())
	if err != nil {
		return nil, fmt.Errorf("ledger journal: take: %w", err)
	}
	return conn, nil
}

// load reads every surviving record (oldest first) and the persisted
// id watermark.
func (j *Journal) load() ([]Record, uint64, error) {
	conn, err := j.take()
	if err != nil {
		return nil, 0, err
	}
	defer j.pool.Put(conn)

	var records []Record
	err = sqlitex.Execute(conn, `
		SELECT id, created_at, decision, reason, dest_host, dest_port,
		       protocol, bytes_in, bytes_out, corr_id, proj, posture,
		       matched_prefix, lease_id, status
		FROM egress_ledger ORDER BY id ASC`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				rec := Record{
					ID:        uint64(stmt.ColumnInt64(0)),
					CreatedAt: time.UnixMilli(stmt.ColumnInt64(1)).UTC(),
					Decision:  stmt.ColumnText(2),
					Reason:    stmt.ColumnText(3),
					DestHost:  stmt.ColumnText(4),
					DestPort:  stmt.ColumnInt(5),
					Protocol:  stmt.ColumnText(6),
					BytesIn:   stmt.ColumnInt64(7),
					BytesOut:  stmt.ColumnInt64(8),
					CorrID:    stmt.ColumnText(9),
					Project:   stmt.ColumnText(10),
					Posture:   stmt.ColumnText(11),
					Status:    Status(stmt.ColumnText(14)),
				}
				prefix := stmt.ColumnText(12)
				leaseID := stmt.ColumnText(13)
				if prefix != "" || leaseID != "" {
					rec.MatchedRule = &MatchedRule{Prefix: prefix, LeaseID: leaseID}
				}
				records = append(records, rec)
				return nil
			},
		})
	if err != nil {
		return nil, 0, fmt.Errorf("ledger journal: loading records: %w", err)
	}

	var nextID uint64
	err = sqlitex.Execute(conn,
		`SELECT value FROM ledger_meta WHERE key = 'next_id'`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				nextID = uint64(stmt.ColumnInt64(0))
				return nil
			},
		})
	if err != nil {
		return nil, 0, fmt.Errorf("ledger journal: loading watermark: %w", err)
	}

	return records, nextID, nil
}

// insert writes a freshly appended record and advances the persisted
// id watermark in one transaction.
func (j *Journal) insert(rec *Record, nextID uint64) (err error) {
	conn, err := j.take()
	if err != nil {
		return err
	}
	defer j.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("ledger journal: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	var matchedPrefix, leaseID string
	if rec.MatchedRule != nil {
		matchedPrefix = rec.MatchedRule.Prefix
		leaseID = rec.MatchedRule.LeaseID
	}

	err = sqlitex.Execute(conn, `
		INSERT INTO egress_ledger (
			id, created_at, decision, reason, dest_host, dest_port,
			protocol, bytes_in, bytes_out, corr_id, proj, posture,
			matched_prefix, lease_id, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				int64(rec.ID), rec.CreatedAt.UnixMilli(), rec.Decision,
				rec.Reason, rec.DestHost, rec.DestPort, rec.Protocol,
				rec.BytesIn, rec.BytesOut, rec.CorrID, rec.Project,
				rec.Posture, matchedPrefix, leaseID, string(rec.Status),
			},
		})
	if err != nil {
		return fmt.Errorf("ledger journal: insert %d: %w", rec.ID, err)
	}

	err = sqlitex.Execute(conn,
		`UPDATE ledger_meta SET value = ? WHERE key = 'next_id'`,
		&sqlitex.ExecOptions{Args: []any{int64(nextID)}})
	if err != nil {
		return fmt.Errorf("ledger journal: advancing watermark: %w", err)
	}
	return nil
}

// finalize writes a record's terminal status and final byte totals.
func (j *Journal) finalize(rec *Record) error {
	conn, err := j.take()
	if err != nil {
		return err
	}
	defer j.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		UPDATE egress_ledger
		SET bytes_in = ?, bytes_out = ?, status = ?
		WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{rec.BytesIn, rec.BytesOut, string(rec.Status), int64(rec.ID)},
		})
	if err != nil {
		return fmt.Errorf("ledger journal: finalize %d: %w", rec.ID, err)
	}
	return nil
}

// remove deletes evicted rows. The watermark is left alone: evicted
// ids stay burned.
func (j *Journal) remove(ids []uint64) (err error) {
	if len(ids) == 0 {
		return nil
	}

	conn, err := j.take()
	if err != nil {
		return err
	}
	defer j.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("ledger journal: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	for _, id := range ids {
		err = sqlitex.Execute(conn,
			`DELETE FROM egress_ledger WHERE id = ?`,
			&sqlitex.ExecOptions{Args: []any{int64(id)}})
		if err != nil {
			return fmt.Errorf("ledger journal: delete %d: %w", id, err)
		}
	}
	return nil
}
