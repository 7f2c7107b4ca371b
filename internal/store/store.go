// Package store persists a journal of assembly runs to PostgreSQL. The
// journal is an audit trail for CI pipelines that want run history; it is
// optional and a journal failure must never block report production.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/vulnbridge/api/schemas"
)

// DBPool abstracts pgxpool.Pool so tests can substitute a mock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// RunRecord is one journaled run.
type RunRecord struct {
	ReportID   string
	Provider   string
	IssueCount int
	Diagnostic string
	ScanDate   time.Time
}

// Journal provides the PostgreSQL run-history implementation.
type Journal struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a journal and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Journal, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Journal{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

const sqlInsertRun = `
        INSERT INTO runs (report_id, provider, app_name, app_version, version_id, issue_count, diagnostic, scan_date)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `

var issueColumns = []string{
	"report_id", "issue_id", "instance_id", "name", "category", "kingdom",
	"severity", "likelihood", "confidence", "location", "line_number",
	"priority_score", "raw_data",
}

// RecordRun writes one run row plus its issues inside a single transaction.
func (j *Journal) RecordRun(ctx context.Context, rd *schemas.ReportData) error {
	tx, err := j.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Rollback after a successful commit returns pgx.ErrTxClosed; that is
		// not an error worth logging.
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			j.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	_, err = tx.Exec(ctx, sqlInsertRun,
		rd.ReportID, string(rd.Provider), rd.AppName, rd.AppVersion,
		rd.ProjectVersionID, rd.TotalCount, rd.Diagnostic, rd.ScanDate.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	if len(rd.Issues) > 0 {
		if err := j.copyIssues(ctx, tx, rd.ReportID, rd.Issues); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (j *Journal) copyIssues(ctx context.Context, tx pgx.Tx, reportID string, issues []schemas.SecurityIssue) error {
	rows := make([][]interface{}, len(issues))
	for i, is := range issues {
		raw := is.RawData
		if len(raw) == 0 || string(raw) == "null" {
			raw = json.RawMessage("{}")
		}

		rows[i] = []interface{}{
			reportID, is.ID, is.InstanceID, is.Name, is.Category, is.Kingdom,
			is.Severity, is.Likelihood, is.Confidence, is.PrimaryLocation,
			is.LineNumber, is.PriorityScore, raw,
		}
	}

	copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{"run_issues"}, issueColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy issues: %w", err)
	}
	if int(copyCount) != len(issues) {
		return fmt.Errorf("mismatch in copied issue count: expected %d, got %d", len(issues), copyCount)
	}

	return nil
}

// LastRun returns the most recent journaled run for an application and
// version, or pgx.ErrNoRows when none exists.
func (j *Journal) LastRun(ctx context.Context, appName, appVersion string) (*RunRecord, error) {
	const q = `
        SELECT report_id, provider, issue_count, diagnostic, scan_date
        FROM runs
        WHERE app_name = $1 AND app_version = $2
        ORDER BY scan_date DESC
        LIMIT 1
    `
	rows, err := j.pool.Query(ctx, q, appName, appVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}

	var rec RunRecord
	if err := rows.Scan(&rec.ReportID, &rec.Provider, &rec.IssueCount, &rec.Diagnostic, &rec.ScanDate); err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	return &rec, nil
}
