package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"

	"loadwatch/internal/model"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:loadwatch.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			alert_id TEXT NOT NULL,
			ts TEXT NOT NULL,
			server TEXT NOT NULL,
			rule_name TEXT NOT NULL,
			metric TEXT NOT NULL,
			value REAL NOT NULL,
			severity TEXT NOT NULL,
			message TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_server ON alerts(server)`,
		`CREATE TABLE IF NOT EXISTS anomalies (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			server TEXT NOT NULL,
			metric TEXT NOT NULL,
			actual REAL NOT NULL,
			predicted REAL NOT NULL,
			anomaly_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			score REAL NOT NULL,
			message TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_anomalies_server_ts ON anomalies(server, ts)`,
		`CREATE TABLE IF NOT EXISTS status_reports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			checked_at TEXT NOT NULL,
			server TEXT NOT NULL,
			status TEXT NOT NULL,
			window_from TEXT NOT NULL,
			window_to TEXT NOT NULL,
			sample_count INTEGER NOT NULL,
			alert_count INTEGER NOT NULL,
			summaries_json TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_status_server_checked ON status_reports(server, checked_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) SaveAlert(ctx context.Context, alert model.Alert) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (alert_id, ts, server, rule_name, metric, value, severity, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ID,
		alert.Timestamp.UTC(),
		alert.Server,
		alert.RuleName,
		alert.Metric,
		alert.Value,
		alert.Severity,
		alert.Message,
	)
	return err
}

func (s *sqliteStore) SaveAnomaly(ctx context.Context, server string, record model.AnomalyRecord) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO anomalies (ts, server, metric, actual, predicted, anomaly_type, severity, score, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.Timestamp.UTC(),
		server,
		record.Metric,
		record.Actual,
		record.Predicted,
		record.Type,
		record.Severity,
		record.Score,
		record.Message,
	)
	return err
}

func (s *sqliteStore) SaveStatus(ctx context.Context, report model.StatusReport) error {
	if s.db == nil || report.Server == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO status_reports (checked_at, server, status, window_from, window_to, sample_count, alert_count, summaries_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		report.CheckedAt.UTC(),
		report.Server,
		report.Status,
		report.WindowFrom.UTC(),
		report.WindowTo.UTC(),
		report.SampleCount,
		report.AlertCount,
		encodeJSON(report.Summaries),
	)
	return err
}
