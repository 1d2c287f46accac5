package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"loadwatch/internal/model"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/loadwatch?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id BIGSERIAL PRIMARY KEY,
			alert_id TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			server TEXT NOT NULL,
			rule_name TEXT NOT NULL,
			metric TEXT NOT NULL,
			value DOUBLE PRECISION NOT NULL,
			severity TEXT NOT NULL,
			message TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_server ON alerts(server)`,
		`CREATE TABLE IF NOT EXISTS anomalies (
			id BIGSERIAL PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			server TEXT NOT NULL,
			metric TEXT NOT NULL,
			actual DOUBLE PRECISION NOT NULL,
			predicted DOUBLE PRECISION NOT NULL,
			anomaly_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			score DOUBLE PRECISION NOT NULL,
			message TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_anomalies_server_ts ON anomalies(server, ts)`,
		`CREATE TABLE IF NOT EXISTS status_reports (
			id BIGSERIAL PRIMARY KEY,
			checked_at TIMESTAMPTZ NOT NULL,
			server TEXT NOT NULL,
			status TEXT NOT NULL,
			window_from TIMESTAMPTZ NOT NULL,
			window_to TIMESTAMPTZ NOT NULL,
			sample_count INTEGER NOT NULL,
			alert_count INTEGER NOT NULL,
			summaries_json JSONB
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

func (s *postgresStore) SaveAlert(ctx context.Context, alert model.Alert) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (alert_id, ts, server, rule_name, metric, value, severity, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
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

func (s *postgresStore) SaveAnomaly(ctx context.Context, server string, record model.AnomalyRecord) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO anomalies (ts, server, metric, actual, predicted, anomaly_type, severity, score, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
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

func (s *postgresStore) SaveStatus(ctx context.Context, report model.StatusReport) error {
	if s.db == nil || report.Server == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO status_reports (checked_at, server, status, window_from, window_to, sample_count, alert_count, summaries_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
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
