package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"loadwatch/internal/model"
)

type mysqlStore struct {
	baseStore
}

func NewMySQL(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "loadwatch:loadwatch@tcp(localhost:3306)/loadwatch?parseTime=true"
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	return &mysqlStore{baseStore{db: db}}, nil
}

func (s *mysqlStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			alert_id VARCHAR(64) NOT NULL,
			ts DATETIME(6) NOT NULL,
			server VARCHAR(255) NOT NULL,
			rule_name VARCHAR(255) NOT NULL,
			metric VARCHAR(255) NOT NULL,
			value DOUBLE NOT NULL,
			severity VARCHAR(16) NOT NULL,
			message TEXT NOT NULL,
			INDEX idx_alerts_ts (ts),
			INDEX idx_alerts_server (server)
		)`,
		`CREATE TABLE IF NOT EXISTS anomalies (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			ts DATETIME(6) NOT NULL,
			server VARCHAR(255) NOT NULL,
			metric VARCHAR(255) NOT NULL,
			actual DOUBLE NOT NULL,
			predicted DOUBLE NOT NULL,
			anomaly_type VARCHAR(32) NOT NULL,
			severity VARCHAR(16) NOT NULL,
			score DOUBLE NOT NULL,
			message TEXT NOT NULL,
			INDEX idx_anomalies_server_ts (server, ts)
		)`,
		`CREATE TABLE IF NOT EXISTS status_reports (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			checked_at DATETIME(6) NOT NULL,
			server VARCHAR(255) NOT NULL,
			status VARCHAR(16) NOT NULL,
			window_from DATETIME(6) NOT NULL,
			window_to DATETIME(6) NOT NULL,
			sample_count INT NOT NULL,
			alert_count INT NOT NULL,
			summaries_json JSON,
			INDEX idx_status_server_checked (server, checked_at)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *mysqlStore) SaveAlert(ctx context.Context, alert model.Alert) error {
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

func (s *mysqlStore) SaveAnomaly(ctx context.Context, server string, record model.AnomalyRecord) error {
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

func (s *mysqlStore) SaveStatus(ctx context.Context, report model.StatusReport) error {
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
