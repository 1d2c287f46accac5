package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel  string          `json:"log_level" yaml:"log_level"`
	Ingest    IngestConfig    `json:"ingest" yaml:"ingest"`
	Window    WindowConfig    `json:"window" yaml:"window"`
	Rules     []RuleConfig    `json:"rules" yaml:"rules"`
	Anomaly   AnomalyConfig   `json:"anomaly" yaml:"anomaly"`
	Alerting  AlertingConfig  `json:"alerting" yaml:"alerting"`
	API       APIConfig       `json:"api" yaml:"api"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Cache     CacheConfig     `json:"cache" yaml:"cache"`
	Bus       BusConfig       `json:"bus" yaml:"bus"`
	Status    StatusConfig    `json:"status" yaml:"status"`
	Alerts    AlertsConfig    `json:"alerts" yaml:"alerts"`
	Anomalies AnomaliesConfig `json:"anomalies" yaml:"anomalies"`
}

type IngestConfig struct {
	ChannelBuffer int             `json:"channel_buffer" yaml:"channel_buffer"`
	REST          RESTConfig      `json:"rest" yaml:"rest"`
	Kafka         KafkaConfig     `json:"kafka" yaml:"kafka"`
	Line          LineConfig      `json:"line" yaml:"line"`
	Normalize     NormalizeConfig `json:"normalize" yaml:"normalize"`
}

type RESTConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type LineConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type NormalizeConfig struct {
	DefaultServer       string        `json:"default_server" yaml:"default_server"`
	Timezone            string        `json:"timezone" yaml:"timezone"`
	NetworkCapacityMbps float64       `json:"network_capacity_mbps" yaml:"network_capacity_mbps"`
	MaxPastSkew         time.Duration `json:"max_past_skew" yaml:"max_past_skew"`
	MaxFutureSkew       time.Duration `json:"max_future_skew" yaml:"max_future_skew"`
}

type WindowConfig struct {
	MaxSamples int           `json:"max_samples" yaml:"max_samples"`
	MaxAge     time.Duration `json:"max_age" yaml:"max_age"`
}

type RuleConfig struct {
	Name        string  `json:"name" yaml:"name"`
	Metric      string  `json:"metric" yaml:"metric"`
	Condition   string  `json:"condition" yaml:"condition"`
	Threshold   float64 `json:"threshold" yaml:"threshold"`
	Low         float64 `json:"low" yaml:"low"`
	High        float64 `json:"high" yaml:"high"`
	Percentile  float64 `json:"percentile" yaml:"percentile"`
	Severity    string  `json:"severity" yaml:"severity"`
	Coverage    float64 `json:"coverage_fraction" yaml:"coverage_fraction"`
	Description string  `json:"description" yaml:"description"`
}

type AnomalyConfig struct {
	Profiles       map[string]ProfileConfig `json:"profiles" yaml:"profiles"`
	FallbackMetric string                   `json:"fallback_metric" yaml:"fallback_metric"`
}

type ProfileConfig struct {
	ZScoreThreshold       float64 `json:"z_score_threshold" yaml:"z_score_threshold"`
	RateOfChangeThreshold float64 `json:"rate_of_change_threshold" yaml:"rate_of_change_threshold"`
	CriticalLevel         float64 `json:"critical_level" yaml:"critical_level"`
}

type AlertingConfig struct {
	Cooldown     time.Duration `json:"cooldown" yaml:"cooldown"`
	DedupeWindow time.Duration `json:"dedupe_window" yaml:"dedupe_window"`
	Mute         MuteConfig    `json:"mute" yaml:"mute"`
}

type MuteConfig struct {
	Servers []string `json:"servers" yaml:"servers"`
	Rules   []string `json:"rules" yaml:"rules"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type CacheConfig struct {
	Enabled  bool          `json:"enabled" yaml:"enabled"`
	Addr     string        `json:"addr" yaml:"addr"`
	Password string        `json:"password" yaml:"password"`
	DB       int           `json:"db" yaml:"db"`
	TTL      time.Duration `json:"ttl" yaml:"ttl"`
}

type BusConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	URL           string `json:"url" yaml:"url"`
	SubjectPrefix string `json:"subject_prefix" yaml:"subject_prefix"`
}

type StatusConfig struct {
	CheckInterval time.Duration `json:"check_interval" yaml:"check_interval"`
	StoreLimit    int           `json:"store_limit" yaml:"store_limit"`
}

type AlertsConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

type AnomaliesConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Ingest: IngestConfig{
			ChannelBuffer: 10000,
			REST:          RESTConfig{Enabled: true, Addr: ":8080"},
			Kafka:         KafkaConfig{Enabled: false},
			Line:          LineConfig{Enabled: false, Addr: ":2003"},
			Normalize: NormalizeConfig{
				DefaultServer:       "unknown",
				Timezone:            "UTC",
				NetworkCapacityMbps: 1000,
				MaxPastSkew:         48 * time.Hour,
				MaxFutureSkew:       5 * time.Minute,
			},
		},
		Window: WindowConfig{
			MaxSamples: 360,
			MaxAge:     3 * time.Hour,
		},
		Anomaly: AnomalyConfig{
			FallbackMetric: "cpu.usage.average",
		},
		Alerting: AlertingConfig{
			Cooldown:     5 * time.Minute,
			DedupeWindow: 10 * time.Minute,
		},
		API:     APIConfig{Enabled: true, Addr: ":8081"},
		Storage: StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:loadwatch.db?_pragma=busy_timeout(5000)"},
		Cache:   CacheConfig{Enabled: false, Addr: "localhost:6379", TTL: time.Hour},
		Bus:     BusConfig{Enabled: false, URL: "nats://127.0.0.1:4222", SubjectPrefix: "loadwatch"},
		Status: StatusConfig{
			CheckInterval: 30 * time.Second,
			StoreLimit:    1000,
		},
		Alerts:    AlertsConfig{StoreLimit: 1000},
		Anomalies: AnomaliesConfig{StoreLimit: 2000},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = 10000
	}
	if cfg.Ingest.Normalize.DefaultServer == "" {
		cfg.Ingest.Normalize.DefaultServer = "unknown"
	}
	if cfg.Ingest.Normalize.Timezone == "" {
		cfg.Ingest.Normalize.Timezone = "UTC"
	}
	if cfg.Ingest.Normalize.NetworkCapacityMbps <= 0 {
		cfg.Ingest.Normalize.NetworkCapacityMbps = 1000
	}
	if cfg.Window.MaxSamples <= 0 {
		cfg.Window.MaxSamples = 360
	}
	if cfg.Window.MaxAge <= 0 {
		cfg.Window.MaxAge = 3 * time.Hour
	}
	if cfg.Anomaly.FallbackMetric == "" {
		cfg.Anomaly.FallbackMetric = "cpu.usage.average"
	}
	if cfg.Status.CheckInterval <= 0 {
		cfg.Status.CheckInterval = 30 * time.Second
	}
	if cfg.Status.StoreLimit <= 0 {
		cfg.Status.StoreLimit = 1000
	}
	if cfg.Alerts.StoreLimit <= 0 {
		cfg.Alerts.StoreLimit = 1000
	}
	if cfg.Anomalies.StoreLimit <= 0 {
		cfg.Anomalies.StoreLimit = 2000
	}
	for i := range cfg.Rules {
		if cfg.Rules[i].Coverage <= 0 {
			cfg.Rules[i].Coverage = defaultCoverage(cfg.Rules[i])
		}
	}
}

func defaultCoverage(rule RuleConfig) float64 {
	switch strings.ToLower(rule.Condition) {
	case "greater_than", "percentile_greater_than":
		return 0.2
	case "less_than":
		return 0.8
	case "in_range":
		return 1.0
	}
	return 1.0
}

func Validate(cfg *Config) error {
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Ingest.REST.Enabled && cfg.Ingest.REST.Addr == "" {
		return errors.New("ingest.rest.addr required when ingest.rest.enabled is true")
	}
	if cfg.Ingest.Line.Enabled && cfg.Ingest.Line.Addr == "" {
		return errors.New("ingest.line.addr required when ingest.line.enabled is true")
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	if cfg.Storage.Enabled {
		switch strings.ToLower(cfg.Storage.Driver) {
		case "sqlite", "postgres", "postgresql", "mysql":
		default:
			return fmt.Errorf("storage.driver %q is not supported", cfg.Storage.Driver)
		}
	}
	if cfg.Cache.Enabled && cfg.Cache.Addr == "" {
		return errors.New("cache.addr required when cache.enabled is true")
	}
	if cfg.Bus.Enabled && cfg.Bus.URL == "" {
		return errors.New("bus.url required when bus.enabled is true")
	}
	for i, rule := range cfg.Rules {
		if err := validateRule(rule); err != nil {
			return fmt.Errorf("rules[%d]: %w", i, err)
		}
	}
	for metric, profile := range cfg.Anomaly.Profiles {
		if metric == "" {
			return errors.New("anomaly.profiles contains an empty metric name")
		}
		if profile.ZScoreThreshold <= 0 {
			return fmt.Errorf("anomaly.profiles[%s].z_score_threshold must be > 0", metric)
		}
		if profile.RateOfChangeThreshold <= 0 {
			return fmt.Errorf("anomaly.profiles[%s].rate_of_change_threshold must be > 0", metric)
		}
	}
	return nil
}

func validateRule(rule RuleConfig) error {
	if rule.Name == "" {
		return errors.New("name is required")
	}
	if rule.Metric == "" {
		return errors.New("metric is required")
	}
	switch strings.ToLower(rule.Condition) {
	case "greater_than", "less_than":
	case "in_range":
		if rule.Low > rule.High {
			return fmt.Errorf("in_range low %.2f exceeds high %.2f", rule.Low, rule.High)
		}
	case "percentile_greater_than":
		if rule.Percentile <= 0 || rule.Percentile >= 100 {
			return fmt.Errorf("percentile %.2f must be inside (0, 100)", rule.Percentile)
		}
	default:
		return fmt.Errorf("condition %q is not supported", rule.Condition)
	}
	switch strings.ToLower(rule.Severity) {
	case "critical", "warning", "info":
	default:
		return fmt.Errorf("severity %q is not supported", rule.Severity)
	}
	if rule.Coverage < 0 || rule.Coverage > 1 {
		return fmt.Errorf("coverage_fraction %.2f must be inside [0, 1]", rule.Coverage)
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	info, err := os.Stat(path)
	if err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) Update(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return err
	}
	if err := Save(m.path, cfg); err != nil {
		return err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return nil
}

func (m *Manager) NeedsReload() (bool, error) {
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
