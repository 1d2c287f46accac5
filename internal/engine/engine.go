package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"loadwatch/internal/alerts"
	"loadwatch/internal/anomaly"
	"loadwatch/internal/bus"
	"loadwatch/internal/cache"
	"loadwatch/internal/config"
	"loadwatch/internal/model"
	"loadwatch/internal/rules"
	"loadwatch/internal/stats"
	"loadwatch/internal/status"
	"loadwatch/internal/storage"
	"loadwatch/internal/telemetry"
)

// Engine owns the mutable host state around the pure classification
// and detection cores: per-server sample windows, the active
// rule/profile snapshot, and the alert admission filters.
type Engine struct {
	logger    *slog.Logger
	status    *status.Store
	alerts    *alerts.Store
	anomalies *anomaly.Store
	store     storage.Store
	cache     *cache.Cache
	bus       *bus.Publisher

	cfg  atomic.Value
	snap atomic.Value

	mu      sync.Mutex
	servers map[string]*serverState

	mute     *MuteSet
	cooldown *Cooldown
	dedupe   *DedupeCache

	warnMu sync.Mutex
	warned map[string]struct{}
}

type serverState struct {
	windows map[string]*Window
}

// snapshot bundles the core components rebuilt on every reconfigure.
type snapshot struct {
	classifier *rules.Classifier
	detector   *anomaly.Detector
}

func NewEngine(cfg *config.Config, logger *slog.Logger, statusStore *status.Store, alertsStore *alerts.Store, anomalyStore *anomaly.Store, store storage.Store, cacheClient *cache.Cache, publisher *bus.Publisher) *Engine {
	e := &Engine{
		logger:    logger,
		status:    statusStore,
		alerts:    alertsStore,
		anomalies: anomalyStore,
		store:     store,
		cache:     cacheClient,
		bus:       publisher,
		servers:   make(map[string]*serverState),
		mute:      NewMuteSet(cfg.Alerting.Mute),
		cooldown:  NewCooldown(),
		dedupe:    NewDedupeCache(),
		warned:    make(map[string]struct{}),
	}
	e.cfg.Store(cfg)
	e.snap.Store(buildSnapshot(cfg))
	return e
}

func buildSnapshot(cfg *config.Config) *snapshot {
	return &snapshot{
		classifier: rules.NewClassifier(buildRuleSets(cfg.Rules)),
		detector:   anomaly.NewDetector(buildProfileTable(cfg.Anomaly)),
	}
}

// buildRuleSets groups configured rules into status-class sets by
// condition kind. An empty config falls back to the built-in sets.
func buildRuleSets(configured []config.RuleConfig) []rules.RuleSet {
	if len(configured) == 0 {
		return nil
	}
	var overload, idle, normal []rules.ThresholdRule
	for _, rc := range configured {
		rule := rules.ThresholdRule{
			Name:        rc.Name,
			Metric:      rc.Metric,
			Severity:    model.Severity(strings.ToLower(rc.Severity)),
			Coverage:    rc.Coverage,
			Description: rc.Description,
		}
		switch strings.ToLower(rc.Condition) {
		case "greater_than":
			rule.Condition = rules.GreaterThan{Threshold: rc.Threshold}
			overload = append(overload, rule)
		case "percentile_greater_than":
			rule.Condition = rules.PercentileGreaterThan{Threshold: rc.Threshold, Percentile: rc.Percentile}
			overload = append(overload, rule)
		case "less_than":
			rule.Condition = rules.LessThan{Threshold: rc.Threshold}
			idle = append(idle, rule)
		case "in_range":
			rule.Condition = rules.InRange{Low: rc.Low, High: rc.High}
			normal = append(normal, rule)
		}
	}
	var sets []rules.RuleSet
	if len(overload) > 0 {
		sets = append(sets, rules.RuleSet{Name: rules.SetOverload, Rules: overload})
	}
	if len(idle) > 0 {
		sets = append(sets, rules.RuleSet{Name: rules.SetIdle, Rules: idle})
	}
	if len(normal) > 0 {
		sets = append(sets, rules.RuleSet{Name: rules.SetNormal, Rules: normal})
	}
	return sets
}

func buildProfileTable(cfg config.AnomalyConfig) anomaly.Table {
	if len(cfg.Profiles) == 0 {
		return anomaly.NewTable(nil, cfg.FallbackMetric)
	}
	profiles := make(map[string]anomaly.Profile, len(cfg.Profiles))
	for metric, pc := range cfg.Profiles {
		profiles[metric] = anomaly.Profile{
			ZScoreThreshold:       pc.ZScoreThreshold,
			RateOfChangeThreshold: pc.RateOfChangeThreshold,
			CriticalLevel:         pc.CriticalLevel,
		}
	}
	return anomaly.NewTable(profiles, cfg.FallbackMetric)
}

func (e *Engine) config() *config.Config {
	if v := e.cfg.Load(); v != nil {
		return v.(*config.Config)
	}
	return config.DefaultConfig()
}

func (e *Engine) snapshot() *snapshot {
	return e.snap.Load().(*snapshot)
}

// Reconfigure swaps rules, profiles and alerting filters without
// touching window contents.
func (e *Engine) Reconfigure(cfg *config.Config) {
	e.cfg.Store(cfg)
	e.snap.Store(buildSnapshot(cfg))
	e.mute.Reconfigure(cfg.Alerting.Mute)
	e.mu.Lock()
	for _, state := range e.servers {
		for _, w := range state.windows {
			w.Resize(cfg.Window.MaxSamples, cfg.Window.MaxAge)
		}
	}
	e.mu.Unlock()
	if e.logger != nil {
		e.logger.Info("engine reconfigured",
			"rules", len(cfg.Rules),
			"profiles", len(cfg.Anomaly.Profiles),
		)
	}
}

// Start consumes observations and runs the periodic classification
// loop until ctx is cancelled.
func (e *Engine) Start(ctx context.Context, in <-chan model.Observation) {
	go func() {
		for {
			select {
			case obs := <-in:
				e.Observe(obs)
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		interval := e.config().Status.CheckInterval
		if interval <= 0 {
			interval = 30 * time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				for _, server := range e.knownServers() {
					e.ClassifyServer(server)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Observe appends one sample to its window and runs the realtime
// detector against the prior window contents.
func (e *Engine) Observe(obs model.Observation) {
	if obs.Server == "" || obs.Metric == "" {
		telemetry.SamplesRejected.WithLabelValues("missing_identity").Inc()
		return
	}
	cfg := e.config()

	e.mu.Lock()
	state, ok := e.servers[obs.Server]
	if !ok {
		state = &serverState{windows: make(map[string]*Window)}
		e.servers[obs.Server] = state
		telemetry.ActiveServers.Set(float64(len(e.servers)))
	}
	window, ok := state.windows[obs.Metric]
	if !ok {
		window = NewWindow(cfg.Window.MaxSamples, cfg.Window.MaxAge)
		state.windows[obs.Metric] = window
	}
	history := window.Values()
	accepted := window.Append(obs.Sample)
	if accepted {
		telemetry.WindowSamples.WithLabelValues(obs.Server, obs.Metric).Set(float64(window.Len()))
	}
	e.mu.Unlock()

	if !accepted {
		telemetry.SamplesRejected.WithLabelValues("out_of_order").Inc()
		if e.logger != nil {
			e.logger.Debug("sample rejected",
				"server", obs.Server,
				"metric", obs.Metric,
				"timestamp", obs.Sample.Timestamp,
			)
		}
		return
	}
	telemetry.SamplesReceived.WithLabelValues(obs.Source).Inc()

	detector := e.snapshot().detector
	e.warnFallback(detector, obs.Metric)
	record, found := detector.DetectOne(obs.Metric, obs.Sample.Value, history, nil, obs.Sample.Timestamp)
	if found {
		e.admitAnomaly(obs.Server, record)
	}
}

// ClassifyServer snapshots the server's canonical windows, classifies
// them and admits the resulting alerts. It reports false for servers
// with no window state at all.
func (e *Engine) ClassifyServer(server string) (model.StatusReport, []model.Alert, bool) {
	started := time.Now()
	windows, values, ok := e.snapshotWindows(server)
	if !ok {
		return model.StatusReport{}, nil, false
	}

	snap := e.snapshot()
	serverStatus, raw := snap.classifier.Classify(server, windows)
	admitted := e.admitAlerts(server, raw)

	report := e.buildReport(server, serverStatus, windows, values, len(admitted))
	if e.status != nil {
		e.status.Update(report)
	}
	telemetry.ServerStatus.WithLabelValues(server).Set(telemetry.StatusCode(serverStatus))
	telemetry.ClassificationLatency.Observe(time.Since(started).Seconds())

	if e.store != nil {
		if err := e.store.SaveStatus(context.Background(), report); err != nil {
			telemetry.StorageOperations.WithLabelValues("save_status", "error").Inc()
			if e.logger != nil {
				e.logger.Warn("save status failed", "server", server, "err", err)
			}
		} else {
			telemetry.StorageOperations.WithLabelValues("save_status", "ok").Inc()
		}
	}
	if e.cache != nil {
		if err := e.cache.SetStatus(context.Background(), report); err != nil {
			telemetry.CacheOperations.WithLabelValues("set_status", "error").Inc()
			if e.logger != nil {
				e.logger.Warn("cache status failed", "server", server, "err", err)
			}
		} else {
			telemetry.CacheOperations.WithLabelValues("set_status", "ok").Inc()
		}
	}
	if e.bus != nil {
		if err := e.bus.PublishStatus(report); err != nil {
			telemetry.BusPublished.WithLabelValues("status", "error").Inc()
		} else {
			telemetry.BusPublished.WithLabelValues("status", "ok").Inc()
		}
	}
	return report, admitted, true
}

// RunForecast joins the predicted series against the actual window by
// exact timestamp and runs batch detection over the aligned subset.
func (e *Engine) RunForecast(req model.ForecastRequest) ([]model.AnomalyRecord, error) {
	if len(req.Timestamps) != len(req.Predicted) {
		return nil, anomaly.ErrLengthMismatch
	}
	window, ok := e.metricWindow(req.Server, req.Metric)
	if !ok {
		return nil, nil
	}

	predictedAt := make(map[int64]float64, len(req.Timestamps))
	for i, ts := range req.Timestamps {
		predictedAt[ts.UnixNano()] = req.Predicted[i]
	}

	var actual, predicted []float64
	var timestamps []time.Time
	for _, s := range window.Samples {
		p, ok := predictedAt[s.Timestamp.UnixNano()]
		if !ok {
			continue
		}
		actual = append(actual, s.Value)
		predicted = append(predicted, p)
		timestamps = append(timestamps, s.Timestamp)
	}
	if len(actual) == 0 {
		return nil, nil
	}

	records, err := e.Detect(req.Metric, actual, predicted, timestamps)
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		e.admitAnomaly(req.Server, record)
	}
	return records, nil
}

// Detect exposes stateless batch detection with the active profile
// table.
func (e *Engine) Detect(metric string, actual, predicted []float64, timestamps []time.Time) ([]model.AnomalyRecord, error) {
	started := time.Now()
	detector := e.snapshot().detector
	e.warnFallback(detector, metric)
	records, err := detector.Detect(metric, actual, predicted, timestamps)
	if err == nil {
		telemetry.DetectionLatency.Observe(time.Since(started).Seconds())
	}
	return records, err
}

func (e *Engine) Profiles() map[string]anomaly.Profile {
	return e.snapshot().detector.Table().Profiles()
}

func (e *Engine) Mute(name string)   { e.mute.Mute(name) }
func (e *Engine) Unmute(name string) { e.mute.Unmute(name) }
func (e *Engine) Muted() []string    { return e.mute.Names() }

func (e *Engine) Reset() {
	e.mu.Lock()
	e.servers = make(map[string]*serverState)
	e.mu.Unlock()
	e.cooldown = NewCooldown()
	e.dedupe = NewDedupeCache()
	telemetry.ActiveServers.Set(0)
}

func (e *Engine) knownServers() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.servers))
	for server := range e.servers {
		out = append(out, server)
	}
	return out
}

func (e *Engine) snapshotWindows(server string) (map[string]model.MetricWindow, map[string][]float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, ok := e.servers[server]
	if !ok {
		return nil, nil, false
	}
	windows := make(map[string]model.MetricWindow, len(state.windows))
	values := make(map[string][]float64, len(state.windows))
	for metric, w := range state.windows {
		windows[metric] = w.Snapshot(server, metric)
		values[metric] = w.Values()
	}
	return windows, values, true
}

func (e *Engine) metricWindow(server, metric string) (model.MetricWindow, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, ok := e.servers[server]
	if !ok {
		return model.MetricWindow{}, false
	}
	w, ok := state.windows[metric]
	if !ok {
		return model.MetricWindow{}, false
	}
	return w.Snapshot(server, metric), true
}

// admitAlerts runs mute, dedupe and cooldown over the classifier
// output. Info alerts bypass cooldown but not dedupe.
func (e *Engine) admitAlerts(server string, raw []model.Alert) []model.Alert {
	cfg := e.config()
	admitted := make([]model.Alert, 0, len(raw))
	for _, alert := range raw {
		if e.mute.Muted(alert.Server, alert.RuleName) {
			telemetry.AlertsSuppressed.WithLabelValues("mute").Inc()
			continue
		}
		if cfg.Alerting.DedupeWindow > 0 && e.dedupe.Seen(alertKey(alert), time.Now().UTC(), cfg.Alerting.DedupeWindow) {
			telemetry.AlertsSuppressed.WithLabelValues("dedupe").Inc()
			continue
		}
		if alert.Severity != model.SeverityInfo {
			if !e.cooldown.Allow(alert.Server, alert.RuleName, cfg.Alerting.Cooldown) {
				telemetry.AlertsSuppressed.WithLabelValues("cooldown").Inc()
				continue
			}
		}
		alert.ID = uuid.NewString()
		admitted = append(admitted, alert)
		telemetry.AlertsEmitted.WithLabelValues(string(alert.Severity)).Inc()

		if e.alerts != nil {
			e.alerts.Add(alert)
		}
		if e.logger != nil && alert.Severity != model.SeverityInfo {
			e.logger.Warn("alert admitted",
				"server", alert.Server,
				"rule", alert.RuleName,
				"severity", alert.Severity,
				"value", alert.Value,
			)
		}
		if e.store != nil {
			if err := e.store.SaveAlert(context.Background(), alert); err != nil {
				telemetry.StorageOperations.WithLabelValues("save_alert", "error").Inc()
				if e.logger != nil {
					e.logger.Warn("save alert failed", "server", server, "err", err)
				}
			} else {
				telemetry.StorageOperations.WithLabelValues("save_alert", "ok").Inc()
			}
		}
		if e.bus != nil {
			if err := e.bus.PublishAlert(alert); err != nil {
				telemetry.BusPublished.WithLabelValues("alerts", "error").Inc()
			} else {
				telemetry.BusPublished.WithLabelValues("alerts", "ok").Inc()
			}
		}
	}
	return admitted
}

func (e *Engine) admitAnomaly(server string, record model.AnomalyRecord) {
	entry := model.StoredAnomaly{
		ID:     uuid.NewString(),
		Server: server,
		Record: record,
	}
	if e.anomalies != nil {
		e.anomalies.Add(entry)
	}
	telemetry.AnomaliesDetected.WithLabelValues(string(record.Type), server).Inc()
	if e.logger != nil {
		e.logger.Warn("anomaly detected",
			"server", server,
			"metric", record.Metric,
			"type", record.Type,
			"severity", record.Severity,
			"score", record.Score,
		)
	}
	if e.store != nil {
		if err := e.store.SaveAnomaly(context.Background(), server, record); err != nil {
			telemetry.StorageOperations.WithLabelValues("save_anomaly", "error").Inc()
			if e.logger != nil {
				e.logger.Warn("save anomaly failed", "server", server, "err", err)
			}
		} else {
			telemetry.StorageOperations.WithLabelValues("save_anomaly", "ok").Inc()
		}
	}
	if e.cache != nil {
		if err := e.cache.AddAnomaly(context.Background(), entry); err != nil {
			telemetry.CacheOperations.WithLabelValues("add_anomaly", "error").Inc()
			if e.logger != nil {
				e.logger.Warn("cache anomaly failed", "server", server, "err", err)
			}
		} else {
			telemetry.CacheOperations.WithLabelValues("add_anomaly", "ok").Inc()
		}
	}
	if e.bus != nil {
		if err := e.bus.PublishAnomaly(entry); err != nil {
			telemetry.BusPublished.WithLabelValues("anomalies", "error").Inc()
		} else {
			telemetry.BusPublished.WithLabelValues("anomalies", "ok").Inc()
		}
	}
}

func (e *Engine) buildReport(server string, serverStatus model.ServerStatus, windows map[string]model.MetricWindow, values map[string][]float64, alertCount int) model.StatusReport {
	report := model.StatusReport{
		Server:     server,
		Status:     serverStatus,
		CheckedAt:  time.Now().UTC(),
		AlertCount: alertCount,
		Summaries:  make(map[string]model.MetricSummary, len(windows)),
	}
	for metric, window := range windows {
		if len(window.Samples) == 0 {
			continue
		}
		report.SampleCount += len(window.Samples)
		first := window.Samples[0].Timestamp
		last := window.Samples[len(window.Samples)-1].Timestamp
		if report.WindowFrom.IsZero() || first.Before(report.WindowFrom) {
			report.WindowFrom = first
		}
		if last.After(report.WindowTo) {
			report.WindowTo = last
		}
		vals := stats.Finite(values[metric])
		if len(vals) == 0 {
			continue
		}
		report.Summaries[metric] = model.MetricSummary{
			Count:  len(vals),
			Mean:   stats.Mean(vals),
			Min:    stats.Min(vals),
			Max:    stats.Max(vals),
			StdDev: stats.StdDev(vals, true),
			P95:    stats.Percentile(vals, 95),
			Last:   vals[len(vals)-1],
		}
	}
	return report
}

// warnFallback logs the default-profile substitution once per metric.
func (e *Engine) warnFallback(detector *anomaly.Detector, metric string) {
	if e.logger == nil {
		return
	}
	if _, exact := detector.Table().Resolve(metric); exact {
		return
	}
	e.warnMu.Lock()
	_, seen := e.warned[metric]
	if !seen {
		e.warned[metric] = struct{}{}
	}
	e.warnMu.Unlock()
	if !seen {
		e.logger.Warn("unrecognized metric, using fallback profile",
			"metric", metric,
			"fallback", detector.Table().FallbackMetric(),
		)
	}
}

func alertKey(alert model.Alert) string {
	parts := []string{
		alert.Server,
		alert.RuleName,
		strconv.Itoa(int(math.Round(alert.Value))),
	}
	h := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(h[:])
}
