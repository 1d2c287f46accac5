package bus

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"loadwatch/internal/config"
	"loadwatch/internal/model"
)

// Publisher pushes alert, anomaly and status events to NATS. Publishes
// are fire-and-forget; the client's own reconnect handles outages.
type Publisher struct {
	conn   *nats.Conn
	prefix string
}

type Envelope struct {
	Type   string    `json:"type"`
	Server string    `json:"server"`
	At     time.Time `json:"at"`
	Data   any       `json:"data"`
}

func NewPublisher(cfg config.BusConfig) (*Publisher, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	conn, err := nats.Connect(cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, err
	}
	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "loadwatch"
	}
	return &Publisher{conn: conn, prefix: prefix}, nil
}

func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	_ = p.conn.Drain()
	p.conn.Close()
}

func (p *Publisher) PublishAlert(alert model.Alert) error {
	return p.publish(p.prefix+".alerts", Envelope{
		Type:   "alert",
		Server: alert.Server,
		At:     alert.Timestamp,
		Data:   alert,
	})
}

func (p *Publisher) PublishAnomaly(entry model.StoredAnomaly) error {
	return p.publish(p.prefix+".anomalies", Envelope{
		Type:   "anomaly",
		Server: entry.Server,
		At:     entry.Record.Timestamp,
		Data:   entry,
	})
}

func (p *Publisher) PublishStatus(report model.StatusReport) error {
	return p.publish(p.prefix+".status", Envelope{
		Type:   "status",
		Server: report.Server,
		At:     report.CheckedAt,
		Data:   report,
	})
}

func (p *Publisher) publish(subject string, payload any) error {
	if p == nil || p.conn == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.conn.Publish(subject, data)
}
