package server

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"
)

// Metrics tracks server runtime statistics.
// All counters use atomic operations so /metrics can read them off the loop.
type Metrics struct {
	startTime time.Time

	// Connection counters
	TotalConnections  atomic.Int64 // lifetime connections accepted (TCP + WebSocket)
	ActiveConnections atomic.Int64 // current open connections
	TotalDisconnects  atomic.Int64 // connections closed for any reason
	ProtocolErrors    atomic.Int64 // malformed frames and server-only kinds from peers
	FramesIn          atomic.Int64 // frames dispatched
	FramesOut         atomic.Int64 // frames written

	// Account counters
	SuccessfulLogins    atomic.Int64
	FailedLogins        atomic.Int64
	Registrations       atomic.Int64
	FailedRegistrations atomic.Int64
	ClientsOnline       atomic.Int64 // gauge

	// Conferencing counters
	SessionsCreated atomic.Int64
	SessionsDeleted atomic.Int64
	SessionsActive  atomic.Int64 // gauge
	MessagesRelayed atomic.Int64 // MESSAGE frames delivered to members
	DirectMessages  atomic.Int64 // DM_MSG frames delivered
	DirectFailures  atomic.Int64 // DM_REQ answered with DM_NAK
}

// NewMetrics creates a new Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// MetricsSnapshot is a point-in-time view of all metrics as a serializable struct.
type MetricsSnapshot struct {
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	ActiveConnections int64 `json:"active_connections"`
	TotalConnections  int64 `json:"total_connections"`
	TotalDisconnects  int64 `json:"total_disconnects"`
	ProtocolErrors    int64 `json:"protocol_errors"`
	FramesIn          int64 `json:"frames_in"`
	FramesOut         int64 `json:"frames_out"`

	SuccessfulLogins    int64 `json:"successful_logins"`
	FailedLogins        int64 `json:"failed_logins"`
	Registrations       int64 `json:"registrations"`
	FailedRegistrations int64 `json:"failed_registrations"`
	ClientsOnline       int64 `json:"clients_online"`

	SessionsCreated int64 `json:"sessions_created"`
	SessionsDeleted int64 `json:"sessions_deleted"`
	SessionsActive  int64 `json:"sessions_active"`
	MessagesRelayed int64 `json:"messages_relayed"`
	DirectMessages  int64 `json:"direct_messages"`
	DirectFailures  int64 `json:"direct_failures"`
}

// Snapshot returns a read-consistent snapshot of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	uptime := time.Since(m.startTime)
	return MetricsSnapshot{
		Uptime:              uptime.Truncate(time.Second).String(),
		UptimeSeconds:       int64(uptime.Seconds()),
		ActiveConnections:   m.ActiveConnections.Load(),
		TotalConnections:    m.TotalConnections.Load(),
		TotalDisconnects:    m.TotalDisconnects.Load(),
		ProtocolErrors:      m.ProtocolErrors.Load(),
		FramesIn:            m.FramesIn.Load(),
		FramesOut:           m.FramesOut.Load(),
		SuccessfulLogins:    m.SuccessfulLogins.Load(),
		FailedLogins:        m.FailedLogins.Load(),
		Registrations:       m.Registrations.Load(),
		FailedRegistrations: m.FailedRegistrations.Load(),
		ClientsOnline:       m.ClientsOnline.Load(),
		SessionsCreated:     m.SessionsCreated.Load(),
		SessionsDeleted:     m.SessionsDeleted.Load(),
		SessionsActive:      m.SessionsActive.Load(),
		MessagesRelayed:     m.MessagesRelayed.Load(),
		DirectMessages:      m.DirectMessages.Load(),
		DirectFailures:      m.DirectFailures.Load(),
	}
}

// JSON returns the metrics snapshot as a JSON string.
func (m *Metrics) JSON() string {
	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// LogSummary writes a periodic metrics summary to the logger.
func (m *Metrics) LogSummary() {
	s := m.Snapshot()
	slog.Info("metrics",
		"uptime", s.Uptime,
		"connections", s.ActiveConnections,
		"online", s.ClientsOnline,
		"sessions", s.SessionsActive,
		"messages", s.MessagesRelayed,
		"dms", s.DirectMessages,
		"protocol_errors", s.ProtocolErrors,
	)
}

// StartPeriodicLog starts a goroutine that logs metrics every interval.
// It stops when the done channel is closed.
func (m *Metrics) StartPeriodicLog(interval time.Duration, done <-chan struct{}) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.LogSummary()
			}
		}
	}()
}
