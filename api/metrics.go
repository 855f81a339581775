package api

import (
	"time"

	log "github.com/sirupsen/logrus"
)

type actionRequestMetrics struct {
	logger           *log.Logger
	start            time.Time
	authDuration     time.Duration
	dispatchDuration time.Duration
	encodeDuration   time.Duration
	actionsReceived  int
	actionsApplied   int
	deduplicated     int
	errorStage       string
}

func newActionRequestMetrics(logger *log.Logger) *actionRequestMetrics {
	return &actionRequestMetrics{
		logger: logger,
		start:  time.Now(),
	}
}

func (m *actionRequestMetrics) ObserveAuth(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.authDuration = duration
}

func (m *actionRequestMetrics) ObserveDispatch(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.dispatchDuration = duration
}

func (m *actionRequestMetrics) ObserveEncode(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.encodeDuration = duration
}

func (m *actionRequestMetrics) SetActionsReceived(count int) {
	if count < 0 {
		count = 0
	}
	m.actionsReceived = count
}

func (m *actionRequestMetrics) SetActionsApplied(count int) {
	if count < 0 {
		count = 0
	}
	m.actionsApplied = count
}

func (m *actionRequestMetrics) SetDeduplicated(count int) {
	if count < 0 {
		count = 0
	}
	m.deduplicated = count
}

func (m *actionRequestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

func (m *actionRequestMetrics) Log(status int, err error) {
	if m == nil || m.logger == nil {
		return
	}

	fields := log.Fields{
		"route":            "/api/board/actions",
		"status":           status,
		"total_ms":         durationToMillis(time.Since(m.start)),
		"actions_received": m.actionsReceived,
		"actions_applied":  m.actionsApplied,
	}

	if m.authDuration > 0 {
		fields["auth_ms"] = durationToMillis(m.authDuration)
	}
	if m.dispatchDuration > 0 {
		fields["dispatch_ms"] = durationToMillis(m.dispatchDuration)
	}
	if m.encodeDuration > 0 {
		fields["encode_ms"] = durationToMillis(m.encodeDuration)
	}
	if m.deduplicated > 0 {
		fields["deduplicated"] = m.deduplicated
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	m.logger.WithFields(fields).Info("board.actions.metrics")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
