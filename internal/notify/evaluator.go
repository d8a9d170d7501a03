// Package notify turns poll results into threshold alerts.
package notify

import (
	"context"
	"fmt"

	"github.com/HerbHall/wispwatch/internal/monitor"
	"github.com/HerbHall/wispwatch/pkg/models"
	"go.uber.org/zap"
)

var _ monitor.Notifier = (*Evaluator)(nil)

// AlertKind identifies what tripped.
type AlertKind string

const (
	AlertOffline AlertKind = "offline"
	AlertRSSI    AlertKind = "rssi_low"
	AlertRate    AlertKind = "rate_low"
	AlertRxPower AlertKind = "rx_power_low"
	AlertTemp    AlertKind = "temp_high"
)

// Alert is one tripped condition for one device.
type Alert struct {
	DeviceID   string
	DeviceName string
	Kind       AlertKind
	Message    string
}

// Sender delivers alerts. Delivery transports (mail, webhooks) plug in
// here; the default just logs.
type Sender interface {
	Send(ctx context.Context, alerts []Alert)
}

// LogSender writes alerts to the logger and nothing else.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a Sender that only logs.
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, alerts []Alert) {
	for _, a := range alerts {
		s.logger.Warn("alert",
			zap.String("device_id", a.DeviceID),
			zap.String("device", a.DeviceName),
			zap.String("kind", string(a.Kind)),
			zap.String("message", a.Message),
		)
	}
}

// Evaluator checks each poll result against the device's notify
// settings and forwards tripped alerts to the sender. It implements
// the scheduler's Notifier collaborator.
type Evaluator struct {
	sender Sender
	logger *zap.Logger
}

// NewEvaluator creates an evaluator delivering through sender.
func NewEvaluator(sender Sender, logger *zap.Logger) *Evaluator {
	return &Evaluator{sender: sender, logger: logger}
}

// HandleResult evaluates one poll outcome. Called once per poll by the
// scheduler, after the status cache is updated.
func (e *Evaluator) HandleResult(ctx context.Context, dev models.Device, res models.Result) {
	alerts := e.Evaluate(dev, res)
	if len(alerts) == 0 {
		return
	}
	e.sender.Send(ctx, alerts)
}

// Evaluate returns the alerts a result trips for a device. A failed
// poll yields at most the offline alert; metric thresholds only apply
// to values the poll actually produced.
func (e *Evaluator) Evaluate(dev models.Device, res models.Result) []Alert {
	var alerts []Alert
	add := func(kind AlertKind, msg string) {
		alerts = append(alerts, Alert{
			DeviceID:   dev.ID,
			DeviceName: dev.Name,
			Kind:       kind,
			Message:    msg,
		})
	}

	n := dev.Notify
	if !res.OK {
		if n.OfflineEnabled {
			add(AlertOffline, fmt.Sprintf("device unreachable: %s", res.Err))
		}
		return alerts
	}

	m := res.Metrics
	if n.RSSIEnabled && m.RSSI != nil && *m.RSSI < n.RSSIFloor {
		add(AlertRSSI, fmt.Sprintf("rssi %d dBm below floor %d dBm", *m.RSSI, n.RSSIFloor))
	}
	if n.RateEnabled && m.RateMbit != nil && *m.RateMbit < n.RateFloorMbit {
		add(AlertRate, fmt.Sprintf("link rate %d Mbit below floor %d Mbit", *m.RateMbit, n.RateFloorMbit))
	}
	if n.RxPowerEnabled && m.RxPower != nil && *m.RxPower < n.RxPowerFloor {
		add(AlertRxPower, fmt.Sprintf("rx power %.2f dBm below floor %.2f dBm", *m.RxPower, n.RxPowerFloor))
	}
	if n.TempEnabled && m.Temperature != nil && *m.Temperature > n.TempCeiling {
		add(AlertTemp, fmt.Sprintf("temperature %.1f C above ceiling %.1f C", *m.Temperature, n.TempCeiling))
	}
	return alerts
}
