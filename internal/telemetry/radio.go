package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/HerbHall/wispwatch/internal/remote"
	"github.com/HerbHall/wispwatch/pkg/models"
	"go.uber.org/zap"
)

// Radio status command vocabulary. Both emit line-oriented key:value
// text; only the rssi/rate fields are consumed.
const (
	radioSignalCommand = "mca-status"
	radioRateCommand   = "athstats"
)

// RadioExtractor polls a wireless bridge through the gateway's NAT
// forwarding: one tunneled session, two independent command round-trips.
type RadioExtractor struct {
	dialer      remote.Dialer
	gatewayHost string
	logger      *zap.Logger
}

// NewRadioExtractor creates a radio extractor dialing through the given
// gateway host.
func NewRadioExtractor(dialer remote.Dialer, gatewayHost string, logger *zap.Logger) *RadioExtractor {
	return &RadioExtractor{dialer: dialer, gatewayHost: gatewayHost, logger: logger}
}

// Extract runs the signal and rate queries over one tunneled session.
// One failed command still yields a partially-successful result; only
// both failing is a hard failure.
func (e *RadioExtractor) Extract(ctx context.Context, dev models.Device) models.Result {
	ctx, cancel := context.WithTimeout(ctx, remote.OperationTimeout)
	defer cancel()

	target := remote.Tunneled(e.gatewayHost, remote.Target{
		Host:     dev.InnerIP,
		Port:     dev.NATPort,
		Username: dev.Username,
		Password: dev.Password,
	})

	sess, err := e.dialer.Dial(ctx, target)
	if err != nil {
		return models.Failure(err.Error())
	}
	defer sess.Close()

	var metrics models.Metrics
	var cmdErrs []error

	if out, err := sess.Run(ctx, radioSignalCommand); err != nil {
		cmdErrs = append(cmdErrs, err)
	} else if rssi, ok := ParseRSSI(out.Stdout); ok {
		metrics.RSSI = &rssi
	}

	if out, err := sess.Run(ctx, radioRateCommand); err != nil {
		cmdErrs = append(cmdErrs, err)
	} else if rate, ok := ParseLinkRate(out.Stdout); ok {
		metrics.RateMbit = &rate
	}

	if len(cmdErrs) == 2 {
		return models.Failure(fmt.Sprintf("both status commands failed: %v; %v", cmdErrs[0], cmdErrs[1]))
	}
	if metrics.Empty() {
		return models.Failure("status commands returned no rssi or rate fields")
	}

	if len(cmdErrs) == 1 {
		e.logger.Debug("partial radio telemetry",
			zap.String("device_id", dev.ID),
			zap.Error(cmdErrs[0]),
		)
	}

	return models.Result{OK: true, Metrics: metrics, CheckedAt: time.Now().UTC()}
}
