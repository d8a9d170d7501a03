package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/HerbHall/wispwatch/internal/remote"
	"github.com/HerbHall/wispwatch/pkg/models"
	"go.uber.org/zap"
)

// fakeSession scripts per-command responses and records lifecycle.
type fakeSession struct {
	responses map[string]remote.Output
	errs      map[string]error
	closed    bool
}

func (s *fakeSession) Run(_ context.Context, command string) (remote.Output, error) {
	if err, ok := s.errs[command]; ok {
		return remote.Output{}, err
	}
	return s.responses[command], nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeDialer struct {
	session  *fakeSession
	dialErr  error
	lastAddr string
}

func (d *fakeDialer) Dial(_ context.Context, target remote.Target) (remote.Session, error) {
	d.lastAddr = target.Addr()
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	return d.session, nil
}

func radioDevice() models.Device {
	return models.Device{
		ID:       "dev-1",
		Name:     "radio-hilltop",
		Family:   models.FamilyRadio,
		InnerIP:  "10.0.3.12",
		NATPort:  2212,
		Username: "ubnt",
		Password: "pw",
		TunnelIP: "10.0.3.1",
	}
}

func TestRadioExtractor_BothMetrics(t *testing.T) {
	d := &fakeDialer{session: &fakeSession{
		responses: map[string]remote.Output{
			radioSignalCommand: {Stdout: "rssi: -61\nccq: 94"},
			radioRateCommand:   {Stdout: "rate: 300Mbps"},
		},
	}}
	e := NewRadioExtractor(d, "203.0.113.1", zap.NewNop())

	res := e.Extract(context.Background(), radioDevice())
	if !res.OK {
		t.Fatalf("Extract failed: %s", res.Err)
	}
	if res.Metrics.RSSI == nil || *res.Metrics.RSSI != -61 {
		t.Errorf("RSSI = %v, want -61", res.Metrics.RSSI)
	}
	if res.Metrics.RateMbit == nil || *res.Metrics.RateMbit != 300 {
		t.Errorf("RateMbit = %v, want 300", res.Metrics.RateMbit)
	}
	if d.lastAddr != "203.0.113.1:2212" {
		t.Errorf("dialed %s, want the gateway's NAT-forwarded port", d.lastAddr)
	}
	if !d.session.closed {
		t.Error("session not closed")
	}
}

func TestRadioExtractor_PartialSuccess(t *testing.T) {
	tests := []struct {
		name     string
		failing  string
		wantRSSI bool
	}{
		{"rate command fails", radioRateCommand, true},
		{"signal command fails", radioSignalCommand, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDialer{session: &fakeSession{
				responses: map[string]remote.Output{
					radioSignalCommand: {Stdout: "rssi: -61"},
					radioRateCommand:   {Stdout: "rate: 1Gbps"},
				},
				errs: map[string]error{tt.failing: errors.New("boom")},
			}}
			e := NewRadioExtractor(d, "203.0.113.1", zap.NewNop())

			res := e.Extract(context.Background(), radioDevice())
			if !res.OK {
				t.Fatalf("partial result reported as failure: %s", res.Err)
			}
			if gotRSSI := res.Metrics.RSSI != nil; gotRSSI != tt.wantRSSI {
				t.Errorf("RSSI present = %v, want %v", gotRSSI, tt.wantRSSI)
			}
			if gotRate := res.Metrics.RateMbit != nil; gotRate == tt.wantRSSI {
				t.Errorf("exactly one metric must be populated, got rssi=%v rate=%v",
					res.Metrics.RSSI != nil, gotRate)
			}
		})
	}
}

func TestRadioExtractor_BothCommandsFail(t *testing.T) {
	sess := &fakeSession{errs: map[string]error{
		radioSignalCommand: errors.New("timeout"),
		radioRateCommand:   errors.New("timeout"),
	}}
	e := NewRadioExtractor(&fakeDialer{session: sess}, "203.0.113.1", zap.NewNop())

	res := e.Extract(context.Background(), radioDevice())
	if res.OK {
		t.Fatal("Extract succeeded with both commands failing")
	}
	if !sess.closed {
		t.Error("session not closed on failure path")
	}
}

func TestRadioExtractor_DialFailure(t *testing.T) {
	e := NewRadioExtractor(&fakeDialer{dialErr: remote.ErrConnectTimeout}, "203.0.113.1", zap.NewNop())

	res := e.Extract(context.Background(), radioDevice())
	if res.OK {
		t.Fatal("Extract succeeded despite dial failure")
	}
	if res.Err == "" {
		t.Error("failure result carries no error text")
	}
}

func TestRadioExtractor_NoParseableFields(t *testing.T) {
	d := &fakeDialer{session: &fakeSession{
		responses: map[string]remote.Output{
			radioSignalCommand: {Stdout: "no fields here"},
			radioRateCommand:   {Stdout: "nothing"},
		},
	}}
	e := NewRadioExtractor(d, "203.0.113.1", zap.NewNop())

	if res := e.Extract(context.Background(), radioDevice()); res.OK {
		t.Error("Extract succeeded with no parseable telemetry")
	}
}
