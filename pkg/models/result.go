package models

import "time"

// Metrics is the family-specific telemetry bag from one poll. Pointer
// fields distinguish "absent" from zero: a radio poll may populate only
// one of RSSI/RateMbit and still count as a success.
type Metrics struct {
	// Radio family.
	RSSI     *int `json:"rssi,omitempty"`      // dBm
	RateMbit *int `json:"rate_mbit,omitempty"` // link speed, megabits

	// Optical terminal families.
	TxPower     *float64 `json:"tx_power,omitempty"` // dBm
	RxPower     *float64 `json:"rx_power,omitempty"` // dBm
	Voltage     *float64 `json:"voltage,omitempty"`  // V
	Temperature *float64 `json:"temperature,omitempty"` // degrees C
}

// Empty reports whether no metric field is populated.
func (m Metrics) Empty() bool {
	return m.RSSI == nil && m.RateMbit == nil &&
		m.TxPower == nil && m.RxPower == nil &&
		m.Voltage == nil && m.Temperature == nil
}

// Result is the outcome of one poll attempt. Ephemeral: handed to the
// status cache and the notification evaluator, never persisted here.
type Result struct {
	OK        bool      `json:"ok"`
	Metrics   Metrics   `json:"metrics"`
	Err       string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Failure builds a failed Result carrying the error text.
func Failure(err string) Result {
	return Result{OK: false, Err: err, CheckedAt: time.Now().UTC()}
}
