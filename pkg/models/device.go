package models

import "time"

// DeviceFamily identifies the hardware family of a monitored endpoint.
// The set is closed: each family has its own reachability path and
// telemetry extraction sequence.
type DeviceFamily string

const (
	// FamilyONTEPON is an EPON optical terminal reachable over HTTP.
	// Its web UI reports optical parameters as plain decimal text.
	FamilyONTEPON DeviceFamily = "ont_epon"
	// FamilyONTGPON is a GPON optical terminal reachable over HTTP.
	// Its web UI reports optical parameters as hex-escaped character
	// sequences (legacy firmware encoding).
	FamilyONTGPON DeviceFamily = "ont_gpon"
	// FamilyRadio is a wireless bridge reachable only through the
	// gateway's destination-NAT forwarding.
	FamilyRadio DeviceFamily = "radio"
)

// Valid reports whether f is a known device family.
func (f DeviceFamily) Valid() bool {
	switch f {
	case FamilyONTEPON, FamilyONTGPON, FamilyRadio:
		return true
	}
	return false
}

// GatewayReachable reports whether devices of this family are reached
// through the gateway's NAT forwarding rather than directly.
func (f DeviceFamily) GatewayReachable() bool {
	return f == FamilyRadio
}

// DeviceStatus is the last known monitoring state of a device.
type DeviceStatus string

const (
	StatusOnline  DeviceStatus = "online"
	StatusOffline DeviceStatus = "offline"
	StatusUnknown DeviceStatus = "unknown"
)

// Device describes one monitored endpoint: identity, reachability
// configuration, polling policy, and notification thresholds.
//
// Credential fields hold plaintext only in transient copies handed to a
// poll or reconciliation; the device store keeps them encrypted at rest.
type Device struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Family DeviceFamily `json:"family"`

	// Host is the web UI address of HTTP-reachable families (ONTs).
	// Username/Password are the device's own login for every family.
	Host     string `json:"host,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"-"`

	// Gateway-reachable family (radios). InnerIP is the radio's own
	// address behind the gateway; NATPort is the gateway-side port that
	// destination-NATs to the radio's SSH port; TunnelIP is the
	// gateway-side address that serves the radio's /24.
	InnerIP  string `json:"inner_ip,omitempty"`
	NATPort  int    `json:"nat_port,omitempty"`
	TunnelIP string `json:"tunnel_ip,omitempty"`

	// Polling policy.
	PollInterval  time.Duration `json:"poll_interval"`
	RetryAttempts int           `json:"retry_attempts"`
	RetryDelay    time.Duration `json:"retry_delay"`

	Notify NotifySettings `json:"notify"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NotifySettings holds per-metric alert toggles and thresholds.
// Floors trigger when the observed value drops below them; the
// temperature ceiling triggers when exceeded.
type NotifySettings struct {
	OfflineEnabled bool `json:"offline_enabled"`

	RSSIEnabled bool `json:"rssi_enabled"`
	RSSIFloor   int  `json:"rssi_floor"`

	RateEnabled   bool `json:"rate_enabled"`
	RateFloorMbit int  `json:"rate_floor_mbit"`

	RxPowerEnabled bool    `json:"rx_power_enabled"`
	RxPowerFloor   float64 `json:"rx_power_floor"`

	TempEnabled bool    `json:"temp_enabled"`
	TempCeiling float64 `json:"temp_ceiling"`
}
