// Package telemetry turns raw device output into canonical monitoring
// results. Parsers are pure functions over text; extractors drive the
// remote channel or HTTP and assemble parsed fields per device family.
package telemetry

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	rssiRe = regexp.MustCompile(`(?i)rssi:\s*([+-]?\d+)`)
	rateRe = regexp.MustCompile(`(?i)rate:\s*(\d+(?:\.\d+)?)\s*([mg])bps`)

	// Address entries in listing output carry a /nn suffix; plain IPs in
	// other columns (networks, peers) do not and are skipped.
	addressRe = regexp.MustCompile(`(\d{1,3}(?:\.\d{1,3}){3})/\d{1,2}`)

	arrayRe      = regexp.MustCompile(`new Array\(([^)]*)\)`)
	arrayFieldRe = regexp.MustCompile(`'([^']*)'`)
	hexEscapeRe  = regexp.MustCompile(`\\x([0-9a-fA-F]{2})`)
)

// ParseRSSI locates an "rssi:" field with an optionally-signed integer.
// The second return is false when no field is present.
func ParseRSSI(text string) (int, bool) {
	m := rssiRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseLinkRate locates a "rate:" field with a decimal value and a
// Mbps/Gbps unit (case-insensitive) and normalizes it to whole megabits.
func ParseLinkRate(text string) (int, bool) {
	m := rateRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	if strings.EqualFold(m[2], "g") {
		v *= 1000
	}
	return int(math.Round(v)), true
}

// ParseAddressList returns the set of bare IPv4 addresses (subnet
// suffix stripped) present in address-listing output.
func ParseAddressList(text string) map[string]bool {
	addrs := make(map[string]bool)
	for _, m := range addressRe.FindAllStringSubmatch(text, -1) {
		addrs[m[1]] = true
	}
	return addrs
}

// NATRuleTargets reports whether NAT-listing output contains a rule
// whose to-addresses matches target exactly.
func NATRuleTargets(text, target string) bool {
	if target == "" {
		return false
	}
	re := regexp.MustCompile(`to-addresses=` + regexp.QuoteMeta(target) + `(?:\s|$)`)
	return re.MatchString(text)
}

// OpticalParams is the decoded optical telemetry of an ONT status page.
// Fields the page did not carry, or that failed to decode, are nil;
// partial telemetry is valid.
type OpticalParams struct {
	TxPower     *float64
	RxPower     *float64
	Voltage     *float64
	Temperature *float64
}

// Empty reports whether no parameter was decoded.
func (p OpticalParams) Empty() bool {
	return p.TxPower == nil && p.RxPower == nil && p.Voltage == nil && p.Temperature == nil
}

// ParseOpticalParams locates the embedded array literal carrying TX
// power, RX power, voltage, and temperature (in that order). Legacy
// GPON firmwares emit the values as \xHH escape sequences; the escape
// marker selects the decoding. Returns nil when no array construct is
// present at all.
func ParseOpticalParams(text string) *OpticalParams {
	m := arrayRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}

	fields := arrayFieldRe.FindAllStringSubmatch(m[1], -1)
	params := &OpticalParams{}
	for i, f := range fields {
		if i > 3 {
			break
		}
		raw := f[1]
		if strings.Contains(raw, `\x`) {
			raw = DecodeHexEscapes(raw)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			continue
		}
		switch i {
		case 0:
			params.TxPower = &v
		case 1:
			params.RxPower = &v
		case 2:
			params.Voltage = &v
		case 3:
			params.Temperature = &v
		}
	}
	return params
}

// DecodeHexEscapes replaces every \xHH sequence with its character.
// Text outside escape sequences passes through unchanged.
func DecodeHexEscapes(s string) string {
	return hexEscapeRe.ReplaceAllStringFunc(s, func(esc string) string {
		v, err := strconv.ParseUint(esc[2:], 16, 8)
		if err != nil {
			return esc
		}
		return string(rune(v))
	})
}
