package telemetry

import "testing"

func TestParseRSSI(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
		ok   bool
	}{
		{"negative dbm", "wlanConnected: 1\nrssi: -61\nccq: 94", -61, true},
		{"positive", "rssi: 27", 27, true},
		{"explicit plus sign", "rssi: +5", 5, true},
		{"mixed case field", "RSSI: -70", -70, true},
		{"extra spacing", "rssi:    -48", -48, true},
		{"absent", "signal=-61\nnoise=-96", 0, false},
		{"empty", "", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseRSSI(tt.text)
			if ok != tt.ok || got != tt.want {
				t.Errorf("ParseRSSI(%q) = (%d, %v), want (%d, %v)", tt.text, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestParseLinkRate(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
		ok   bool
	}{
		{"gigabit", "rate: 1Gbps", 1000, true},
		{"hundred megabit", "rate: 100Mbps", 100, true},
		{"ten megabit", "rate: 10Mbps", 10, true},
		{"fractional gigabit", "rate: 2.5Gbps", 2500, true},
		{"rounded fraction", "rate: 866.7Mbps", 867, true},
		{"lower case unit", "rate: 300mbps", 300, true},
		{"spaced unit", "rate: 150 Mbps", 150, true},
		{"buried in output", "link: up\nrate: 1Gbps\nduplex: full", 1000, true},
		{"no unit", "rate: 100", 0, false},
		{"absent", "speed 100Mb/s", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseLinkRate(tt.text)
			if ok != tt.ok || got != tt.want {
				t.Errorf("ParseLinkRate(%q) = (%d, %v), want (%d, %v)", tt.text, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestParseAddressList(t *testing.T) {
	out := `Flags: X - disabled, I - invalid, D - dynamic
 #   ADDRESS            NETWORK         INTERFACE
 0   10.0.3.1/24        10.0.3.0        bridge-lan
 1   10.0.7.1/24        10.0.7.0        bridge-lan
 2 D 203.0.113.5/30     203.0.113.4     ether1
`
	addrs := ParseAddressList(out)

	for _, want := range []string{"10.0.3.1", "10.0.7.1", "203.0.113.5"} {
		if !addrs[want] {
			t.Errorf("address %s missing from %v", want, addrs)
		}
	}
	// Network column has no subnet suffix and must not count as an address.
	if addrs["10.0.3.0"] {
		t.Error("network address 10.0.3.0 wrongly treated as an assignment")
	}
	if len(addrs) != 3 {
		t.Errorf("len(addrs) = %d, want 3", len(addrs))
	}
}

func TestParseAddressList_Empty(t *testing.T) {
	if addrs := ParseAddressList(""); len(addrs) != 0 {
		t.Errorf("ParseAddressList(\"\") = %v, want empty", addrs)
	}
}

func TestNATRuleTargets(t *testing.T) {
	out := ` 0    ;;; radio-hilltop
      chain=dstnat action=dst-nat to-addresses=10.0.3.12 to-ports=22
      protocol=tcp dst-port=2212
`
	if !NATRuleTargets(out, "10.0.3.12") {
		t.Error("existing rule target not found")
	}
	if NATRuleTargets(out, "10.0.3.1") {
		t.Error("10.0.3.1 matched against rule targeting 10.0.3.12")
	}
	if NATRuleTargets(out, "") {
		t.Error("empty target must never match")
	}
	if NATRuleTargets("", "10.0.3.12") {
		t.Error("match reported in empty listing")
	}
}

func TestParseOpticalParams_Plain(t *testing.T) {
	page := `var transParam = new Array('2.31','-23.87','3.28','45.5');`

	p := ParseOpticalParams(page)
	if p == nil {
		t.Fatal("ParseOpticalParams returned nil")
	}
	assertFloat(t, "TxPower", p.TxPower, 2.31)
	assertFloat(t, "RxPower", p.RxPower, -23.87)
	assertFloat(t, "Voltage", p.Voltage, 3.28)
	assertFloat(t, "Temperature", p.Temperature, 45.5)
}

func TestParseOpticalParams_HexMatchesPlain(t *testing.T) {
	// \x32\x2e\x33\x31 = "2.31", \x2d\x32\x33\x2e\x38\x37 = "-23.87", etc.
	hexPage := `var transParam = new Array('\x32\x2e\x33\x31','\x2d\x32\x33\x2e\x38\x37','\x33\x2e\x32\x38','\x34\x35\x2e\x35');`
	plainPage := `var transParam = new Array('2.31','-23.87','3.28','45.5');`

	hex := ParseOpticalParams(hexPage)
	plain := ParseOpticalParams(plainPage)
	if hex == nil || plain == nil {
		t.Fatal("parser returned nil for valid page")
	}

	pairs := []struct {
		name       string
		hex, plain *float64
	}{
		{"TxPower", hex.TxPower, plain.TxPower},
		{"RxPower", hex.RxPower, plain.RxPower},
		{"Voltage", hex.Voltage, plain.Voltage},
		{"Temperature", hex.Temperature, plain.Temperature},
	}
	for _, p := range pairs {
		if p.hex == nil || p.plain == nil {
			t.Fatalf("%s: nil field (hex=%v plain=%v)", p.name, p.hex, p.plain)
		}
		if *p.hex != *p.plain {
			t.Errorf("%s: hex decode %v != plain %v", p.name, *p.hex, *p.plain)
		}
	}
}

func TestParseOpticalParams_PartialFields(t *testing.T) {
	// Unreadable values must not block the readable ones.
	page := `var transParam = new Array('2.31','N/A','','45.5');`

	p := ParseOpticalParams(page)
	if p == nil {
		t.Fatal("ParseOpticalParams returned nil")
	}
	assertFloat(t, "TxPower", p.TxPower, 2.31)
	if p.RxPower != nil {
		t.Errorf("RxPower = %v, want nil for N/A", *p.RxPower)
	}
	if p.Voltage != nil {
		t.Errorf("Voltage = %v, want nil for empty field", *p.Voltage)
	}
	assertFloat(t, "Temperature", p.Temperature, 45.5)
}

func TestParseOpticalParams_NoArray(t *testing.T) {
	if p := ParseOpticalParams("<html><body>Please log in</body></html>"); p != nil {
		t.Errorf("ParseOpticalParams = %+v, want nil without array construct", p)
	}
}

func TestDecodeHexEscapes(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`\x2d\x32\x33\x2e\x38\x37`, "-23.87"},
		{`plain`, "plain"},
		{`mid\x2evalue`, "mid.value"},
		{`\xzz`, `\xzz`}, // malformed escape passes through
	}
	for _, tt := range tests {
		if got := DecodeHexEscapes(tt.in); got != tt.want {
			t.Errorf("DecodeHexEscapes(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func assertFloat(t *testing.T, name string, got *float64, want float64) {
	t.Helper()
	if got == nil {
		t.Fatalf("%s = nil, want %v", name, want)
	}
	if *got != want {
		t.Errorf("%s = %v, want %v", name, *got, want)
	}
}
