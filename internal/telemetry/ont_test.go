package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/HerbHall/wispwatch/pkg/models"
	"go.uber.org/zap"
)

// ontFixture is a minimal fake ONT web UI.
type ontFixture struct {
	embedToken bool   // token in login page HTML vs rand-count endpoint
	opticBody  string // body served at the optic page
	loggedIn   bool
	loginToken string
}

func (f *ontFixture) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(ontLoginPagePath, func(w http.ResponseWriter, _ *http.Request) {
		if f.embedToken {
			fmt.Fprintf(w, `<html><form><input type="hidden" name="logintoken" value="%s"></form></html>`, f.loginToken)
			return
		}
		fmt.Fprint(w, `<html><form></form></html>`)
	})
	mux.HandleFunc(ontTokenPath, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, f.loginToken)
	})
	mux.HandleFunc(ontLoginPath, func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("logintoken") != f.loginToken {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		f.loggedIn = true
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "abc"})
	})
	mux.HandleFunc(ontOpticPath, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, f.opticBody)
	})
	return mux
}

// statusPage pads an optical array into a realistically-sized page.
func statusPage(array string) string {
	return "<html><head><title>Optical Info</title></head><body>" +
		strings.Repeat("<!-- pad -->", 50) +
		"<script>var transParam = " + array + ";</script></body></html>"
}

func ontDevice(host string, family models.DeviceFamily) models.Device {
	return models.Device{
		ID:       "ont-1",
		Name:     "ont-customer-7",
		Family:   family,
		Host:     host,
		Username: "admin",
		Password: "admin",
	}
}

func TestONTExtractor_EmbeddedToken(t *testing.T) {
	f := &ontFixture{
		embedToken: true,
		loginToken: "tok123",
		opticBody:  statusPage(`new Array('2.31','-23.87','3.28','45.5')`),
	}
	srv := httptest.NewServer(f.handler())
	defer srv.Close()

	e := NewONTExtractor(zap.NewNop())
	res := e.Extract(context.Background(), ontDevice(strings.TrimPrefix(srv.URL, "http://"), models.FamilyONTEPON))

	if !res.OK {
		t.Fatalf("Extract failed: %s", res.Err)
	}
	if !f.loggedIn {
		t.Error("extractor never posted the login form")
	}
	assertFloat(t, "RxPower", res.Metrics.RxPower, -23.87)
	assertFloat(t, "Temperature", res.Metrics.Temperature, 45.5)
}

func TestONTExtractor_TokenEndpointFallback(t *testing.T) {
	f := &ontFixture{
		embedToken: false,
		loginToken: "98431",
		opticBody:  statusPage(`new Array('\x32\x2e\x33\x31','\x2d\x32\x33\x2e\x38\x37','\x33\x2e\x32\x38','\x34\x35\x2e\x35')`),
	}
	srv := httptest.NewServer(f.handler())
	defer srv.Close()

	e := NewONTExtractor(zap.NewNop())
	res := e.Extract(context.Background(), ontDevice(strings.TrimPrefix(srv.URL, "http://"), models.FamilyONTGPON))

	if !res.OK {
		t.Fatalf("Extract failed: %s", res.Err)
	}
	// Legacy hex encoding must decode to the same values.
	assertFloat(t, "TxPower", res.Metrics.TxPower, 2.31)
	assertFloat(t, "RxPower", res.Metrics.RxPower, -23.87)
}

func TestONTExtractor_ExpiredSession(t *testing.T) {
	f := &ontFixture{
		embedToken: true,
		loginToken: "tok123",
		// Short placeholder body instead of the status page.
		opticBody: `<script>top.location="/login.asp";</script>`,
	}
	srv := httptest.NewServer(f.handler())
	defer srv.Close()

	e := NewONTExtractor(zap.NewNop())
	res := e.Extract(context.Background(), ontDevice(strings.TrimPrefix(srv.URL, "http://"), models.FamilyONTEPON))

	if res.OK {
		t.Fatal("Extract succeeded against an expired session")
	}
	if res.Err != msgSessionExpired {
		t.Errorf("Err = %q, want %q", res.Err, msgSessionExpired)
	}
}

func TestONTExtractor_Unreachable(t *testing.T) {
	e := NewONTExtractor(zap.NewNop())
	// Port 1 on loopback: connection refused.
	res := e.Extract(context.Background(), ontDevice("127.0.0.1:1", models.FamilyONTEPON))

	if res.OK {
		t.Fatal("Extract succeeded against unreachable host")
	}
	if res.Err == "" {
		t.Error("failure carries no error text")
	}
}
