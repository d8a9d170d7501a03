package telemetry

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/HerbHall/wispwatch/pkg/models"
	"go.uber.org/zap"
)

// ONT web UI paths. The login token is embedded in the login page on
// current firmwares; older ones serve it from the rand-count endpoint.
const (
	ontLoginPagePath = "/login.asp"
	ontTokenPath     = "/asp/GetRandCount"
	ontLoginPath     = "/login.cgi"
	ontOpticPath     = "/status/opticinfo.asp"

	ontHTTPTimeout = 10 * time.Second

	// Bodies under this size are login redirects, not status pages.
	ontMinStatusBody = 512
)

// msgSessionExpired marks a telemetry page that came back as a login
// placeholder instead of status content.
const msgSessionExpired = "ont session unauthenticated or expired"

var (
	ontTokenInputRe = regexp.MustCompile(`name="logintoken"[^>]*value="([^"]*)"`)
	ontTokenVarRe   = regexp.MustCompile(`var\s+logintoken\s*=\s*"([^"]*)"`)
)

// ONTExtractor polls an optical terminal's web UI: authenticate, fetch
// the optical status page, decode the embedded parameter array. Both
// ONT families share it; the parser detects the legacy hex encoding.
type ONTExtractor struct {
	transport http.RoundTripper
	logger    *zap.Logger
}

// NewONTExtractor creates an ONT extractor.
func NewONTExtractor(logger *zap.Logger) *ONTExtractor {
	return &ONTExtractor{
		transport: &http.Transport{DisableKeepAlives: true},
		logger:    logger,
	}
}

// Extract authenticates against the ONT and parses the optical page.
func (e *ONTExtractor) Extract(ctx context.Context, dev models.Device) models.Result {
	// Fresh cookie jar per poll: ONT sessions must never leak across
	// devices or attempts.
	jar, err := cookiejar.New(nil)
	if err != nil {
		return models.Failure(fmt.Sprintf("cookie jar: %v", err))
	}
	client := &http.Client{
		Jar:       jar,
		Timeout:   ontHTTPTimeout,
		Transport: e.transport,
	}
	base := "http://" + dev.Host

	if err := e.login(ctx, client, base, dev); err != nil {
		return models.Failure(err.Error())
	}

	body, err := e.get(ctx, client, base+ontOpticPath)
	if err != nil {
		return models.Failure(err.Error())
	}
	if looksUnauthenticated(body) {
		return models.Failure(msgSessionExpired)
	}

	params := ParseOpticalParams(body)
	if params == nil || params.Empty() {
		return models.Failure("no optical parameters in status page")
	}

	return models.Result{
		OK: true,
		Metrics: models.Metrics{
			TxPower:     params.TxPower,
			RxPower:     params.RxPower,
			Voltage:     params.Voltage,
			Temperature: params.Temperature,
		},
		CheckedAt: time.Now().UTC(),
	}
}

// login obtains a session token and posts the login form. The token is
// read from the login page HTML first; firmwares that do not embed it
// serve it from the rand-count endpoint instead.
func (e *ONTExtractor) login(ctx context.Context, client *http.Client, base string, dev models.Device) error {
	page, err := e.get(ctx, client, base+ontLoginPagePath)
	if err != nil {
		return fmt.Errorf("login page: %w", err)
	}

	token := extractLoginToken(page)
	if token == "" {
		body, err := e.get(ctx, client, base+ontTokenPath)
		if err != nil {
			return fmt.Errorf("token endpoint: %w", err)
		}
		token = strings.TrimSpace(body)
	}
	if token == "" {
		return fmt.Errorf("no login token from %s", dev.Host)
	}

	form := url.Values{
		"UserName":   {dev.Username},
		"PassWord":   {base64.StdEncoding.EncodeToString([]byte(dev.Password))},
		"logintoken": {token},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+ontLoginPath, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("login post: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login rejected: HTTP %d", resp.StatusCode)
	}
	return nil
}

func (e *ONTExtractor) get(ctx context.Context, client *http.Client, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("build request %s: %w", rawURL, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("get %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", rawURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("get %s: HTTP %d", rawURL, resp.StatusCode)
	}
	return string(body), nil
}

func extractLoginToken(page string) string {
	if m := ontTokenInputRe.FindStringSubmatch(page); m != nil {
		return m[1]
	}
	if m := ontTokenVarRe.FindStringSubmatch(page); m != nil {
		return m[1]
	}
	return ""
}

// looksUnauthenticated detects the login placeholder the ONT serves in
// place of status pages once the session is gone: a short body or a
// frame-busting redirect back to the login page.
func looksUnauthenticated(body string) bool {
	if len(body) < ontMinStatusBody {
		return true
	}
	return strings.Contains(body, "top.location") && strings.Contains(body, "login")
}
