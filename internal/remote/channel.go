// Package remote executes single commands on network gear over SSH.
// It carries no business semantics: callers build targets, run command
// strings, and interpret the returned text themselves.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
)

const (
	connectTimeout = 10 * time.Second
	commandTimeout = 30 * time.Second

	// OperationTimeout bounds one complete dial-and-run sequence.
	// Callers derive their outer context from it.
	OperationTimeout = 45 * time.Second
)

// Channel-establishment and execution failures. Retry policy lives in
// the scheduler; the channel itself never retries.
var (
	ErrConnectTimeout = errors.New("connect timed out")
	ErrAuthFailed     = errors.New("authentication failed")
	ErrCommandTimeout = errors.New("command timed out")
)

// Target identifies one SSH endpoint and its credentials.
type Target struct {
	Host     string
	Port     int
	Username string
	Password string
}

// Addr returns the dialable host:port form of the target.
func (t Target) Addr() string {
	port := t.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(t.Host, strconv.Itoa(port))
}

// Tunneled maps an inner device target onto the gateway's address. The
// gateway destination-NATs inner.Port back to the device, so the session
// authenticates with the inner device's own credentials; once open it is
// indistinguishable from a direct connection.
func Tunneled(gatewayHost string, inner Target) Target {
	return Target{
		Host:     gatewayHost,
		Port:     inner.Port,
		Username: inner.Username,
		Password: inner.Password,
	}
}

// Output is the raw result of one remote command.
type Output struct {
	Stdout     string
	Stderr     string
	ExitStatus int
}

// Session is a live command-execution session on one host. It must be
// closed on every exit path.
type Session interface {
	Run(ctx context.Context, command string) (Output, error)
	Close() error
}

// Dialer opens sessions. *Client is the SSH implementation; tests
// substitute fakes.
type Dialer interface {
	Dial(ctx context.Context, target Target) (Session, error)
}

// Compile-time interface guard.
var _ Dialer = (*Client)(nil)

// Client opens one SSH connection per Dial call. Connections are never
// pooled or shared across concurrent polls.
type Client struct {
	logger *zap.Logger

	// sshDial is the function used to establish SSH connections.
	// Defaults to ssh.Dial; overridden in tests.
	sshDial func(network, addr string, config *ssh.ClientConfig) (*ssh.Client, error)
}

// NewClient creates an SSH command client.
func NewClient(logger *zap.Logger) *Client {
	return &Client{logger: logger}
}

// Dial opens an SSH session to the target. Password auth is tried
// first; some radio firmwares only accept keyboard-interactive, so that
// is offered as a fallback answering every prompt with the password.
func (c *Client) Dial(ctx context.Context, target Target) (Session, error) {
	keyboardInteractive := ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
		answers := make([]string, len(questions))
		for i := range questions {
			answers[i] = target.Password
		}
		return answers, nil
	})

	config := &ssh.ClientConfig{
		User: target.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(target.Password),
			keyboardInteractive,
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // G106: field gear has no managed host keys
		Timeout:         connectTimeout,
	}

	dial := c.sshDial
	if dial == nil {
		dial = ssh.Dial
	}

	type dialResult struct {
		client *ssh.Client
		err    error
	}
	ch := make(chan dialResult, 1)
	go func() {
		client, err := dial("tcp", target.Addr(), config)
		ch <- dialResult{client, err}
	}()

	select {
	case <-ctx.Done():
		// Abandon the dial; its goroutine closes the client if one arrives late.
		go func() {
			if r := <-ch; r.client != nil {
				r.client.Close()
			}
		}()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("dial %s: %w", target.Addr(), ErrConnectTimeout)
		}
		return nil, fmt.Errorf("dial %s: %w", target.Addr(), ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return nil, classifyDialError(target.Addr(), r.err)
		}
		c.logger.Debug("ssh session opened", zap.String("addr", target.Addr()))
		return &sshSession{client: r.client, addr: target.Addr()}, nil
	}
}

// classifyDialError maps ssh.Dial failures onto the channel error taxonomy.
func classifyDialError(addr string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("dial %s: %w", addr, ErrConnectTimeout)
	}
	if strings.Contains(err.Error(), "unable to authenticate") {
		return fmt.Errorf("dial %s: %w", addr, ErrAuthFailed)
	}
	return fmt.Errorf("dial %s: %w", addr, err)
}

type sshSession struct {
	client *ssh.Client
	addr   string
}

// Run executes one command with a per-command timeout. A non-zero exit
// status with benign stderr counts as success: the gateway's remote
// shell does not report reliable exit codes, so only an explicit
// failure marker on stderr is trusted.
func (s *sshSession) Run(ctx context.Context, command string) (Output, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	sess, err := s.client.NewSession()
	if err != nil {
		return Output{}, fmt.Errorf("new session on %s: %w", s.addr, err)
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- sess.Run(command) }()

	select {
	case <-ctx.Done():
		// Closing the session unblocks the Run goroutine.
		sess.Close()
		return Output{}, fmt.Errorf("run %q on %s: %w", command, s.addr, ErrCommandTimeout)
	case err = <-done:
	}

	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *ssh.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		out.ExitStatus = exitErr.ExitStatus()
	default:
		return out, fmt.Errorf("run %q on %s: %w", command, s.addr, err)
	}

	if StderrLooksFatal(out.Stderr) {
		return out, fmt.Errorf("run %q on %s: remote reported: %s", command, s.addr, strings.TrimSpace(out.Stderr))
	}
	return out, nil
}

func (s *sshSession) Close() error {
	return s.client.Close()
}

// Fatal stderr markers for the gateway command dialect. Deliberately a
// loose heuristic; the remote shell's own success semantics are not
// verifiable, so this must not be tightened.
var fatalMarkers = []string{"failure", "error", "invalid", "bad command"}

// StderrLooksFatal reports whether stderr carries an explicit failure
// marker. Empty or informational stderr is benign regardless of the
// command's exit status.
func StderrLooksFatal(stderr string) bool {
	if strings.TrimSpace(stderr) == "" {
		return false
	}
	lower := strings.ToLower(stderr)
	for _, marker := range fatalMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
