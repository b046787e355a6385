package portal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ErrSessionFailed wraps every failure to reach the report page.
var ErrSessionFailed = errors.New("session could not be established")

// SessionState is a step of the login hand-off.
type SessionState int

const (
	StateIdle SessionState = iota
	StateCredentialsSubmitted
	StateAwaitingManualAuth
	StateSwitchingPortal
	StateReady
	StateFailed
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCredentialsSubmitted:
		return "credentials_submitted"
	case StateAwaitingManualAuth:
		return "awaiting_manual_auth"
	case StateSwitchingPortal:
		return "switching_portal"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// URLSignal reports where the browser currently is. The session polls it
// while the operator solves the CAPTCHA and OTP.
type URLSignal interface {
	Location(ctx context.Context) (string, error)
}

// SessionConfig holds the URLs and waits used by Session.
type SessionConfig struct {
	LoginURL        string
	ReportURL       string
	DefaultTimeout  time.Duration
	ExtendedTimeout time.Duration
	PollInterval    time.Duration
}

// Session takes a fresh page from the login form to the GSTIN-wise report
// page. It runs once per job and never retries.
type Session struct {
	page   Page
	signal URLSignal
	cfg    SessionConfig
	logger *slog.Logger

	mu    sync.RWMutex
	state SessionState
}

// NewSession returns an idle session on page. The page itself is the URL signal.
func NewSession(page Page, cfg SessionConfig, logger *slog.Logger) *Session {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Session{
		page:   page,
		signal: page,
		cfg:    cfg,
		logger: logger.With("component", "session"),
		state:  StateIdle,
	}
}

// WithSignal replaces the URL signal.
func (s *Session) WithSignal(signal URLSignal) *Session {
	s.signal = signal
	return s
}

// State returns the current step.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) transition(to SessionState) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()
	s.logger.Debug("Session state changed", "from", from.String(), "to", to.String())
}

// Establish logs in and returns the tab showing the report page.
func (s *Session) Establish(ctx context.Context, username, password string) (Page, error) {
	report, err := s.establish(ctx, username, password)
	if err != nil {
		state := s.State()
		s.transition(StateFailed)
		return nil, fmt.Errorf("%w: %s: %w", ErrSessionFailed, state, err)
	}
	s.transition(StateReady)
	s.logger.Info("EWB MIS portal is ready for use.")
	return report, nil
}

func (s *Session) establish(ctx context.Context, username, password string) (Page, error) {
	if st := s.State(); st != StateIdle {
		return nil, fmt.Errorf("session already %s", st)
	}

	if err := s.submitCredentials(ctx, username, password); err != nil {
		return nil, err
	}
	s.transition(StateCredentialsSubmitted)

	s.transition(StateAwaitingManualAuth)
	s.logger.Info("Waiting for manual CAPTCHA and OTP entry", "timeout", s.cfg.ExtendedTimeout.String())
	landed, err := s.awaitLanding(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Successfully logged in", "url", landed)

	s.transition(StateSwitchingPortal)
	return s.switchPortal(ctx)
}

func (s *Session) submitCredentials(ctx context.Context, username, password string) error {
	stepCtx, cancel := context.WithTimeout(ctx, s.cfg.DefaultTimeout)
	defer cancel()

	s.logger.Info("Opening login page", "url", s.cfg.LoginURL)
	if err := s.page.Navigate(stepCtx, s.cfg.LoginURL); err != nil {
		return fmt.Errorf("failed to open login page: %w", err)
	}
	if err := s.page.Type(stepCtx, SelUsername, username); err != nil {
		return fmt.Errorf("failed to fill username: %w", err)
	}
	if err := s.page.Type(stepCtx, SelPassword, password); err != nil {
		return fmt.Errorf("failed to fill password: %w", err)
	}
	return nil
}

// awaitLanding polls the URL signal until the post-login page shows up or
// the extended timeout passes.
func (s *Session) awaitLanding(ctx context.Context) (string, error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.ExtendedTimeout)
	defer cancel()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		loc, err := s.signal.Location(waitCtx)
		if err == nil && IsPostLoginURL(loc) {
			return loc, nil
		}
		if err != nil && waitCtx.Err() == nil {
			s.logger.Debug("Location unavailable", "error", err)
		}

		select {
		case <-waitCtx.Done():
			return "", fmt.Errorf("manual login not completed: %w", waitCtx.Err())
		case <-ticker.C:
		}
	}
}

func (s *Session) switchPortal(ctx context.Context) (Page, error) {
	stepCtx, cancel := context.WithTimeout(ctx, s.cfg.ExtendedTimeout)
	defer cancel()

	if err := s.page.WaitIdle(stepCtx); err != nil {
		return nil, fmt.Errorf("dashboard did not settle: %w", err)
	}
	if err := s.page.WaitVisible(stepCtx, SelEWBMISButton); err != nil {
		return nil, fmt.Errorf("EWB MIS button not found: %w", err)
	}
	s.logger.Info("EWB MIS button found, clicking...")

	report, err := s.page.OpenTab(stepCtx, SelEWBMISButton)
	if err != nil {
		return nil, fmt.Errorf("EWB MIS tab did not open: %w", err)
	}
	if err := s.openReport(stepCtx, report); err != nil {
		_ = report.Close()
		return nil, err
	}
	return report, nil
}

func (s *Session) openReport(ctx context.Context, report Page) error {
	if err := report.WaitIdle(ctx); err != nil {
		return fmt.Errorf("EWB MIS tab did not settle: %w", err)
	}
	if loc, err := report.Location(ctx); err == nil {
		s.logger.Info("EWB MIS portal opened successfully", "url", loc)
	}
	if err := report.Navigate(ctx, s.cfg.ReportURL); err != nil {
		return fmt.Errorf("failed to open report page: %w", err)
	}
	if err := report.WaitIdle(ctx); err != nil {
		return fmt.Errorf("report page did not settle: %w", err)
	}
	if err := report.BringToFront(ctx); err != nil {
		return fmt.Errorf("failed to focus report tab: %w", err)
	}
	return nil
}

// IsPostLoginURL reports whether raw points at the SSO dashboard page.
func IsPostLoginURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Path), PostLoginPath)
}
