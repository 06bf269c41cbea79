package pvs

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"pvs_monitor/internal/logger"
)

const (
	// AuthIdentity is the fixed local-API account; the password is the serial suffix.
	AuthIdentity = "ssm_owner"

	pathLogin = "/auth?login"
)

// SessionState tracks the login lifecycle.
type SessionState int

const (
	StateUnauthenticated SessionState = iota
	StateAuthenticating
	StateAuthenticated
	StateExpired
)

func (s SessionState) String() string {
	switch s {
	case StateUnauthenticated:
		return "UNAUTHENTICATED"
	case StateAuthenticating:
		return "AUTHENTICATING"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateExpired:
		return "EXPIRED"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

type loginResponse struct {
	Session string `json:"session"`
}

// Session holds the local-API token. A rejected token is never reused: it is dropped and a
// fresh login happens before the next request.
type Session struct {
	transport *Transport
	suffix    string
	ttl       time.Duration
	now       func() time.Time
	log       *logger.Logger

	// mu covers the token and login round-trips; stateMu only the state, so State never
	// waits on a login in flight.
	mu       sync.Mutex
	stateMu  sync.RWMutex
	state    SessionState
	token    string
	issuedAt time.Time
	logins   int
}

// NewSession creates an unauthenticated session. ttl <= 0 keeps a token until the device
// rejects it.
func NewSession(t *Transport, serialSuffix string, ttl time.Duration, log *logger.Logger) *Session {
	if log == nil {
		log = logger.Nop()
	}
	return &Session{
		transport: t,
		suffix:    serialSuffix,
		ttl:       ttl,
		now:       time.Now,
		log:       log,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

func (s *Session) setState(st SessionState) {
	s.stateMu.Lock()
	s.state = st
	s.stateMu.Unlock()
}

// IssuedAt returns when the current token was obtained.
func (s *Session) IssuedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issuedAt
}

// Logins returns how many login round-trips were attempted.
func (s *Session) Logins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins
}

func (s *Session) authorizationHeader() string {
	cred := base64.StdEncoding.EncodeToString([]byte(AuthIdentity + ":" + s.suffix))
	// The device expects the lowercase scheme.
	return "basic " + cred
}

// Login performs the Basic-auth challenge and stores the session token.
func (s *Session) Login(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loginLocked(ctx)
}

func (s *Session) loginLocked(ctx context.Context) error {
	s.setState(StateAuthenticating)
	s.token = ""
	s.logins++

	header := http.Header{}
	header.Set("Authorization", s.authorizationHeader())

	var resp loginResponse
	err := s.transport.GetJSON(ctx, pathLogin, header, &resp)
	if err != nil {
		s.setState(StateUnauthenticated)
		var statusErr *StatusError
		switch {
		case errors.As(err, &statusErr):
			s.log.Errorw("pvs_login_failed", "status", statusErr.Code)
			return &AuthenticationError{StatusCode: statusErr.Code, Reason: http.StatusText(statusErr.Code)}
		case errors.Is(err, ErrMalformedResponse):
			s.log.Errorw("pvs_login_failed", "error", err)
			return &AuthenticationError{Reason: "malformed login response"}
		default:
			s.log.Errorw("pvs_login_failed", "error", err)
			return fmt.Errorf("login: %w", err)
		}
	}
	if resp.Session == "" {
		s.setState(StateUnauthenticated)
		s.log.Errorw("pvs_login_failed", "reason", "no session token")
		return &AuthenticationError{StatusCode: http.StatusOK, Reason: "no session token in response"}
	}

	s.token = resp.Session
	s.issuedAt = s.now()
	s.setState(StateAuthenticated)
	s.log.Infow("pvs_login_ok", "identity", AuthIdentity)
	return nil
}

// EnsureValid logs in synchronously unless a live token is held.
func (s *Session) EnsureValid(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLocked(ctx)
}

func (s *Session) ensureLocked(ctx context.Context) error {
	if s.State() == StateAuthenticated {
		if s.ttl <= 0 || s.now().Sub(s.issuedAt) < s.ttl {
			return nil
		}
		s.setState(StateExpired)
		s.log.Infow("pvs_session_ttl_elapsed", "issued_at", s.issuedAt)
	}
	return s.loginLocked(ctx)
}

// Invalidate drops the token; the next request logs in again.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked()
}

func (s *Session) expireLocked() {
	s.token = ""
	s.setState(StateExpired)
}

func (s *Session) currentToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLocked(ctx); err != nil {
		return "", err
	}
	return s.token, nil
}

// Authorized runs fn with a valid token. When the device rejects the token the session is
// expired, one fresh login is made and fn runs exactly once more. A second rejection
// surfaces as a connection failure wrapping an AuthenticationError.
func (s *Session) Authorized(ctx context.Context, fn func(token string) error) error {
	token, err := s.currentToken(ctx)
	if err != nil {
		return err
	}

	err = fn(token)
	if !errors.Is(err, ErrSessionRejected) {
		return err
	}

	s.log.Warnw("pvs_session_rejected", "error", err)
	s.Invalidate()

	token, err = s.currentToken(ctx)
	if err != nil {
		if IsAuthFailure(err) {
			return fmt.Errorf("%w: re-login after session rejection: %w", ErrConnectionFailure, err)
		}
		return err
	}

	err = fn(token)
	if !errors.Is(err, ErrSessionRejected) {
		return err
	}

	s.Invalidate()
	code := 0
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		code = statusErr.Code
	}
	s.log.Errorw("pvs_session_rejected_twice", "status", code)
	return fmt.Errorf("%w: %w", ErrConnectionFailure, &AuthenticationError{
		StatusCode: code,
		Reason:     "session rejected again after re-login",
	})
}

// CookieHeader builds the header that carries the session token.
func CookieHeader(token string) http.Header {
	h := http.Header{}
	h.Set("Cookie", "session="+token)
	return h
}
