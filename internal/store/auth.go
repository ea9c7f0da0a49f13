package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	DefaultIdentityURL    = "https://identitytoolkit.googleapis.com"
	DefaultSecureTokenURL = "https://securetoken.googleapis.com"

	// DefaultTimeout bounds REST calls when no positive timeout is configured.
	DefaultTimeout = 10 * time.Second

	// tokenSkew renews ID tokens this long before they expire.
	tokenSkew = time.Minute

	maxBody = 64 << 10
)

// TokenProvider supplies Firebase ID tokens for database requests.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)

	// Invalidate drops the cached ID token after the backend rejected it.
	Invalidate()
}

// AuthConfig configures Firebase Authentication over its REST API.
type AuthConfig struct {
	APIKey   string
	UseEmail bool
	Email    string
	Password string

	IdentityURL    string // empty = DefaultIdentityURL
	SecureTokenURL string // empty = DefaultSecureTokenURL

	HTTP *http.Client
	Now  func() time.Time
}

// TokenSource signs in anonymously or with email/password and keeps the ID token fresh.
// Safe for concurrent use.
type TokenSource struct {
	cfg AuthConfig

	mu      sync.Mutex
	idToken string
	refresh string
	expiry  time.Time
	uid     string
}

// NewTokenSource creates a TokenSource. No request is made until the first Token call.
func NewTokenSource(cfg AuthConfig) *TokenSource {
	if cfg.IdentityURL == "" {
		cfg.IdentityURL = DefaultIdentityURL
	}
	if cfg.SecureTokenURL == "" {
		cfg.SecureTokenURL = DefaultSecureTokenURL
	}
	cfg.IdentityURL = strings.TrimRight(cfg.IdentityURL, "/")
	cfg.SecureTokenURL = strings.TrimRight(cfg.SecureTokenURL, "/")
	switch {
	case cfg.HTTP == nil:
		cfg.HTTP = &http.Client{Timeout: DefaultTimeout}
	case cfg.HTTP.Timeout <= 0:
		c := *cfg.HTTP
		c.Timeout = DefaultTimeout
		cfg.HTTP = &c
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &TokenSource{cfg: cfg}
}

// Token returns a valid ID token, refreshing or signing in as needed.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.cfg.Now()
	if s.idToken != "" && now.Before(s.expiry.Add(-tokenSkew)) {
		return s.idToken, nil
	}

	if s.refresh != "" {
		err := s.doRefresh(ctx, now)
		if err == nil {
			return s.idToken, nil
		}
		// Keep the refresh token through outages so an anonymous device keeps its uid.
		if !errors.Is(err, ErrUnauthorized) {
			return "", err
		}
		// A revoked or expired refresh token needs a fresh sign-in.
		s.refresh = ""
	}

	if err := s.signIn(ctx, now); err != nil {
		return "", err
	}
	return s.idToken, nil
}

// Invalidate drops the cached ID token; the refresh token is kept.
func (s *TokenSource) Invalidate() {
	s.mu.Lock()
	s.idToken = ""
	s.mu.Unlock()
}

// UID returns the Firebase user id of the last sign-in, empty before the first one.
func (s *TokenSource) UID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uid
}

type signInResponse struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
	LocalID      string `json:"localId"`
}

type refreshResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
	UserID       string `json:"user_id"`
}

type apiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *TokenSource) signIn(ctx context.Context, now time.Time) error {
	endpoint := "accounts:signUp"
	body := map[string]any{"returnSecureToken": true}
	if s.cfg.UseEmail {
		endpoint = "accounts:signInWithPassword"
		body["email"] = s.cfg.Email
		body["password"] = s.cfg.Password
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode sign-in: %w", err)
	}

	u := s.cfg.IdentityURL + "/v1/" + endpoint + "?key=" + url.QueryEscape(s.cfg.APIKey)
	var out signInResponse
	if err := s.post(ctx, u, "application/json", bytes.NewReader(payload), &out); err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	if out.IDToken == "" {
		return fmt.Errorf("sign in: %w: empty id token", ErrUnauthorized)
	}

	s.idToken = out.IDToken
	s.refresh = out.RefreshToken
	s.expiry = now.Add(parseExpiresIn(out.ExpiresIn))
	s.uid = out.LocalID
	return nil
}

func (s *TokenSource) doRefresh(ctx context.Context, now time.Time) error {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", s.refresh)

	u := s.cfg.SecureTokenURL + "/v1/token?key=" + url.QueryEscape(s.cfg.APIKey)
	var out refreshResponse
	if err := s.post(ctx, u, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()), &out); err != nil {
		return fmt.Errorf("refresh token: %w", err)
	}
	if out.IDToken == "" {
		return fmt.Errorf("refresh token: %w: empty id token", ErrUnauthorized)
	}

	s.idToken = out.IDToken
	if out.RefreshToken != "" {
		s.refresh = out.RefreshToken
	}
	s.expiry = now.Add(parseExpiresIn(out.ExpiresIn))
	if out.UserID != "" {
		s.uid = out.UserID
	}
	return nil
}

// post sends body and decodes a JSON response into out, mapping status codes to sentinel errors.
func (s *TokenSource) post(ctx context.Context, u, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := s.cfg.HTTP.Do(req)
	if err != nil {
		return stripURL(err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxBody))

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.Unmarshal(b, out); err != nil {
			return fmt.Errorf("decode: %w", err)
		}
		return nil
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s", ErrBackendUnavailable, resp.Status)
	default:
		var apiErr apiErrorResponse
		msg := resp.Status
		if json.Unmarshal(b, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
	}
}

func parseExpiresIn(s string) time.Duration {
	secs, err := strconv.Atoi(s)
	if err != nil || secs <= 0 {
		return time.Hour
	}
	return time.Duration(secs) * time.Second
}

// stripURL removes the request URL from transport errors; it carries API keys and tokens.
func stripURL(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%s: %w", ue.Op, ue.Err)
	}
	return err
}
