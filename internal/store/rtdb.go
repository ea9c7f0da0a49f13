package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RTDB talks to the Firebase Realtime Database REST API.
type RTDB struct {
	base   *url.URL
	tokens TokenProvider
	http   *http.Client
}

// NewRTDB creates a client for the database at dbURL. A nil tokens provider sends
// unauthenticated requests (open rules). timeout bounds every request.
func NewRTDB(dbURL string, tokens TokenProvider, timeout time.Duration) (*RTDB, error) {
	u, err := url.Parse(strings.TrimRight(dbURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("database url %q: unsupported scheme %q", dbURL, u.Scheme)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &RTDB{
		base:   u,
		tokens: tokens,
		http:   &http.Client{Timeout: timeout},
	}, nil
}

// SetBool writes v at path with PUT.
func (r *RTDB) SetBool(ctx context.Context, path string, v bool) error {
	if _, err := r.do(ctx, http.MethodPut, path, EncodeBool(v)); err != nil {
		return writeErr(path, err)
	}
	return nil
}

// GetBool reads path and decodes the scalar stored there.
func (r *RTDB) GetBool(ctx context.Context, path string) (bool, error) {
	body, err := r.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return false, readErr(path, err)
	}
	v, err := DecodeBool(body)
	if err != nil {
		return false, readErr(path, err)
	}
	return v, nil
}

func (r *RTDB) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	u := *r.base
	u.Path = u.Path + "/" + cleanPath(path) + ".json"

	if r.tokens != nil {
		tok, err := r.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		q := u.Query()
		q.Set("auth", tok)
		u.RawQuery = q.Encode()
	}

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, stripURL(err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxBody))

	switch {
	case resp.StatusCode == http.StatusOK:
		return b, nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		if r.tokens != nil {
			r.tokens.Invalidate()
		}
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, resp.Status)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: %s", ErrBackendUnavailable, resp.Status)
	default:
		return nil, fmt.Errorf("unexpected status: %s", resp.Status)
	}
}
