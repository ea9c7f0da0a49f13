// Package store provides key-path access to the remote boolean mailbox.
// Each backend (Firebase RTDB, MQTT retained topics, DynamoDB) implements Store;
// the fake implementation allows testing without a network.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Store reads and writes single boolean values at key paths.
// Every call is a fallible remote operation bounded by ctx.
type Store interface {
	// SetBool writes v at path.
	SetBool(ctx context.Context, path string, v bool) error

	// GetBool reads the value at path.
	GetBool(ctx context.Context, path string) (bool, error)
}

var (
	ErrNoValue            = errors.New("no value at path")
	ErrMalformed          = errors.New("malformed value")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrNotConnected       = errors.New("not connected")
)

// Operation names carried by OpError.
const (
	OpWrite = "write"
	OpRead  = "read"
)

// OpError records a failed store call and the path it targeted.
type OpError struct {
	Op   string
	Path string
	Err  error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

func writeErr(path string, err error) error {
	return &OpError{Op: OpWrite, Path: path, Err: err}
}

func readErr(path string, err error) error {
	return &OpError{Op: OpRead, Path: path, Err: err}
}

// cleanPath strips surrounding slashes so "bool", "/bool" and "bool/" address the same key.
func cleanPath(path string) string {
	return strings.Trim(path, "/")
}
