package store

import "context"

// SetCall records one SetBool invocation.
type SetCall struct {
	Path  string
	Value bool
}

// FakeStore is an in-memory Store that records calls for test assertions.
type FakeStore struct {
	// Values holds the current value per path. Missing paths read as ErrNoValue.
	Values map[string]bool

	// Sets contains every successful SetBool call.
	Sets []SetCall

	// Gets contains the path of every GetBool call, successful or not.
	Gets []string

	// SetError, if set, will be returned by SetBool.
	SetError error

	// GetError, if set, will be returned by GetBool.
	GetError error

	// SetAttempts counts SetBool calls including failed ones.
	SetAttempts int
}

// NewFakeStore creates an empty FakeStore.
func NewFakeStore() *FakeStore {
	return &FakeStore{Values: make(map[string]bool)}
}

// SetBool stores v at path unless SetError is set.
func (f *FakeStore) SetBool(ctx context.Context, path string, v bool) error {
	f.SetAttempts++
	if f.SetError != nil {
		return writeErr(path, f.SetError)
	}
	if err := ctx.Err(); err != nil {
		return writeErr(path, err)
	}
	f.Values[path] = v
	f.Sets = append(f.Sets, SetCall{Path: path, Value: v})
	return nil
}

// GetBool returns the value at path unless GetError is set.
func (f *FakeStore) GetBool(ctx context.Context, path string) (bool, error) {
	f.Gets = append(f.Gets, path)
	if f.GetError != nil {
		return false, readErr(path, f.GetError)
	}
	if err := ctx.Err(); err != nil {
		return false, readErr(path, err)
	}
	v, ok := f.Values[path]
	if !ok {
		return false, readErr(path, ErrNoValue)
	}
	return v, nil
}

// Calls returns the total number of store calls made.
func (f *FakeStore) Calls() int {
	return f.SetAttempts + len(f.Gets)
}

// Reset clears recorded calls and injected errors but keeps Values.
func (f *FakeStore) Reset() {
	f.Sets = nil
	f.Gets = nil
	f.SetAttempts = 0
	f.SetError = nil
	f.GetError = nil
}
