package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"retain/internal/archive"
)

// MockResolver is an in-memory file store implementing archive.Resolver.
type MockResolver struct {
	mu    sync.Mutex
	files map[archive.Locator][]byte

	// FailReads makes Open and Exists return an error for every locator,
	// simulating an unreachable storage backend.
	FailReads bool
}

// NewMockResolver creates an empty mock resolver.
func NewMockResolver() *MockResolver {
	return &MockResolver{files: make(map[archive.Locator][]byte)}
}

// AddFile stores content under the locator.
func (m *MockResolver) AddFile(loc archive.Locator, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[loc] = content
}

// RemoveFile drops the locator, simulating external deletion.
func (m *MockResolver) RemoveFile(loc archive.Locator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, loc)
}

// Content returns the stored bytes and whether the locator exists.
func (m *MockResolver) Content(loc archive.Locator) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.files[loc]
	return b, ok
}

func (m *MockResolver) Exists(_ context.Context, loc archive.Locator) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailReads {
		return false, fmt.Errorf("storage unreachable")
	}
	_, ok := m.files[loc]
	return ok, nil
}

func (m *MockResolver) Open(_ context.Context, loc archive.Locator) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailReads {
		return nil, fmt.Errorf("storage unreachable")
	}
	content, ok := m.files[loc]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", loc)
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

func (m *MockResolver) Delete(_ context.Context, loc archive.Locator) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, loc)
	return nil
}

var _ archive.Resolver = (*MockResolver)(nil)
