package testutil

import (
	"context"
	"fmt"
	"sync"

	"retain/internal/archive"
)

// MockCatalog serves asset metadata from an in-memory map.
type MockCatalog struct {
	mu     sync.Mutex
	assets map[string]*archive.AssetInfo
}

// NewMockCatalog creates an empty mock catalog.
func NewMockCatalog() *MockCatalog {
	return &MockCatalog{assets: make(map[string]*archive.AssetInfo)}
}

// AddAsset registers metadata for assetID.
func (m *MockCatalog) AddAsset(assetID string, info archive.AssetInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets[assetID] = &info
}

// AddDocument registers a file-backed document asset whose locator equals the
// asset ID, the common case in tests.
func (m *MockCatalog) AddDocument(assetID string, size int64) {
	m.AddAsset(assetID, archive.AssetInfo{
		Locator:    archive.Locator(assetID),
		FileBacked: true,
		FileName:   assetID,
		MIMEType:   "application/pdf",
		SizeBytes:  size,
		Category:   archive.CategoryDocument,
	})
}

func (m *MockCatalog) Archivable(_ context.Context, assetID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.assets[assetID]
	if !ok {
		return false, fmt.Errorf("asset %q: %w", assetID, archive.ErrNotFound)
	}
	return info.Category.Archivable(), nil
}

func (m *MockCatalog) Describe(_ context.Context, assetID string) (*archive.AssetInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.assets[assetID]
	if !ok {
		return nil, fmt.Errorf("asset %q: %w", assetID, archive.ErrNotFound)
	}
	cp := *info
	return &cp, nil
}

var _ archive.AssetCatalog = (*MockCatalog)(nil)

// MockOracle reports usage counts from an in-memory map.
type MockOracle struct {
	mu     sync.Mutex
	counts map[archive.Locator]int

	// Err, when set, is returned from every lookup.
	Err error
}

// NewMockOracle creates a mock oracle with no references.
func NewMockOracle() *MockOracle {
	return &MockOracle{counts: make(map[archive.Locator]int)}
}

// SetCount sets the active reference count for the locator.
func (m *MockOracle) SetCount(loc archive.Locator, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[loc] = n
}

func (m *MockOracle) ActiveReferenceCount(_ context.Context, loc archive.Locator) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	return m.counts[loc], nil
}

var _ archive.UsageOracle = (*MockOracle)(nil)
