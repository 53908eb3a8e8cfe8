package testing

import (
	"context"
	"sync"
	"time"

	"github.com/aristath/frontier/internal/modules/returns"
)

// MockPriceSource is a mock implementation of analysis.PriceSource for testing
type MockPriceSource struct {
	mu         sync.RWMutex
	table      returns.PriceTable
	categories map[string]string
	err        error

	lastSymbols []string
	lastStart   time.Time
	lastEnd     time.Time
}

// NewMockPriceSource creates a new mock price source serving table
func NewMockPriceSource(table returns.PriceTable) *MockPriceSource {
	return &MockPriceSource{
		table:      table,
		categories: make(map[string]string),
	}
}

// SetCategories sets the categories to return
func (m *MockPriceSource) SetCategories(categories map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories = categories
}

// SetError sets the error to return
func (m *MockPriceSource) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// LoadPriceTable returns the configured table and records the request
func (m *MockPriceSource) LoadPriceTable(_ context.Context, symbols []string, start, end time.Time) (returns.PriceTable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSymbols = append([]string(nil), symbols...)
	m.lastStart = start
	m.lastEnd = end
	if m.err != nil {
		return returns.PriceTable{}, m.err
	}
	return m.table, nil
}

// Categories returns the configured categories
func (m *MockPriceSource) Categories(_ context.Context, _ []string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.categories, nil
}

// LastRequest returns the arguments of the most recent LoadPriceTable call
func (m *MockPriceSource) LastRequest() (symbols []string, start, end time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSymbols, m.lastStart, m.lastEnd
}
