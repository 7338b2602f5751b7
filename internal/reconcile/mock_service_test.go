package reconcile

import (
	"context"
	"sync"

	"github.com/Veraticus/spice-reconcile/internal/model"
	"github.com/stretchr/testify/mock"
)

// mockService is a testify mock of service.ImportService that also records
// the order in which operations were invoked.
type mockService struct {
	mock.Mock
	calls   []string
	callsMu sync.Mutex
}

func (m *mockService) record(name string) {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()
	m.calls = append(m.calls, name)
}

func (m *mockService) order() []string {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockService) GetBatchTransactions(ctx context.Context, batchID string) ([]model.Transaction, error) {
	m.record("GetBatchTransactions")
	args := m.Called(ctx, batchID)
	txns, _ := args.Get(0).([]model.Transaction)
	return txns, args.Error(1)
}

func (m *mockService) ReviewTransaction(ctx context.Context, batchID, transactionID, category string, status model.ReviewStatus, notes string) (model.Transaction, error) {
	m.record("ReviewTransaction")
	args := m.Called(ctx, batchID, transactionID, category, status, notes)
	txn, _ := args.Get(0).(model.Transaction)
	return txn, args.Error(1)
}

func (m *mockService) DeleteTransaction(ctx context.Context, batchID, transactionID string) error {
	m.record("DeleteTransaction")
	return m.Called(ctx, batchID, transactionID).Error(0)
}

func (m *mockService) FindDuplicates(ctx context.Context, thresholdDays int) ([]model.DuplicateGroup, error) {
	m.record("FindDuplicates")
	args := m.Called(ctx, thresholdDays)
	groups, _ := args.Get(0).([]model.DuplicateGroup)
	return groups, args.Error(1)
}

func (m *mockService) MergeDuplicates(ctx context.Context, keepID string, removeIDs []string) error {
	m.record("MergeDuplicates")
	return m.Called(ctx, keepID, removeIDs).Error(0)
}
