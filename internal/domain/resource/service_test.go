package resource

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harms/harms/internal/platform/apperror"
	"github.com/harms/harms/internal/platform/auth"
	"github.com/harms/harms/pkg/pagination"
)

// -- Mock Repositories --

type mockStore struct {
	mu        sync.Mutex
	resources map[int64]*Resource
	txs       []*Transaction
	nextID    int64
	nextTxID  int64
}

func newMockStore() *mockStore {
	return &mockStore{resources: make(map[int64]*Resource)}
}

func (m *mockStore) Create(_ context.Context, r *Resource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	r.ID = m.nextID
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	cp := *r
	m.resources[r.ID] = &cp
	return nil
}

func (m *mockStore) GetByID(_ context.Context, id int64) (*Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.resources[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *mockStore) GetForUpdate(ctx context.Context, id int64) (*Resource, error) {
	return m.GetByID(ctx, id)
}

func (m *mockStore) Update(_ context.Context, r *Resource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.resources[r.ID]; !ok {
		return ErrNotFound
	}
	r.UpdatedAt = time.Now()
	cp := *r
	m.resources[r.ID] = &cp
	return nil
}

func (m *mockStore) all(keep func(*Resource) bool) []*Resource {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Resource
	for _, r := range m.resources {
		if keep(r) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *mockStore) List(_ context.Context, f Filter, limit, offset int) ([]*Resource, int, error) {
	out := m.all(func(r *Resource) bool { return f.Type == "" || r.Type == f.Type })
	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

func (m *mockStore) FindLowStock(context.Context) ([]*Resource, error) {
	return m.all(func(r *Resource) bool { return r.IsActive && IsLowStock(r) }), nil
}

func (m *mockStore) FindExpiredMedicines(_ context.Context, today string) ([]*Resource, error) {
	return m.all(func(r *Resource) bool { return r.IsActive && Expired(r, today) }), nil
}

func (m *mockStore) Stats(_ context.Context, today string) (*Summary, error) {
	var s Summary
	for _, r := range m.all(func(*Resource) bool { return true }) {
		s.TotalResources++
		switch r.Type {
		case TypeBed:
			s.TotalBeds++
			s.Occupancy.TotalBeds += r.TotalQuantity
			s.Occupancy.OccupiedBeds += r.TotalQuantity - r.AvailableQuantity
		case TypeMedicine:
			s.TotalMedicines++
		case TypeEquipment:
			s.TotalEquipment++
		}
		if IsLowStock(r) {
			s.LowStockCount++
		}
		if Expired(r, today) {
			s.ExpiredMedicines++
		}
	}
	return &s, nil
}

func (m *mockStore) CreateTransaction(_ context.Context, t *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextTxID++
	t.ID = m.nextTxID
	t.CreatedAt = time.Now()
	cp := *t
	m.txs = append(m.txs, &cp)
	return nil
}

func (m *mockStore) ListTransactions(_ context.Context, resourceID int64, limit, offset int) ([]*Transaction, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Transaction
	for i := len(m.txs) - 1; i >= 0; i-- {
		if m.txs[i].ResourceID == resourceID {
			cp := *m.txs[i]
			out = append(out, &cp)
		}
	}
	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

func (m *mockStore) LedgerNet(_ context.Context, resourceID int64) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	net, count := 0, 0
	for _, t := range m.txs {
		if t.ResourceID == resourceID {
			net += t.Signed()
			count++
		}
	}
	return net, count, nil
}

// -- Fixtures --

var (
	admin = auth.Principal{UserID: 50, Role: auth.RoleAdmin}
	today = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
)

func newTestService() (*Service, *mockStore) {
	store := newMockStore()
	return NewService(store, store, zerolog.Nop()), store
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }
func boolPtr(v bool) *bool    { return &v }

func seedResource(t *testing.T, svc *Service, req CreateRequest) *Resource {
	t.Helper()
	r, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	return r
}

// -- Create / Update --

func TestCreate_Defaults(t *testing.T) {
	svc, _ := newTestService()
	r := seedResource(t, svc, CreateRequest{Name: "  ICU Bed ", Type: TypeBed, TotalQuantity: 12})

	assert.Equal(t, "ICU Bed", r.Name)
	assert.Equal(t, 12, r.AvailableQuantity)
	assert.Equal(t, DefaultMinThreshold, r.MinThreshold)
	assert.True(t, r.IsActive)
	assert.Nil(t, r.ExpiryDate)
}

func TestCreate_Validation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	tests := []struct {
		name string
		req  CreateRequest
	}{
		{"missing name", CreateRequest{Type: TypeBed}},
		{"missing type", CreateRequest{Name: "x"}},
		{"bad type", CreateRequest{Name: "x", Type: "vehicle"}},
		{"negative total", CreateRequest{Name: "x", Type: TypeBed, TotalQuantity: -1}},
		{"bad expiry", CreateRequest{Name: "x", Type: TypeMedicine, ExpiryDate: strPtr("06/01/2024")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.req)
			assert.True(t, apperror.IsKind(err, apperror.KindValidation), "got %v", err)
		})
	}
}

func TestUpdate(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	r := seedResource(t, svc, CreateRequest{Name: "Saline", Type: TypeMedicine, TotalQuantity: 40})

	updated, err := svc.Update(ctx, r.ID, UpdateRequest{
		MinThreshold: intPtr(10),
		ExpiryDate:   strPtr("2025-01-31"),
		IsActive:     boolPtr(false),
	})
	require.NoError(t, err)
	assert.Equal(t, 10, updated.MinThreshold)
	assert.Equal(t, "2025-01-31", *updated.ExpiryDate)
	assert.False(t, updated.IsActive)
	assert.Equal(t, 40, updated.AvailableQuantity)

	updated, err = svc.Update(ctx, r.ID, UpdateRequest{ExpiryDate: strPtr("")})
	require.NoError(t, err)
	assert.Nil(t, updated.ExpiryDate)

	_, err = svc.Update(ctx, r.ID, UpdateRequest{Name: strPtr(" ")})
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))

	_, err = svc.Update(ctx, 999, UpdateRequest{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList_ByType(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	seedResource(t, svc, CreateRequest{Name: "Bed A", Type: TypeBed, TotalQuantity: 2})
	seedResource(t, svc, CreateRequest{Name: "Bed B", Type: TypeBed, TotalQuantity: 2})
	seedResource(t, svc, CreateRequest{Name: "Monitor", Type: TypeEquipment, TotalQuantity: 2})

	items, total, err := svc.List(ctx, Filter{Type: TypeBed}, pagination.New(1, 10))
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, items, 2)

	_, _, err = svc.List(ctx, Filter{Type: "vehicle"}, pagination.New(1, 10))
	assert.ErrorIs(t, err, ErrInvalidType)
}

// -- Ledger --

func TestRecordTransaction_DoesNotMoveStock(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	r := seedResource(t, svc, CreateRequest{Name: "Gloves", Type: TypeEquipment, TotalQuantity: 100})

	tx, err := svc.RecordTransaction(ctx, admin, r.ID, TransactionRequest{Type: TxOut, Quantity: 30, Reason: strPtr("ward 3")})
	require.NoError(t, err)
	assert.Equal(t, admin.UserID, tx.CreatedBy)
	assert.Equal(t, "ward 3", *tx.Reason)

	got, _ := store.GetByID(ctx, r.ID)
	assert.Equal(t, 100, got.AvailableQuantity)

	rec, err := svc.Reconcile(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 70, rec.LedgerBalance)
	assert.Equal(t, 30, rec.Drift)
	assert.Equal(t, 1, rec.Transactions)
}

func TestRecordTransaction_Validation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	r := seedResource(t, svc, CreateRequest{Name: "Gloves", Type: TypeEquipment, TotalQuantity: 100})

	_, err := svc.RecordTransaction(ctx, admin, r.ID, TransactionRequest{Type: "transfer", Quantity: 1})
	assert.ErrorIs(t, err, ErrInvalidTxType)
	_, err = svc.RecordTransaction(ctx, admin, r.ID, TransactionRequest{Type: TxIn, Quantity: 0})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = svc.RecordTransaction(ctx, admin, r.ID, TransactionRequest{Type: TxOut, Quantity: -3})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = svc.RecordTransaction(ctx, admin, r.ID, TransactionRequest{Type: TxAdjustment, Quantity: 0})
	assert.ErrorIs(t, err, ErrZeroAdjustment)
	_, err = svc.RecordTransaction(ctx, admin, 999, TransactionRequest{Type: TxIn, Quantity: 1})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdjustStock_KeepsLedgerBalanced(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	r := seedResource(t, svc, CreateRequest{Name: "Paracetamol", Type: TypeMedicine, TotalQuantity: 50})

	_, got, err := svc.AdjustStock(ctx, admin, r.ID, TransactionRequest{Type: TxOut, Quantity: 20})
	require.NoError(t, err)
	assert.Equal(t, 30, got.AvailableQuantity)

	_, got, err = svc.AdjustStock(ctx, admin, r.ID, TransactionRequest{Type: TxIn, Quantity: 5})
	require.NoError(t, err)
	assert.Equal(t, 35, got.AvailableQuantity)

	_, got, err = svc.AdjustStock(ctx, admin, r.ID, TransactionRequest{Type: TxAdjustment, Quantity: -2})
	require.NoError(t, err)
	assert.Equal(t, 33, got.AvailableQuantity)

	_, _, err = svc.AdjustStock(ctx, admin, r.ID, TransactionRequest{Type: TxOut, Quantity: 34})
	assert.ErrorIs(t, err, ErrInsufficientStock)

	rec, err := svc.Reconcile(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, -17, rec.LedgerNet)
	assert.Equal(t, 33, rec.LedgerBalance)
	assert.Equal(t, 0, rec.Drift)
	assert.Equal(t, 3, rec.Transactions)

	txs, total, err := svc.ListTransactions(ctx, r.ID, pagination.New(1, 2))
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, txs, 2)
	assert.Equal(t, TxAdjustment, txs[0].Type)
}

// -- Alerts / Summary --

func TestAlerts(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	low := seedResource(t, svc, CreateRequest{Name: "Masks", Type: TypeEquipment, TotalQuantity: 10, AvailableQuantity: intPtr(3)})
	empty := seedResource(t, svc, CreateRequest{Name: "Ventilator", Type: TypeEquipment, TotalQuantity: 2, AvailableQuantity: intPtr(0)})
	seedResource(t, svc, CreateRequest{Name: "Retired", Type: TypeEquipment, TotalQuantity: 0, IsActive: boolPtr(false)})
	expired := seedResource(t, svc, CreateRequest{Name: "Insulin", Type: TypeMedicine, TotalQuantity: 40, ExpiryDate: strPtr("2024-05-01")})
	seedResource(t, svc, CreateRequest{Name: "Aspirin", Type: TypeMedicine, TotalQuantity: 40, ExpiryDate: strPtr("2024-06-01")})

	alerts, err := svc.Alerts(ctx, today)
	require.NoError(t, err)
	require.Len(t, alerts, 3)

	byID := map[int64]Alert{}
	for _, a := range alerts {
		byID[a.ResourceID] = a
	}
	assert.Equal(t, AlertLowStock, byID[low.ID].Type)
	assert.Equal(t, PriorityMedium, byID[low.ID].Priority)
	assert.Equal(t, 3, *byID[low.ID].AvailableQuantity)
	assert.Equal(t, PriorityHigh, byID[empty.ID].Priority)
	assert.Equal(t, AlertExpired, byID[expired.ID].Type)
	assert.Equal(t, PriorityHigh, byID[expired.ID].Priority)
	assert.Equal(t, "2024-05-01", *byID[expired.ID].ExpiryDate)
	assert.Equal(t, AlertExpired, alerts[len(alerts)-1].Type)
}

func TestSummary(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	seedResource(t, svc, CreateRequest{Name: "Ward Bed", Type: TypeBed, TotalQuantity: 20, AvailableQuantity: intPtr(15)})
	seedResource(t, svc, CreateRequest{Name: "ICU Bed", Type: TypeBed, TotalQuantity: 4, AvailableQuantity: intPtr(1)})
	seedResource(t, svc, CreateRequest{Name: "Insulin", Type: TypeMedicine, TotalQuantity: 40, ExpiryDate: strPtr("2024-05-01")})

	sum, err := svc.Summary(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.TotalResources)
	assert.Equal(t, 2, sum.TotalBeds)
	assert.Equal(t, 1, sum.TotalMedicines)
	assert.Equal(t, 1, sum.LowStockCount)
	assert.Equal(t, 1, sum.ExpiredMedicines)
	assert.Equal(t, 24, sum.Occupancy.TotalBeds)
	assert.Equal(t, 8, sum.Occupancy.OccupiedBeds)
	assert.Equal(t, 16, sum.Occupancy.AvailableBeds)
	assert.Equal(t, 33.33, sum.Occupancy.OccupancyRate)
}

func TestSummary_NoBeds(t *testing.T) {
	svc, _ := newTestService()
	sum, err := svc.Summary(context.Background(), today)
	require.NoError(t, err)
	assert.Equal(t, 0.0, sum.Occupancy.OccupancyRate)
	assert.Equal(t, 0, sum.TotalResources)
}
