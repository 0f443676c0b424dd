package resource

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/harms/harms/internal/platform/apperror"
	"github.com/harms/harms/internal/platform/auth"
	"github.com/harms/harms/pkg/pagination"
)

const dateLayout = "2006-01-02"

var (
	ErrInvalidType       = apperror.Validation("invalid resource type, must be bed, medicine, or equipment")
	ErrInvalidExpiry     = apperror.Validation("invalid expiry_date format, use YYYY-MM-DD")
	ErrInvalidTxType     = apperror.Validation("invalid transaction type, must be in, out, or adjustment")
	ErrInvalidQuantity   = apperror.Validation("quantity must be greater than 0")
	ErrZeroAdjustment    = apperror.Validation("adjustment quantity must not be 0")
	ErrInsufficientStock = apperror.Validation("insufficient stock")
)

// EventRecorder counts domain events.
type EventRecorder interface {
	Record(domain, event string)
}

type nopRecorder struct{}

func (nopRecorder) Record(string, string) {}

type Service struct {
	resources ResourceRepository
	txs       TransactionRepository
	events    EventRecorder
	logger    zerolog.Logger
}

func NewService(resources ResourceRepository, txs TransactionRepository, logger zerolog.Logger) *Service {
	return &Service{resources: resources, txs: txs, events: nopRecorder{}, logger: logger}
}

func (s *Service) SetEventRecorder(r EventRecorder) {
	if r != nil {
		s.events = r
	}
}

func validDate(v string) bool {
	_, err := time.Parse(dateLayout, v)
	return err == nil
}

func trimPtr(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*Resource, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperror.Validation("name is required")
	}
	if req.Type == "" {
		return nil, apperror.Validation("resource_type is required")
	}
	if !req.Type.Valid() {
		return nil, ErrInvalidType
	}
	if req.TotalQuantity < 0 {
		return nil, apperror.Validation("total_quantity must not be negative")
	}
	r := &Resource{
		Name:              name,
		Type:              req.Type,
		Category:          trimPtr(req.Category),
		TotalQuantity:     req.TotalQuantity,
		AvailableQuantity: req.TotalQuantity,
		Unit:              trimPtr(req.Unit),
		Description:       trimPtr(req.Description),
		Location:          trimPtr(req.Location),
		ExpiryDate:        trimPtr(req.ExpiryDate),
		MinThreshold:      DefaultMinThreshold,
		IsActive:          true,
	}
	if req.AvailableQuantity != nil {
		r.AvailableQuantity = *req.AvailableQuantity
	}
	if req.MinThreshold != nil {
		r.MinThreshold = *req.MinThreshold
	}
	if req.IsActive != nil {
		r.IsActive = *req.IsActive
	}
	if r.ExpiryDate != nil && !validDate(*r.ExpiryDate) {
		return nil, ErrInvalidExpiry
	}
	if err := s.resources.Create(ctx, r); err != nil {
		return nil, err
	}
	s.events.Record("resource", "created")
	s.logger.Info().Int64("resource_id", r.ID).Str("type", string(r.Type)).Int("total", r.TotalQuantity).
		Msg("resource created")
	return r, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Resource, error) {
	return s.resources.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter, p pagination.Params) ([]*Resource, int, error) {
	if f.Type != "" && !f.Type.Valid() {
		return nil, 0, ErrInvalidType
	}
	return s.resources.List(ctx, f, p.Limit(), p.Offset())
}

func (s *Service) Update(ctx context.Context, id int64, req UpdateRequest) (*Resource, error) {
	r, err := s.resources.GetForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, apperror.Validation("name must not be empty")
		}
		r.Name = name
	}
	if req.TotalQuantity != nil {
		if *req.TotalQuantity < 0 {
			return nil, apperror.Validation("total_quantity must not be negative")
		}
		r.TotalQuantity = *req.TotalQuantity
	}
	if req.ExpiryDate != nil {
		r.ExpiryDate = trimPtr(req.ExpiryDate)
		if r.ExpiryDate != nil && !validDate(*r.ExpiryDate) {
			return nil, ErrInvalidExpiry
		}
	}
	if req.Category != nil {
		r.Category = trimPtr(req.Category)
	}
	if req.Unit != nil {
		r.Unit = trimPtr(req.Unit)
	}
	if req.Description != nil {
		r.Description = trimPtr(req.Description)
	}
	if req.Location != nil {
		r.Location = trimPtr(req.Location)
	}
	if req.MinThreshold != nil {
		r.MinThreshold = *req.MinThreshold
	}
	if req.IsActive != nil {
		r.IsActive = *req.IsActive
	}
	if err := s.resources.Update(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// -- Ledger --

func newTransaction(resourceID int64, actor auth.Principal, req TransactionRequest) (*Transaction, error) {
	if !req.Type.Valid() {
		return nil, ErrInvalidTxType
	}
	switch {
	case req.Type == TxAdjustment && req.Quantity == 0:
		return nil, ErrZeroAdjustment
	case req.Type != TxAdjustment && req.Quantity <= 0:
		return nil, ErrInvalidQuantity
	}
	return &Transaction{
		ResourceID:  resourceID,
		Type:        req.Type,
		Quantity:    req.Quantity,
		Reason:      trimPtr(req.Reason),
		ReferenceID: trimPtr(req.ReferenceID),
		CreatedBy:   actor.UserID,
	}, nil
}

// RecordTransaction appends a ledger entry. Available stock is not changed.
func (s *Service) RecordTransaction(ctx context.Context, actor auth.Principal, resourceID int64, req TransactionRequest) (*Transaction, error) {
	t, err := newTransaction(resourceID, actor, req)
	if err != nil {
		return nil, err
	}
	if _, err := s.resources.GetByID(ctx, resourceID); err != nil {
		return nil, err
	}
	if err := s.txs.CreateTransaction(ctx, t); err != nil {
		return nil, err
	}
	s.events.Record("resource", "transaction_"+string(t.Type))
	s.logger.Info().Int64("resource_id", resourceID).Str("type", string(t.Type)).Int("quantity", t.Quantity).
		Int64("by", actor.UserID).Msg("resource transaction recorded")
	return t, nil
}

// AdjustStock appends a ledger entry and applies its signed quantity to
// available stock in the same unit of work.
func (s *Service) AdjustStock(ctx context.Context, actor auth.Principal, resourceID int64, req TransactionRequest) (*Transaction, *Resource, error) {
	t, err := newTransaction(resourceID, actor, req)
	if err != nil {
		return nil, nil, err
	}
	r, err := s.resources.GetForUpdate(ctx, resourceID)
	if err != nil {
		return nil, nil, err
	}
	next := r.AvailableQuantity + t.Signed()
	if next < 0 {
		return nil, nil, ErrInsufficientStock
	}
	if err := s.txs.CreateTransaction(ctx, t); err != nil {
		return nil, nil, err
	}
	r.AvailableQuantity = next
	if err := s.resources.Update(ctx, r); err != nil {
		return nil, nil, err
	}
	s.events.Record("resource", "stock_"+string(t.Type))
	s.logger.Info().Int64("resource_id", resourceID).Str("type", string(t.Type)).Int("quantity", t.Quantity).
		Int("available", r.AvailableQuantity).Int64("by", actor.UserID).Msg("resource stock adjusted")
	return t, r, nil
}

func (s *Service) ListTransactions(ctx context.Context, resourceID int64, p pagination.Params) ([]*Transaction, int, error) {
	if _, err := s.resources.GetByID(ctx, resourceID); err != nil {
		return nil, 0, err
	}
	return s.txs.ListTransactions(ctx, resourceID, p.Limit(), p.Offset())
}

// Reconcile reports how far stored available stock has drifted from the
// ledger balance.
func (s *Service) Reconcile(ctx context.Context, id int64) (*Reconciliation, error) {
	r, err := s.resources.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	net, count, err := s.txs.LedgerNet(ctx, id)
	if err != nil {
		return nil, err
	}
	balance := r.TotalQuantity + net
	return &Reconciliation{
		ResourceID:        r.ID,
		TotalQuantity:     r.TotalQuantity,
		AvailableQuantity: r.AvailableQuantity,
		LedgerNet:         net,
		LedgerBalance:     balance,
		Drift:             r.AvailableQuantity - balance,
		Transactions:      count,
	}, nil
}

// -- Alerts --

// Alerts lists low-stock resources followed by expired medicines. Both
// consider active resources only.
func (s *Service) Alerts(ctx context.Context, today time.Time) ([]Alert, error) {
	low, err := s.resources.FindLowStock(ctx)
	if err != nil {
		return nil, err
	}
	expired, err := s.resources.FindExpiredMedicines(ctx, today.Format(dateLayout))
	if err != nil {
		return nil, err
	}
	alerts := make([]Alert, 0, len(low)+len(expired))
	for _, r := range low {
		available, threshold := r.AvailableQuantity, r.MinThreshold
		priority := PriorityMedium
		if available == 0 {
			priority = PriorityHigh
		}
		alerts = append(alerts, Alert{
			Type:              AlertLowStock,
			ResourceID:        r.ID,
			ResourceName:      r.Name,
			AvailableQuantity: &available,
			MinThreshold:      &threshold,
			Priority:          priority,
		})
	}
	for _, r := range expired {
		alerts = append(alerts, Alert{
			Type:         AlertExpired,
			ResourceID:   r.ID,
			ResourceName: r.Name,
			ExpiryDate:   r.ExpiryDate,
			Priority:     PriorityHigh,
		})
	}
	return alerts, nil
}

// Summary aggregates inventory for the admin dashboard.
func (s *Service) Summary(ctx context.Context, today time.Time) (*Summary, error) {
	sum, err := s.resources.Stats(ctx, today.Format(dateLayout))
	if err != nil {
		return nil, err
	}
	o := &sum.Occupancy
	o.AvailableBeds = o.TotalBeds - o.OccupiedBeds
	o.OccupancyRate = OccupancyRate(o.OccupiedBeds, o.TotalBeds)
	return sum, nil
}

// OccupancyRate is occupied/total as a percentage rounded to 2 places, or 0
// when there are no beds.
func OccupancyRate(occupied, total int) float64 {
	if total == 0 {
		return 0
	}
	rate := decimal.NewFromInt(int64(occupied)).
		Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromInt(int64(total)), 2)
	return rate.InexactFloat64()
}
