package billing

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/harms/harms/internal/domain/scheduling"
	"github.com/harms/harms/internal/platform/apperror"
	"github.com/harms/harms/internal/platform/auth"
	"github.com/harms/harms/internal/platform/db"
	"github.com/harms/harms/pkg/pagination"
)

var (
	ErrAdminOnly         = apperror.Forbidden("admin access required")
	ErrAccessDenied      = apperror.Forbidden("access denied")
	ErrAlreadyBilled     = apperror.Conflict("billing already exists for this appointment")
	ErrNotPending        = apperror.Validation("billing is not pending")
	ErrNotPaid           = apperror.Validation("only paid billing can be refunded")
	ErrInvalidMethod     = apperror.Validation("invalid payment method")
	ErrInvalidStatus     = apperror.Validation("invalid status")
	ErrAppointmentAbsent = apperror.NotFound("appointment not found")
)

// AppointmentLookup resolves the appointment a bill is raised for.
type AppointmentLookup interface {
	Lookup(ctx context.Context, id int64) (*scheduling.Appointment, error)
}

type Service struct {
	bills  BillingRepository
	appts  AppointmentLookup
	events scheduling.EventRecorder
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(bills BillingRepository, appts AppointmentLookup, logger zerolog.Logger) *Service {
	return &Service{bills: bills, appts: appts, events: nopRecorder{}, logger: logger, now: time.Now}
}

type nopRecorder struct{}

func (nopRecorder) Record(string, string) {}

func (s *Service) SetEventRecorder(r scheduling.EventRecorder) {
	if r != nil {
		s.events = r
	}
}

func requireAdmin(actor auth.Principal) error {
	if !actor.Is(auth.RoleAdmin) {
		return ErrAdminOnly
	}
	return nil
}

// CreateForAppointment raises the single pending bill for an appointment.
func (s *Service) CreateForAppointment(ctx context.Context, actor auth.Principal, appointmentID int64, c Charges) (*Billing, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	appt, err := s.appts.Lookup(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, scheduling.ErrNotFound) {
			return nil, ErrAppointmentAbsent
		}
		return nil, err
	}
	if _, err := s.bills.GetByAppointment(ctx, appt.ID); err == nil {
		return nil, ErrAlreadyBilled
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	b := &Billing{AppointmentID: appt.ID, PatientID: appt.PatientID, Status: StatusPending}
	c.apply(b)
	b.Notes = trimPtr(b.Notes)
	if err := Recompute(b); err != nil {
		return nil, err
	}
	if err := s.bills.Create(ctx, b); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrAlreadyBilled.WithCause(err)
		}
		return nil, err
	}
	s.events.Record("billing", "created")
	s.logger.Info().Int64("billing_id", b.ID).Int64("appointment_id", b.AppointmentID).
		Str("total", b.TotalAmount.StringFixed(moneyPlaces)).Msg("billing created")
	return b, nil
}

// UpdateCharges replaces the money fields of a pending bill.
func (s *Service) UpdateCharges(ctx context.Context, actor auth.Principal, id int64, c Charges) (*Billing, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	b, err := s.bills.GetForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status != StatusPending {
		return nil, ErrNotPending
	}
	c.apply(b)
	b.Notes = trimPtr(b.Notes)
	if err := Recompute(b); err != nil {
		return nil, err
	}
	if err := s.bills.Update(ctx, b); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("billing_id", b.ID).Str("total", b.TotalAmount.StringFixed(moneyPlaces)).Msg("billing charges updated")
	return b, nil
}

func (s *Service) MarkPaid(ctx context.Context, actor auth.Principal, id int64, method PaymentMethod, reference *string) (*Billing, error) {
	if !method.Valid() {
		return nil, ErrInvalidMethod
	}
	return s.transition(ctx, actor, id, StatusPending, StatusPaid, func(b *Billing) {
		paidAt := s.now().UTC()
		b.PaymentMethod = &method
		b.PaymentReference = trimPtr(reference)
		b.PaidAt = &paidAt
	})
}

func (s *Service) Cancel(ctx context.Context, actor auth.Principal, id int64) (*Billing, error) {
	return s.transition(ctx, actor, id, StatusPending, StatusCancelled, nil)
}

func (s *Service) Refund(ctx context.Context, actor auth.Principal, id int64) (*Billing, error) {
	return s.transition(ctx, actor, id, StatusPaid, StatusRefunded, nil)
}

func (s *Service) transition(ctx context.Context, actor auth.Principal, id int64, from, to Status, mutate func(*Billing)) (*Billing, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	b, err := s.bills.GetForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status != from {
		if from == StatusPaid {
			return nil, ErrNotPaid
		}
		return nil, ErrNotPending
	}
	b.Status = to
	if mutate != nil {
		mutate(b)
	}
	if err := Recompute(b); err != nil {
		return nil, err
	}
	if err := s.bills.Update(ctx, b); err != nil {
		return nil, err
	}
	s.events.Record("billing", string(to))
	s.logger.Info().Int64("billing_id", b.ID).Str("from", string(from)).Str("to", string(to)).
		Int64("by", actor.UserID).Msg("billing status changed")
	return b, nil
}

func canView(viewer auth.Principal, b *Billing) bool {
	switch viewer.Role {
	case auth.RoleAdmin:
		return true
	case auth.RolePatient:
		return b.PatientID == viewer.UserID
	}
	return false
}

func (s *Service) Get(ctx context.Context, viewer auth.Principal, id int64) (*Billing, error) {
	if viewer.Is(auth.RoleDoctor) {
		return nil, ErrAccessDenied
	}
	b, err := s.bills.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(viewer, b) {
		return nil, ErrAccessDenied
	}
	return b, nil
}

// List returns the patient's own bills, or every bill for an admin.
func (s *Service) List(ctx context.Context, viewer auth.Principal, status Status, p pagination.Params) ([]*Billing, int, error) {
	var f Filter
	switch viewer.Role {
	case auth.RoleAdmin:
	case auth.RolePatient:
		f.PatientID = viewer.UserID
	default:
		return nil, 0, ErrAccessDenied
	}
	if status != "" {
		if !status.Valid() {
			return nil, 0, ErrInvalidStatus
		}
		f.Status = status
	}
	return s.bills.List(ctx, f, p.Limit(), p.Offset())
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
