package scheduling

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/harms/harms/internal/domain/identity"
	"github.com/harms/harms/internal/platform/apperror"
	"github.com/harms/harms/internal/platform/auth"
	"github.com/harms/harms/internal/platform/db"
	"github.com/harms/harms/internal/platform/notification"
	"github.com/harms/harms/pkg/pagination"
)

var (
	ErrBookingRole       = apperror.Forbidden("only patients can book appointments")
	ErrInvalidDoctor     = apperror.Validation("invalid doctor")
	ErrInvalidDate       = apperror.Validation("invalid date format, use YYYY-MM-DD")
	ErrInvalidTime       = apperror.Validation("invalid time format, use HH:MM")
	ErrInvalidStatus     = apperror.Validation("invalid status")
	ErrInvalidTransition = apperror.Validation("invalid status transition")
	ErrSlotTaken         = apperror.Conflict("doctor already has an appointment at this time")
	ErrAccessDenied      = apperror.Forbidden("access denied")
)

// UserDirectory resolves the people an appointment refers to.
type UserDirectory interface {
	Lookup(ctx context.Context, id int64) (*identity.User, error)
	GetMany(ctx context.Context, ids []int64) (map[int64]*identity.User, error)
	ListDoctors(ctx context.Context) ([]identity.DoctorSummary, error)
}

// EventRecorder counts domain events.
type EventRecorder interface {
	Record(domain, event string)
}

type nopRecorder struct{}

func (nopRecorder) Record(string, string) {}

type Options struct {
	SlotPolicy     SlotPolicy
	ConflictPolicy ConflictPolicy
}

type Service struct {
	appts  AppointmentRepository
	users  UserDirectory
	opts   Options
	mailer *notification.Mailer
	events EventRecorder
	logger zerolog.Logger
}

func NewService(appts AppointmentRepository, users UserDirectory, opts Options, logger zerolog.Logger) *Service {
	if opts.SlotPolicy == "" {
		opts.SlotPolicy = SlotPolicyExact
	}
	if opts.ConflictPolicy == "" {
		opts.ConflictPolicy = ConflictPolicyReject
	}
	return &Service{appts: appts, users: users, opts: opts, events: nopRecorder{}, logger: logger}
}

// SetMailer enables booking and status email to patients.
func (s *Service) SetMailer(m *notification.Mailer) { s.mailer = m }

func (s *Service) SetEventRecorder(r EventRecorder) {
	if r != nil {
		s.events = r
	}
}

func validateDate(d string) error {
	if _, err := time.Parse(dateLayout, d); err != nil {
		return ErrInvalidDate
	}
	return nil
}

// scope restricts f to what viewer may see.
func scope(viewer auth.Principal, f Filter) Filter {
	switch viewer.Role {
	case auth.RolePatient:
		f.PatientID = viewer.UserID
	case auth.RoleDoctor:
		f.DoctorID = viewer.UserID
	}
	return f
}

func canView(viewer auth.Principal, a *Appointment) bool {
	switch viewer.Role {
	case auth.RoleAdmin:
		return true
	case auth.RolePatient:
		return a.PatientID == viewer.UserID
	case auth.RoleDoctor:
		return a.DoctorID == viewer.UserID
	}
	return false
}

// -- Booking --

func (s *Service) Create(ctx context.Context, actor auth.Principal, req CreateRequest) (*AppointmentView, error) {
	if !actor.Is(auth.RolePatient) && !actor.Is(auth.RoleAdmin) {
		return nil, ErrBookingRole
	}
	if req.DoctorID <= 0 {
		return nil, apperror.Validation("doctor_id is required")
	}
	if strings.TrimSpace(req.Date) == "" {
		return nil, apperror.Validation("appointment_date is required")
	}
	if strings.TrimSpace(req.Time) == "" {
		return nil, apperror.Validation("appointment_time is required")
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, apperror.Validation("reason is required")
	}
	if err := validateDate(req.Date); err != nil {
		return nil, err
	}
	clock, err := NormalizeTime(req.Time)
	if err != nil {
		return nil, ErrInvalidTime
	}
	duration := DefaultDurationMinutes
	if req.DurationMinutes != nil {
		duration = *req.DurationMinutes
	}
	if duration <= 0 {
		return nil, apperror.Validation("duration_minutes must be greater than 0")
	}

	doctor, err := s.users.Lookup(ctx, req.DoctorID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, ErrInvalidDoctor
		}
		return nil, err
	}
	if doctor.Role != auth.RoleDoctor || !doctor.IsActive {
		return nil, ErrInvalidDoctor
	}

	patientID := actor.UserID
	if actor.Is(auth.RoleAdmin) && req.PatientID != nil && *req.PatientID != actor.UserID {
		patientID = *req.PatientID
		if _, err := s.users.Lookup(ctx, patientID); err != nil {
			if errors.Is(err, identity.ErrNotFound) {
				return nil, apperror.NotFound("patient not found")
			}
			return nil, err
		}
	}

	if s.opts.ConflictPolicy == ConflictPolicyReject {
		existing, err := s.appts.Find(ctx, Filter{DoctorID: doctor.ID, Date: req.Date, Statuses: BlockingStatuses}, 0)
		if err != nil {
			return nil, err
		}
		if c := Conflicts(s.opts.SlotPolicy, existing, clock, duration); len(c) > 0 {
			s.events.Record("scheduling", "conflict_rejected")
			s.logger.Info().Int64("doctor_id", doctor.ID).Str("date", req.Date).Str("time", clock).
				Int64("existing_id", c[0].ID).Msg("booking conflict rejected")
			return nil, ErrSlotTaken
		}
	}

	a := &Appointment{
		PatientID:       patientID,
		DoctorID:        doctor.ID,
		Date:            req.Date,
		Time:            clock,
		DurationMinutes: duration,
		Status:          StatusScheduled,
		Reason:          reason,
		Notes:           trimPtr(req.Notes),
	}
	if err := s.appts.Create(ctx, a); err != nil {
		return nil, err
	}
	s.events.Record("scheduling", "booked")
	s.logger.Info().Int64("appointment_id", a.ID).Int64("patient_id", a.PatientID).
		Int64("doctor_id", a.DoctorID).Str("date", a.Date).Str("time", a.Time).Msg("appointment booked")

	view := s.view(ctx, a)
	s.notify(ctx, a, notification.TemplateAppointmentBooked)
	return view, nil
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

// notify emails the patient once the surrounding transaction commits.
// Failures are logged only.
func (s *Service) notify(ctx context.Context, a *Appointment, templateID string) {
	if s.mailer == nil {
		return
	}
	users, err := s.users.GetMany(ctx, []int64{a.PatientID, a.DoctorID})
	if err != nil {
		s.logger.Warn().Err(err).Int64("appointment_id", a.ID).Msg("appointment email skipped")
		return
	}
	patient, ok := users[a.PatientID]
	if !ok {
		return
	}
	doctorName := unknownName
	if d, ok := users[a.DoctorID]; ok {
		doctorName = d.LastName
	}
	data := map[string]string{
		"patient_name": patient.FullName(),
		"doctor_name":  doctorName,
		"date":         a.Date,
		"time":         a.Time,
		"reason":       a.Reason,
		"status":       string(a.Status),
	}
	to, apptID := patient.Email, a.ID
	db.AfterCommit(ctx, func(ctx context.Context) {
		if err := s.mailer.Send(ctx, to, templateID, data); err != nil {
			s.logger.Warn().Err(err).Int64("appointment_id", apptID).Str("template", templateID).Msg("appointment email failed")
		}
	})
}

// -- Slots --

// ListAvailableSlots returns the doctor's free candidate slots on date. An
// unknown doctor has every slot free.
func (s *Service) ListAvailableSlots(ctx context.Context, doctorID int64, date string) ([]string, error) {
	if doctorID <= 0 {
		return nil, apperror.Validation("doctor_id and date are required")
	}
	if strings.TrimSpace(date) == "" {
		return nil, apperror.Validation("doctor_id and date are required")
	}
	if err := validateDate(date); err != nil {
		return nil, err
	}
	appts, err := s.appts.Find(ctx, Filter{DoctorID: doctorID, Date: date, Statuses: BlockingStatuses}, 0)
	if err != nil {
		return nil, err
	}
	return AvailableSlots(s.opts.SlotPolicy, appts), nil
}

// -- Queries --

func (s *Service) List(ctx context.Context, viewer auth.Principal, lf ListFilter, p pagination.Params) ([]*AppointmentView, int, error) {
	f := Filter{}
	if lf.Status != "" {
		if !lf.Status.Valid() {
			return nil, 0, ErrInvalidStatus
		}
		f.Status = lf.Status
	}
	if lf.Date != "" {
		if err := validateDate(lf.Date); err != nil {
			return nil, 0, err
		}
		f.Date = lf.Date
	}
	items, total, err := s.appts.List(ctx, scope(viewer, f), p.Limit(), p.Offset())
	if err != nil {
		return nil, 0, err
	}
	views, err := s.views(ctx, items)
	if err != nil {
		return nil, 0, err
	}
	return views, total, nil
}

func (s *Service) Get(ctx context.Context, viewer auth.Principal, id int64) (*AppointmentView, error) {
	a, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(viewer, a) {
		return nil, ErrAccessDenied
	}
	return s.view(ctx, a), nil
}

// Lookup returns an appointment without a visibility check, for other domains.
func (s *Service) Lookup(ctx context.Context, id int64) (*Appointment, error) {
	return s.appts.GetByID(ctx, id)
}

func (s *Service) ListDoctors(ctx context.Context) ([]identity.DoctorSummary, error) {
	return s.users.ListDoctors(ctx)
}

// StatusCounts counts the viewer's appointments per status. Every status is
// present in the result.
func (s *Service) StatusCounts(ctx context.Context, viewer auth.Principal) (map[Status]int, error) {
	counts, err := s.appts.CountByStatus(ctx, scope(viewer, Filter{}))
	if err != nil {
		return nil, err
	}
	out := make(map[Status]int, len(AllStatuses))
	for _, st := range AllStatuses {
		out[st] = counts[st]
	}
	return out, nil
}

// Upcoming returns up to limit scheduled or confirmed appointments dated
// within [from, to], soonest first.
func (s *Service) Upcoming(ctx context.Context, viewer auth.Principal, from, to time.Time, limit int) ([]*AppointmentView, error) {
	f := scope(viewer, Filter{
		Statuses: BlockingStatuses,
		DateFrom: from.Format(dateLayout),
		DateTo:   to.Format(dateLayout),
	})
	items, err := s.appts.Find(ctx, f, limit)
	if err != nil {
		return nil, err
	}
	return s.views(ctx, items)
}

// OnDate returns the viewer's scheduled or confirmed appointments on day.
func (s *Service) OnDate(ctx context.Context, viewer auth.Principal, day time.Time) ([]*Appointment, error) {
	return s.appts.Find(ctx, scope(viewer, Filter{Statuses: BlockingStatuses, Date: day.Format(dateLayout)}), 0)
}

// -- Lifecycle --

// Transition moves an appointment to a new status. Patients may only cancel
// their own appointments; doctors may move their own; admins may move any.
func (s *Service) Transition(ctx context.Context, actor auth.Principal, id int64, to Status, notes *string) (*AppointmentView, error) {
	if !to.Valid() {
		return nil, ErrInvalidStatus
	}
	a, err := s.appts.GetForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, a) {
		return nil, ErrAccessDenied
	}
	if actor.Is(auth.RolePatient) && to != StatusCancelled {
		return nil, apperror.Forbidden("patients may only cancel appointments")
	}
	if !CanTransition(a.Status, to) {
		return nil, ErrInvalidTransition
	}

	from := a.Status
	a.Status = to
	if notes != nil {
		a.Notes = trimPtr(notes)
	}
	if err := s.appts.UpdateStatus(ctx, a); err != nil {
		return nil, err
	}
	s.events.Record("scheduling", "status_"+string(to))
	s.logger.Info().Int64("appointment_id", a.ID).Str("from", string(from)).Str("to", string(to)).
		Int64("by", actor.UserID).Msg("appointment status changed")

	view := s.view(ctx, a)
	s.notify(ctx, a, notification.TemplateAppointmentStatus)
	return view, nil
}

// -- Views --

func (s *Service) views(ctx context.Context, items []*Appointment) ([]*AppointmentView, error) {
	seen := make(map[int64]bool)
	var ids []int64
	for _, a := range items {
		for _, id := range []int64{a.PatientID, a.DoctorID} {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	users, err := s.users.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]*AppointmentView, 0, len(items))
	for _, a := range items {
		out = append(out, &AppointmentView{
			Appointment: a,
			PatientName: displayName(users, a.PatientID),
			DoctorName:  displayName(users, a.DoctorID),
		})
	}
	return out, nil
}

// view names a single appointment. A lookup failure degrades to "Unknown".
func (s *Service) view(ctx context.Context, a *Appointment) *AppointmentView {
	views, err := s.views(ctx, []*Appointment{a})
	if err != nil {
		s.logger.Warn().Err(err).Int64("appointment_id", a.ID).Msg("resolve appointment names")
		return &AppointmentView{Appointment: a, PatientName: unknownName, DoctorName: unknownName}
	}
	return views[0]
}

func displayName(users map[int64]*identity.User, id int64) string {
	if u, ok := users[id]; ok {
		return u.FullName()
	}
	return unknownName
}
