package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/harms/harms/internal/domain/identity"
	"github.com/harms/harms/internal/domain/resource"
	"github.com/harms/harms/internal/domain/scheduling"
	"github.com/harms/harms/internal/platform/auth"
)

const dateLayout = "2006-01-02"

// Appointments is the read side of the scheduler used here.
type Appointments interface {
	StatusCounts(ctx context.Context, viewer auth.Principal) (map[scheduling.Status]int, error)
	Upcoming(ctx context.Context, viewer auth.Principal, from, to time.Time, limit int) ([]*scheduling.AppointmentView, error)
	OnDate(ctx context.Context, viewer auth.Principal, day time.Time) ([]*scheduling.Appointment, error)
}

type Inventory interface {
	Summary(ctx context.Context, today time.Time) (*resource.Summary, error)
	Alerts(ctx context.Context, today time.Time) ([]resource.Alert, error)
}

type People interface {
	GetMany(ctx context.Context, ids []int64) (map[int64]*identity.User, error)
}

type Service struct {
	appts     Appointments
	inventory Inventory
	people    People
	logger    zerolog.Logger
}

func NewService(appts Appointments, inventory Inventory, people People, logger zerolog.Logger) *Service {
	return &Service{appts: appts, inventory: inventory, people: people, logger: logger}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func (s *Service) Stats(ctx context.Context, viewer auth.Principal, today time.Time) (*Stats, error) {
	counts, err := s.appts.StatusCounts(ctx, viewer)
	if err != nil {
		return nil, err
	}
	st := &Stats{Appointments: AppointmentCounts{
		Scheduled: counts[scheduling.StatusScheduled],
		Confirmed: counts[scheduling.StatusConfirmed],
		Completed: counts[scheduling.StatusCompleted],
		Cancelled: counts[scheduling.StatusCancelled],
		NoShow:    counts[scheduling.StatusNoShow],
	}}
	for _, n := range counts {
		st.Appointments.Total += n
	}

	day := startOfDay(today)
	upcoming, err := s.appts.Upcoming(ctx, viewer, day, day.AddDate(0, 0, upcomingDays), upcomingLimit)
	if err != nil {
		return nil, err
	}
	if upcoming == nil {
		upcoming = []*scheduling.AppointmentView{}
	}
	st.UpcomingAppointments = upcoming

	if viewer.Is(auth.RoleAdmin) {
		sum, err := s.inventory.Summary(ctx, day)
		if err != nil {
			return nil, err
		}
		occupancy := sum.Occupancy
		st.Resources = sum
		st.Occupancy = &occupancy
	}
	return st, nil
}

// Notifications builds reminders for tomorrow's appointments and, for
// admins, inventory warnings.
func (s *Service) Notifications(ctx context.Context, viewer auth.Principal, now time.Time) ([]Notification, error) {
	out := []Notification{}

	if viewer.Is(auth.RolePatient) || viewer.Is(auth.RoleDoctor) {
		reminders, err := s.reminders(ctx, viewer, startOfDay(now).AddDate(0, 0, 1))
		if err != nil {
			return nil, err
		}
		out = append(out, reminders...)
	}

	if viewer.Is(auth.RoleAdmin) {
		alerts, err := s.inventory.Alerts(ctx, startOfDay(now))
		if err != nil {
			return nil, err
		}
		stamp := now.Format(time.RFC3339)
		for _, a := range alerts {
			n := Notification{Date: stamp, Priority: resource.PriorityHigh}
			switch a.Type {
			case resource.AlertLowStock:
				n.Type = NotifyLowStock
				n.Title = "Low Stock Alert"
				n.Message = fmt.Sprintf("%s is running low. Available: %d", a.ResourceName, deref(a.AvailableQuantity))
			case resource.AlertExpired:
				n.Type = NotifyExpired
				n.Title = "Expired Medicine"
				n.Message = fmt.Sprintf("%s has expired on %s", a.ResourceName, derefStr(a.ExpiryDate))
			}
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *Service) reminders(ctx context.Context, viewer auth.Principal, day time.Time) ([]Notification, error) {
	appts, err := s.appts.OnDate(ctx, viewer, day)
	if err != nil {
		return nil, err
	}
	if len(appts) == 0 {
		return nil, nil
	}
	ids := make([]int64, 0, len(appts))
	for _, a := range appts {
		if viewer.Is(auth.RolePatient) {
			ids = append(ids, a.DoctorID)
		} else {
			ids = append(ids, a.PatientID)
		}
	}
	people, err := s.people.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]Notification, 0, len(appts))
	for _, a := range appts {
		var with string
		if viewer.Is(auth.RolePatient) {
			with = "Dr. Unknown"
			if d, ok := people[a.DoctorID]; ok {
				with = "Dr. " + d.LastName
			}
		} else {
			with = "Unknown"
			if p, ok := people[a.PatientID]; ok {
				with = p.FullName()
			}
		}
		out = append(out, Notification{
			Type:     NotifyAppointmentReminder,
			Title:    "Upcoming Appointment",
			Message:  fmt.Sprintf("You have an appointment with %s tomorrow at %s", with, a.Time),
			Date:     a.Date,
			Priority: resource.PriorityMedium,
		})
	}
	return out, nil
}

func deref(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func derefStr(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
