package dashboard

import (
	"github.com/harms/harms/internal/domain/resource"
	"github.com/harms/harms/internal/domain/scheduling"
)

const (
	upcomingDays  = 7
	upcomingLimit = 5
)

type AppointmentCounts struct {
	Total     int `json:"total"`
	Scheduled int `json:"scheduled"`
	Confirmed int `json:"confirmed"`
	Completed int `json:"completed"`
	Cancelled int `json:"cancelled"`
	NoShow    int `json:"no_show"`
}

// Stats is the dashboard payload. Resources and Occupancy are set for admins
// only.
type Stats struct {
	Appointments         AppointmentCounts             `json:"appointments"`
	UpcomingAppointments []*scheduling.AppointmentView `json:"upcoming_appointments"`
	Resources            *resource.Summary             `json:"resources,omitempty"`
	Occupancy            *resource.Occupancy           `json:"occupancy,omitempty"`
}

type NotificationType string

const (
	NotifyAppointmentReminder NotificationType = "appointment_reminder"
	NotifyLowStock            NotificationType = "low_stock"
	NotifyExpired             NotificationType = "expired"
)

type Notification struct {
	Type     NotificationType  `json:"type"`
	Title    string            `json:"title"`
	Message  string            `json:"message"`
	Date     string            `json:"date"`
	Priority resource.Priority `json:"priority"`
}
