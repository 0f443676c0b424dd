package scheduling

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rs/zerolog"

	"github.com/harms/harms/internal/domain/identity"
	"github.com/harms/harms/internal/platform/apperror"
	"github.com/harms/harms/internal/platform/auth"
	"github.com/harms/harms/internal/platform/db"
	"github.com/harms/harms/internal/platform/notification"
	"github.com/harms/harms/pkg/pagination"
)

// -- Mock Repository --

type mockApptRepo struct {
	mu     sync.Mutex
	store  map[int64]*Appointment
	nextID int64
}

func newMockApptRepo() *mockApptRepo {
	return &mockApptRepo{store: make(map[int64]*Appointment)}
}

func (m *mockApptRepo) Create(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	a.ID = m.nextID
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.store[a.ID] = &cp
	return nil
}

func (m *mockApptRepo) GetByID(_ context.Context, id int64) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockApptRepo) GetForUpdate(ctx context.Context, id int64) (*Appointment, error) {
	return m.GetByID(ctx, id)
}

func (m *mockApptRepo) UpdateStatus(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[a.ID]; !ok {
		return ErrNotFound
	}
	a.UpdatedAt = time.Now()
	cp := *a
	m.store[a.ID] = &cp
	return nil
}

func matches(f Filter, a *Appointment) bool {
	if f.PatientID != 0 && a.PatientID != f.PatientID {
		return false
	}
	if f.DoctorID != 0 && a.DoctorID != f.DoctorID {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if a.Status == s {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	if f.Date != "" && a.Date != f.Date {
		return false
	}
	if f.DateFrom != "" && a.Date < f.DateFrom {
		return false
	}
	if f.DateTo != "" && a.Date > f.DateTo {
		return false
	}
	if f.Time != "" && a.Time != f.Time {
		return false
	}
	return true
}

func (m *mockApptRepo) filtered(f Filter) []*Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Appointment
	for _, a := range m.store {
		if matches(f, a) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out
}

func (m *mockApptRepo) List(_ context.Context, f Filter, limit, offset int) ([]*Appointment, int, error) {
	out := m.filtered(f)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		if out[i].Time != out[j].Time {
			return out[i].Time > out[j].Time
		}
		return out[i].ID > out[j].ID
	})
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

func (m *mockApptRepo) Find(_ context.Context, f Filter, limit int) ([]*Appointment, error) {
	out := m.filtered(f)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		if out[i].Time != out[j].Time {
			return out[i].Time < out[j].Time
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockApptRepo) CountByStatus(_ context.Context, f Filter) (map[Status]int, error) {
	counts := make(map[Status]int)
	for _, a := range m.filtered(f) {
		counts[a.Status]++
	}
	return counts, nil
}

// -- Mock Directory --

type mockDirectory struct {
	users map[int64]*identity.User
}

func (d *mockDirectory) Lookup(_ context.Context, id int64) (*identity.User, error) {
	u, ok := d.users[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return u, nil
}

func (d *mockDirectory) GetMany(_ context.Context, ids []int64) (map[int64]*identity.User, error) {
	out := make(map[int64]*identity.User)
	for _, id := range ids {
		if u, ok := d.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func (d *mockDirectory) ListDoctors(_ context.Context) ([]identity.DoctorSummary, error) {
	var out []identity.DoctorSummary
	for id := int64(1); id <= 100; id++ {
		if u, ok := d.users[id]; ok && u.Role == auth.RoleDoctor && u.IsActive {
			out = append(out, u.DoctorSummary())
		}
	}
	return out, nil
}

type recordedEvents struct {
	mu     sync.Mutex
	events []string
}

func (r *recordedEvents) Record(domain, event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, domain+"/"+event)
}

const (
	patientID         int64 = 1
	otherPatientID    int64 = 2
	doctorID          int64 = 10
	otherDoctorID     int64 = 11
	inactiveDoctorID  int64 = 12
	adminID           int64 = 50
	testDate                = "2024-06-01"
	unknownDoctorID   int64 = 99
	unregisteredParty int64 = 77
)

var (
	patient      = auth.Principal{UserID: patientID, Role: auth.RolePatient}
	otherPatient = auth.Principal{UserID: otherPatientID, Role: auth.RolePatient}
	doctor       = auth.Principal{UserID: doctorID, Role: auth.RoleDoctor}
	otherDoctor  = auth.Principal{UserID: otherDoctorID, Role: auth.RoleDoctor}
	admin        = auth.Principal{UserID: adminID, Role: auth.RoleAdmin}
)

func newDirectory() *mockDirectory {
	return &mockDirectory{users: map[int64]*identity.User{
		patientID:        {ID: patientID, Email: "ada@example.com", FirstName: "Ada", LastName: "Lovelace", Role: auth.RolePatient, IsActive: true},
		otherPatientID:   {ID: otherPatientID, Email: "alan@example.com", FirstName: "Alan", LastName: "Turing", Role: auth.RolePatient, IsActive: true},
		doctorID:         {ID: doctorID, Email: "house@example.com", FirstName: "Gregory", LastName: "House", Role: auth.RoleDoctor, IsActive: true},
		otherDoctorID:    {ID: otherDoctorID, Email: "wilson@example.com", FirstName: "James", LastName: "Wilson", Role: auth.RoleDoctor, IsActive: true},
		inactiveDoctorID: {ID: inactiveDoctorID, Email: "cuddy@example.com", FirstName: "Lisa", LastName: "Cuddy", Role: auth.RoleDoctor, IsActive: false},
		adminID:          {ID: adminID, Email: "admin@example.com", FirstName: "Root", LastName: "Admin", Role: auth.RoleAdmin, IsActive: true},
	}}
}

func newTestService(opts Options) (*Service, *mockApptRepo) {
	repo := newMockApptRepo()
	return NewService(repo, newDirectory(), opts, zerolog.Nop()), repo
}

func booking(time string) CreateRequest {
	return CreateRequest{DoctorID: doctorID, Date: testDate, Time: time, Reason: "checkup"}
}

func assertKind(t *testing.T, err error, kind apperror.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := apperror.KindOf(err); got != kind {
		t.Fatalf("expected %s error, got %s (%v)", kind, got, err)
	}
}

func seed(t *testing.T, repo *mockApptRepo, a Appointment) *Appointment {
	t.Helper()
	if a.DurationMinutes == 0 {
		a.DurationMinutes = DefaultDurationMinutes
	}
	if a.Reason == "" {
		a.Reason = "seeded"
	}
	if err := repo.Create(context.Background(), &a); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return &a
}

// -- Create --

func TestCreate_PatientBooksForSelf(t *testing.T) {
	svc, _ := newTestService(Options{})
	req := booking("10:00")
	other := otherPatientID
	req.PatientID = &other

	v, err := svc.Create(context.Background(), patient, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.PatientID != patientID {
		t.Errorf("expected patient id forced to %d, got %d", patientID, v.PatientID)
	}
	if v.Status != StatusScheduled {
		t.Errorf("expected scheduled, got %s", v.Status)
	}
	if v.DurationMinutes != DefaultDurationMinutes {
		t.Errorf("expected default duration, got %d", v.DurationMinutes)
	}
	if v.ID == 0 || v.CreatedAt.IsZero() {
		t.Error("expected id and timestamps")
	}
	if v.PatientName != "Ada Lovelace" || v.DoctorName != "Gregory House" {
		t.Errorf("unexpected names %q / %q", v.PatientName, v.DoctorName)
	}
}

func TestCreate_AdminChoosesPatient(t *testing.T) {
	svc, _ := newTestService(Options{})
	req := booking("10:00")
	other := otherPatientID
	req.PatientID = &other

	v, err := svc.Create(context.Background(), admin, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.PatientID != otherPatientID {
		t.Errorf("expected admin-supplied patient, got %d", v.PatientID)
	}

	v, err = svc.Create(context.Background(), admin, booking("11:00"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.PatientID != adminID {
		t.Errorf("expected admin's own id when none supplied, got %d", v.PatientID)
	}

	missing := unregisteredParty
	req = booking("12:00")
	req.PatientID = &missing
	_, err = svc.Create(context.Background(), admin, req)
	assertKind(t, err, apperror.KindNotFound)
}

func TestCreate_DoctorCannotBook(t *testing.T) {
	svc, _ := newTestService(Options{})
	_, err := svc.Create(context.Background(), doctor, booking("10:00"))
	if !errors.Is(err, ErrBookingRole) {
		t.Fatalf("expected ErrBookingRole, got %v", err)
	}
}

func TestCreate_InvalidDoctor(t *testing.T) {
	for name, id := range map[string]int64{
		"unknown":     unknownDoctorID,
		"not doctor":  otherPatientID,
		"inactive":    inactiveDoctorID,
		"admin as dr": adminID,
	} {
		t.Run(name, func(t *testing.T) {
			svc, _ := newTestService(Options{})
			req := booking("10:00")
			req.DoctorID = id
			_, err := svc.Create(context.Background(), patient, req)
			if !errors.Is(err, ErrInvalidDoctor) {
				t.Fatalf("expected ErrInvalidDoctor, got %v", err)
			}
		})
	}
}

func TestCreate_Validation(t *testing.T) {
	neg := -5
	zero := 0
	tests := []struct {
		name   string
		mutate func(r *CreateRequest)
	}{
		{"missing doctor", func(r *CreateRequest) { r.DoctorID = 0 }},
		{"missing date", func(r *CreateRequest) { r.Date = "" }},
		{"missing time", func(r *CreateRequest) { r.Time = "" }},
		{"missing reason", func(r *CreateRequest) { r.Reason = "   " }},
		{"bad date", func(r *CreateRequest) { r.Date = "06/01/2024" }},
		{"impossible date", func(r *CreateRequest) { r.Date = "2024-02-30" }},
		{"bad time", func(r *CreateRequest) { r.Time = "10am" }},
		{"negative duration", func(r *CreateRequest) { r.DurationMinutes = &neg }},
		{"zero duration", func(r *CreateRequest) { r.DurationMinutes = &zero }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(Options{})
			req := booking("10:00")
			tt.mutate(&req)
			_, err := svc.Create(context.Background(), patient, req)
			assertKind(t, err, apperror.KindValidation)
		})
	}
}

func TestCreate_AcceptsSecondsInTime(t *testing.T) {
	svc, _ := newTestService(Options{})
	v, err := svc.Create(context.Background(), patient, booking("14:30:00"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Time != "14:30" {
		t.Errorf("expected normalised time 14:30, got %q", v.Time)
	}
}

func TestCreate_RejectPolicyReturnsConflict(t *testing.T) {
	svc, repo := newTestService(Options{ConflictPolicy: ConflictPolicyReject})
	events := &recordedEvents{}
	svc.SetEventRecorder(events)
	seed(t, repo, Appointment{PatientID: otherPatientID, DoctorID: doctorID, Date: testDate, Time: "10:00", Status: StatusConfirmed})

	_, err := svc.Create(context.Background(), patient, booking("10:00"))
	if !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
	assertKind(t, err, apperror.KindConflict)
	if len(events.events) != 1 || events.events[0] != "scheduling/conflict_rejected" {
		t.Errorf("expected conflict event, got %v", events.events)
	}

	// other doctor, other time, and cancelled rows do not conflict
	req := booking("10:00")
	req.DoctorID = otherDoctorID
	if _, err := svc.Create(context.Background(), patient, req); err != nil {
		t.Errorf("other doctor should be free: %v", err)
	}
	if _, err := svc.Create(context.Background(), patient, booking("10:30")); err != nil {
		t.Errorf("10:30 should be free: %v", err)
	}
	seed(t, repo, Appointment{PatientID: otherPatientID, DoctorID: doctorID, Date: testDate, Time: "11:00", Status: StatusCancelled})
	if _, err := svc.Create(context.Background(), patient, booking("11:00")); err != nil {
		t.Errorf("cancelled slot should be free: %v", err)
	}
}

func TestCreate_RejectPolicyWithOverlapSlots(t *testing.T) {
	svc, repo := newTestService(Options{ConflictPolicy: ConflictPolicyReject, SlotPolicy: SlotPolicyOverlap})
	seed(t, repo, Appointment{PatientID: otherPatientID, DoctorID: doctorID, Date: testDate, Time: "09:00", DurationMinutes: 45, Status: StatusScheduled})

	_, err := svc.Create(context.Background(), patient, booking("09:30"))
	if !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected overlap conflict, got %v", err)
	}
	if _, err := svc.Create(context.Background(), patient, booking("10:00")); err != nil {
		t.Errorf("10:00 should be free: %v", err)
	}
}

func TestCreate_AllowPolicyDoubleBooks(t *testing.T) {
	svc, repo := newTestService(Options{ConflictPolicy: ConflictPolicyAllow})
	seed(t, repo, Appointment{PatientID: otherPatientID, DoctorID: doctorID, Date: testDate, Time: "10:00", Status: StatusScheduled})

	if _, err := svc.Create(context.Background(), patient, booking("10:00")); err != nil {
		t.Fatalf("allow policy should not check conflicts: %v", err)
	}
	all, _ := repo.Find(context.Background(), Filter{DoctorID: doctorID, Date: testDate, Time: "10:00"}, 0)
	if len(all) != 2 {
		t.Errorf("expected double booking, got %d rows", len(all))
	}
}

func TestCreate_SendsConfirmationEmail(t *testing.T) {
	svc, _ := newTestService(Options{})
	sender := &notification.MockEmailSender{}
	svc.SetMailer(notification.NewMailer(sender, nil))

	if _, err := svc.Create(context.Background(), patient, booking("10:00")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	calls := sender.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 email, got %d", len(calls))
	}
	if calls[0].To != "ada@example.com" {
		t.Errorf("expected mail to patient, got %s", calls[0].To)
	}
	if !strings.Contains(calls[0].Body, "Dr. House") || !strings.Contains(calls[0].Body, "10:00") {
		t.Errorf("unexpected body %q", calls[0].Body)
	}
}

func TestCreate_NoEmailWhenCommitFails(t *testing.T) {
	svc, _ := newTestService(Options{})
	sender := &notification.MockEmailSender{}
	svc.SetMailer(notification.NewMailer(sender, nil))

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()
	serializable := pgx.TxOptions{IsoLevel: pgx.Serializable}
	mock.ExpectBeginTx(serializable)
	mock.ExpectCommit().WillReturnError(&pgconn.PgError{Code: "40001"})

	err = db.RunInTx(context.Background(), mock, serializable, func(ctx context.Context) error {
		_, err := svc.Create(ctx, patient, booking("10:00"))
		return err
	})
	if !db.IsSerializationFailure(err) {
		t.Fatalf("expected serialization failure, got %v", err)
	}
	if calls := sender.Calls(); len(calls) != 0 {
		t.Errorf("expected no email for a rolled back booking, got %+v", calls)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCreate_EmailWaitsForCommit(t *testing.T) {
	svc, _ := newTestService(Options{})
	sender := &notification.MockEmailSender{}
	svc.SetMailer(notification.NewMailer(sender, nil))

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()
	opts := pgx.TxOptions{IsoLevel: pgx.Serializable}
	mock.ExpectBeginTx(opts)
	mock.ExpectCommit()

	err = db.RunInTx(context.Background(), mock, opts, func(ctx context.Context) error {
		if _, err := svc.Create(ctx, patient, booking("10:00")); err != nil {
			return err
		}
		if n := len(sender.Calls()); n != 0 {
			t.Errorf("expected email to wait for commit, %d sent", n)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := len(sender.Calls()); n != 1 {
		t.Errorf("expected 1 email after commit, got %d", n)
	}
}

func TestCreate_MailFailureDoesNotFailBooking(t *testing.T) {
	svc, _ := newTestService(Options{})
	svc.SetMailer(notification.NewMailer(&notification.MockEmailSender{Err: errors.New("smtp down")}, nil))

	if _, err := svc.Create(context.Background(), patient, booking("10:00")); err != nil {
		t.Fatalf("expected booking to succeed, got %v", err)
	}
}

// -- Slots --

func TestListAvailableSlots_Scenario(t *testing.T) {
	svc, repo := newTestService(Options{})
	seed(t, repo, Appointment{PatientID: patientID, DoctorID: doctorID, Date: testDate, Time: "10:00", Status: StatusConfirmed})
	// other day and other doctor do not block
	seed(t, repo, Appointment{PatientID: patientID, DoctorID: doctorID, Date: "2024-06-02", Time: "11:00", Status: StatusConfirmed})
	seed(t, repo, Appointment{PatientID: patientID, DoctorID: otherDoctorID, Date: testDate, Time: "11:00", Status: StatusConfirmed})

	slots, err := svc.ListAvailableSlots(context.Background(), doctorID, testDate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slots) != 15 {
		t.Fatalf("expected 15 slots, got %d: %v", len(slots), slots)
	}
	for _, s := range slots {
		if s == "10:00" {
			t.Error("10:00 should be excluded")
		}
	}
}

func TestListAvailableSlots_UnknownDoctorHasAllSlots(t *testing.T) {
	svc, _ := newTestService(Options{})
	slots, err := svc.ListAvailableSlots(context.Background(), unknownDoctorID, testDate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slots) != 16 {
		t.Errorf("expected 16 slots, got %d", len(slots))
	}
}

func TestListAvailableSlots_InvalidInput(t *testing.T) {
	svc, _ := newTestService(Options{})
	_, err := svc.ListAvailableSlots(context.Background(), doctorID, "June 1st")
	if !errors.Is(err, ErrInvalidDate) {
		t.Errorf("expected ErrInvalidDate, got %v", err)
	}
	_, err = svc.ListAvailableSlots(context.Background(), 0, testDate)
	assertKind(t, err, apperror.KindValidation)
	_, err = svc.ListAvailableSlots(context.Background(), doctorID, "")
	assertKind(t, err, apperror.KindValidation)
}

// -- List / Get --

func seedMixed(t *testing.T, repo *mockApptRepo) {
	seed(t, repo, Appointment{PatientID: patientID, DoctorID: doctorID, Date: "2024-06-01", Time: "09:00", Status: StatusScheduled})
	seed(t, repo, Appointment{PatientID: patientID, DoctorID: otherDoctorID, Date: "2024-06-02", Time: "09:00", Status: StatusCompleted})
	seed(t, repo, Appointment{PatientID: otherPatientID, DoctorID: doctorID, Date: "2024-06-01", Time: "10:00", Status: StatusCancelled})
	seed(t, repo, Appointment{PatientID: unregisteredParty, DoctorID: doctorID, Date: "2024-06-03", Time: "11:00", Status: StatusConfirmed})
}

func TestList_Visibility(t *testing.T) {
	svc, repo := newTestService(Options{})
	seedMixed(t, repo)
	ctx := context.Background()
	page := pagination.New(1, 10)

	tests := []struct {
		viewer auth.Principal
		want   int
	}{
		{patient, 2},
		{otherPatient, 1},
		{doctor, 3},
		{otherDoctor, 1},
		{admin, 4},
	}
	for _, tt := range tests {
		items, total, err := svc.List(ctx, tt.viewer, ListFilter{}, page)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if total != tt.want || len(items) != tt.want {
			t.Errorf("viewer %+v: expected %d, got %d (%d items)", tt.viewer, tt.want, total, len(items))
		}
		for _, v := range items {
			if !canView(tt.viewer, v.Appointment) {
				t.Errorf("viewer %+v sees appointment %d", tt.viewer, v.ID)
			}
		}
	}
}

func TestList_FiltersOrderingAndNames(t *testing.T) {
	svc, repo := newTestService(Options{})
	seedMixed(t, repo)
	ctx := context.Background()

	items, total, err := svc.List(ctx, admin, ListFilter{}, pagination.New(1, 10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 4 || items[0].Date != "2024-06-03" || items[3].Time != "09:00" {
		t.Errorf("expected newest first, got %+v", items)
	}
	if items[0].PatientName != unknownName {
		t.Errorf("expected Unknown for missing patient, got %q", items[0].PatientName)
	}
	if items[0].DoctorName != "Gregory House" {
		t.Errorf("unexpected doctor name %q", items[0].DoctorName)
	}

	items, total, _ = svc.List(ctx, doctor, ListFilter{Date: "2024-06-01"}, pagination.New(1, 10))
	if total != 2 || len(items) != 2 {
		t.Errorf("expected 2 on date, got %d", total)
	}
	_, total, _ = svc.List(ctx, doctor, ListFilter{Status: StatusCancelled}, pagination.New(1, 10))
	if total != 1 {
		t.Errorf("expected 1 cancelled, got %d", total)
	}

	_, _, err = svc.List(ctx, admin, ListFilter{Status: "booked"}, pagination.New(1, 10))
	if !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
	_, _, err = svc.List(ctx, admin, ListFilter{Date: "yesterday"}, pagination.New(1, 10))
	if !errors.Is(err, ErrInvalidDate) {
		t.Errorf("expected ErrInvalidDate, got %v", err)
	}

	items, total, _ = svc.List(ctx, admin, ListFilter{}, pagination.New(2, 3))
	if total != 4 || len(items) != 1 {
		t.Errorf("expected 1 item on page 2, got %d of %d", len(items), total)
	}
}

func TestGet_Visibility(t *testing.T) {
	svc, repo := newTestService(Options{})
	a := seed(t, repo, Appointment{PatientID: patientID, DoctorID: doctorID, Date: testDate, Time: "09:00", Status: StatusScheduled})
	ctx := context.Background()

	for _, p := range []auth.Principal{patient, doctor, admin} {
		if _, err := svc.Get(ctx, p, a.ID); err != nil {
			t.Errorf("viewer %+v: unexpected error %v", p, err)
		}
	}
	for _, p := range []auth.Principal{otherPatient, otherDoctor} {
		_, err := svc.Get(ctx, p, a.ID)
		assertKind(t, err, apperror.KindForbidden)
	}
	_, err := svc.Get(ctx, admin, 999)
	assertKind(t, err, apperror.KindNotFound)
}

// -- Transition --

func TestTransition_Lifecycle(t *testing.T) {
	svc, repo := newTestService(Options{})
	ctx := context.Background()
	a := seed(t, repo, Appointment{PatientID: patientID, DoctorID: doctorID, Date: testDate, Time: "09:00", Status: StatusScheduled})

	v, err := svc.Transition(ctx, doctor, a.ID, StatusConfirmed, nil)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if v.Status != StatusConfirmed {
		t.Errorf("expected confirmed, got %s", v.Status)
	}

	notes := "patient arrived on time"
	v, err = svc.Transition(ctx, doctor, a.ID, StatusCompleted, &notes)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if v.Notes == nil || *v.Notes != notes {
		t.Error("expected notes to be stored")
	}

	for _, to := range AllStatuses {
		_, err := svc.Transition(ctx, admin, a.ID, to, nil)
		if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("completed -> %s: expected ErrInvalidTransition, got %v", to, err)
		}
	}
}

func TestTransition_TerminalStatesAreFinal(t *testing.T) {
	for _, terminal := range []Status{StatusCancelled, StatusCompleted, StatusNoShow} {
		t.Run(string(terminal), func(t *testing.T) {
			svc, repo := newTestService(Options{})
			a := seed(t, repo, Appointment{PatientID: patientID, DoctorID: doctorID, Date: testDate, Time: "09:00", Status: terminal})
			for _, to := range AllStatuses {
				_, err := svc.Transition(context.Background(), admin, a.ID, to, nil)
				if !errors.Is(err, ErrInvalidTransition) {
					t.Errorf("%s -> %s: expected ErrInvalidTransition, got %v", terminal, to, err)
				}
			}
		})
	}
}

func TestTransition_SelfTransitionRejected(t *testing.T) {
	svc, repo := newTestService(Options{})
	a := seed(t, repo, Appointment{PatientID: patientID, DoctorID: doctorID, Date: testDate, Time: "09:00", Status: StatusScheduled})
	_, err := svc.Transition(context.Background(), admin, a.ID, StatusScheduled, nil)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestTransition_Permissions(t *testing.T) {
	svc, repo := newTestService(Options{})
	ctx := context.Background()
	newAppt := func() *Appointment {
		return seed(t, repo, Appointment{PatientID: patientID, DoctorID: doctorID, Date: testDate, Time: "09:00", Status: StatusScheduled})
	}

	_, err := svc.Transition(ctx, patient, newAppt().ID, StatusConfirmed, nil)
	assertKind(t, err, apperror.KindForbidden)

	_, err = svc.Transition(ctx, otherPatient, newAppt().ID, StatusCancelled, nil)
	assertKind(t, err, apperror.KindForbidden)

	_, err = svc.Transition(ctx, otherDoctor, newAppt().ID, StatusConfirmed, nil)
	assertKind(t, err, apperror.KindForbidden)

	if _, err := svc.Transition(ctx, patient, newAppt().ID, StatusCancelled, nil); err != nil {
		t.Errorf("patient should cancel own appointment: %v", err)
	}
	if _, err := svc.Transition(ctx, admin, newAppt().ID, StatusNoShow, nil); err != nil {
		t.Errorf("admin should move any appointment: %v", err)
	}

	_, err = svc.Transition(ctx, admin, newAppt().ID, "done", nil)
	if !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
	_, err = svc.Transition(ctx, admin, 999, StatusCancelled, nil)
	assertKind(t, err, apperror.KindNotFound)
}

func TestTransition_RecordsEventAndMails(t *testing.T) {
	svc, repo := newTestService(Options{})
	events := &recordedEvents{}
	sender := &notification.MockEmailSender{}
	svc.SetEventRecorder(events)
	svc.SetMailer(notification.NewMailer(sender, nil))
	a := seed(t, repo, Appointment{PatientID: patientID, DoctorID: doctorID, Date: testDate, Time: "09:00", Status: StatusScheduled})

	if _, err := svc.Transition(context.Background(), patient, a.ID, StatusCancelled, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events.events) != 1 || events.events[0] != "scheduling/status_cancelled" {
		t.Errorf("unexpected events %v", events.events)
	}
	calls := sender.Calls()
	if len(calls) != 1 || !strings.Contains(calls[0].Subject, "cancelled") {
		t.Errorf("expected status email, got %+v", calls)
	}
}

// -- Dashboard support --

func TestStatusCountsAndUpcoming(t *testing.T) {
	svc, repo := newTestService(Options{})
	ctx := context.Background()
	today := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	seedMixed(t, repo)
	seed(t, repo, Appointment{PatientID: patientID, DoctorID: doctorID, Date: "2024-06-20", Time: "09:00", Status: StatusScheduled})

	counts, err := svc.StatusCounts(ctx, doctor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts[StatusScheduled] != 2 || counts[StatusCancelled] != 1 || counts[StatusConfirmed] != 1 {
		t.Errorf("unexpected counts %v", counts)
	}
	if _, ok := counts[StatusNoShow]; !ok {
		t.Error("expected every status key present")
	}

	up, err := svc.Upcoming(ctx, doctor, today, today.AddDate(0, 0, 7), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(up) != 2 || up[0].Date != "2024-06-01" || up[1].Date != "2024-06-03" {
		t.Errorf("unexpected upcoming %+v", up)
	}

	on, err := svc.OnDate(ctx, admin, today)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(on) != 1 {
		t.Errorf("expected only the blocking appointment on date, got %d", len(on))
	}
}

func TestListDoctors(t *testing.T) {
	svc, _ := newTestService(Options{})
	docs, err := svc.ListDoctors(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 2 {
		t.Errorf("expected 2 active doctors, got %d", len(docs))
	}
}
