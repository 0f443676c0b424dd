package scheduling

import (
	"fmt"
	"strconv"
	"strings"
)

// SlotPolicy decides which candidate slots a booked appointment blocks.
type SlotPolicy string

const (
	// SlotPolicyExact blocks only the candidate whose HH:MM equals the
	// appointment's start time.
	SlotPolicyExact SlotPolicy = "exact"
	// SlotPolicyOverlap blocks every candidate whose half-hour intersects
	// [start, start+duration).
	SlotPolicyOverlap SlotPolicy = "overlap"
)

// ConflictPolicy decides whether booking re-checks the slot at write time.
type ConflictPolicy string

const (
	ConflictPolicyReject ConflictPolicy = "reject"
	ConflictPolicyAllow  ConflictPolicy = "allow"
)

var (
	SlotPolicies     = []SlotPolicy{SlotPolicyExact, SlotPolicyOverlap}
	ConflictPolicies = []ConflictPolicy{ConflictPolicyReject, ConflictPolicyAllow}
)

func (p SlotPolicy) Valid() bool {
	for _, v := range SlotPolicies {
		if p == v {
			return true
		}
	}
	return false
}

func (p ConflictPolicy) Valid() bool {
	for _, v := range ConflictPolicies {
		if p == v {
			return true
		}
	}
	return false
}

const (
	dayStartMinutes = 9 * 60
	dayEndMinutes   = 17 * 60
	SlotMinutes     = 30
)

// CandidateSlots returns every half-hour start from 09:00 up to but
// excluding 17:00.
func CandidateSlots() []string {
	out := make([]string, 0, (dayEndMinutes-dayStartMinutes)/SlotMinutes)
	for m := dayStartMinutes; m < dayEndMinutes; m += SlotMinutes {
		out = append(out, formatClock(m))
	}
	return out
}

// parseClock converts HH:MM or HH:MM:SS to minutes after midnight.
func parseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	limits := []int{23, 59, 59}
	vals := make([]int, len(parts))
	for i, p := range parts {
		if len(p) != 2 {
			return 0, fmt.Errorf("invalid time %q", s)
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > limits[i] {
			return 0, fmt.Errorf("invalid time %q", s)
		}
		vals[i] = n
	}
	return vals[0]*60 + vals[1], nil
}

func formatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// NormalizeTime returns s as HH:MM.
func NormalizeTime(s string) (string, error) {
	m, err := parseClock(s)
	if err != nil {
		return "", err
	}
	return formatClock(m), nil
}

// blocks reports whether a, under policy, occupies the half-open interval
// [start, start+length).
func blocks(policy SlotPolicy, a *Appointment, start, length int) bool {
	if !a.Status.Blocking() {
		return false
	}
	at, err := parseClock(a.Time)
	if err != nil {
		return false
	}
	if policy == SlotPolicyOverlap {
		dur := a.DurationMinutes
		if dur <= 0 {
			dur = DefaultDurationMinutes
		}
		return start < at+dur && at < start+length
	}
	return at == start
}

// AvailableSlots filters CandidateSlots against the doctor's appointments for
// the day. Order is ascending.
func AvailableSlots(policy SlotPolicy, appts []*Appointment) []string {
	var out []string
	for m := dayStartMinutes; m < dayEndMinutes; m += SlotMinutes {
		free := true
		for _, a := range appts {
			if blocks(policy, a, m, SlotMinutes) {
				free = false
				break
			}
		}
		if free {
			out = append(out, formatClock(m))
		}
	}
	if out == nil {
		out = []string{}
	}
	return out
}

// Conflicts returns the appointments that block a new booking at start for
// duration minutes.
func Conflicts(policy SlotPolicy, appts []*Appointment, start string, duration int) []*Appointment {
	m, err := parseClock(start)
	if err != nil {
		return nil
	}
	length := duration
	if length <= 0 {
		length = DefaultDurationMinutes
	}
	var out []*Appointment
	for _, a := range appts {
		if blocks(policy, a, m, length) {
			out = append(out, a)
		}
	}
	return out
}
