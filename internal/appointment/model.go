package appointment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusBooked    AppointmentStatus = "booked"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusReminded  AppointmentStatus = "reminded"
	StatusCancelled AppointmentStatus = "cancelled"
)

// transitions is the full lifecycle; anything not listed is rejected.
var transitions = map[AppointmentStatus][]AppointmentStatus{
	StatusBooked:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusReminded, StatusCancelled},
	StatusReminded:  {StatusCancelled},
	StatusCancelled: nil,
}

func (s AppointmentStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether the lifecycle allows moving from s to next.
func (s AppointmentStatus) CanTransition(next AppointmentStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type NotificationKind string

const (
	KindConfirmation NotificationKind = "confirmation"
	KindReminder     NotificationKind = "reminder"
)

// Clock is a time of day in minutes since midnight.
type Clock int

const minutesPerDay = 24 * 60

func ParseClock(v string) (Clock, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", v, err)
	}
	return Clock(t.Hour()*60 + t.Minute()), nil
}

// ClockOf returns the wall-clock time of day of t, truncated to the minute.
func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*60 + t.Minute())
}

// ClockFromDuration converts an offset from midnight.
func ClockFromDuration(d time.Duration) Clock {
	return Clock(d / time.Minute)
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(b []byte) error {
	parsed, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// DateOf drops the time of day, keeping t's calendar day as a UTC midnight.
// The clinic runs on a single wall clock, so calendar days are compared as-is.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func ParseDate(v string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", v, err)
	}
	return t, nil
}

// wallClock re-expresses t as the same wall-clock reading in UTC so it can be
// compared with appointment start instants.
func wallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// Slot is a candidate or booked time range on a doctor's calendar.
type Slot struct {
	DoctorID        string
	Date            time.Time
	Start           Clock
	DurationMinutes int
}

func (s Slot) End() Clock {
	return s.Start + Clock(s.DurationMinutes)
}

// Range renders the slot as "HH:MM-HH:MM".
func (s Slot) Range() string {
	return s.Start.String() + "-" + s.End().String()
}

type Appointment struct {
	ID              uuid.UUID
	PatientID       uuid.UUID
	DoctorID        string
	Date            time.Time
	Start           Clock
	DurationMinutes int
	Status          AppointmentStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (a Appointment) Slot() Slot {
	return Slot{
		DoctorID:        a.DoctorID,
		Date:            a.Date,
		Start:           a.Start,
		DurationMinutes: a.DurationMinutes,
	}
}

func (a Appointment) End() Clock {
	return a.Slot().End()
}

// StartsAt is the appointment's start as a wall-clock instant.
func (a Appointment) StartsAt() time.Time {
	return DateOf(a.Date).Add(time.Duration(a.Start) * time.Minute)
}

// NotificationChannel is how a simulated notification would have reached the
// patient. It is empty when no contact detail was on file.
type NotificationChannel string

const (
	ChannelEmail NotificationChannel = "email"
	ChannelSMS   NotificationChannel = "sms"
)

type NotificationEvent struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	Kind          NotificationKind
	Channel       NotificationChannel
	Recipient     string
	Timestamp     time.Time
}
