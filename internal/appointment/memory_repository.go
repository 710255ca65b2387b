package appointment

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type dayKey struct {
	doctorID string
	date     time.Time
}

// MemoryRepository keeps appointments in process, indexed by doctor and day.
type MemoryRepository struct {
	mu    sync.RWMutex
	byID  map[uuid.UUID]Appointment
	byDay map[dayKey][]uuid.UUID
	now   func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:  make(map[uuid.UUID]Appointment),
		byDay: make(map[dayKey][]uuid.UUID),
		now:   time.Now,
	}
}

func (r *MemoryRepository) Insert(_ context.Context, a Appointment) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[a.ID]; ok {
		return uuid.Nil, fmt.Errorf("insert %s: %w", a.ID, ErrDuplicateID)
	}

	a.Date = DateOf(a.Date)
	now := r.now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	r.byID[a.ID] = a
	key := dayKey{doctorID: a.DoctorID, date: a.Date}
	r.byDay[key] = append(r.byDay[key], a.ID)
	return a.ID, nil
}

func (r *MemoryRepository) Get(_ context.Context, id uuid.UUID) (Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byID[id]
	if !ok {
		return Appointment{}, ErrNotFound
	}
	return a, nil
}

func (r *MemoryRepository) ListByDoctorAndDate(_ context.Context, doctorID string, date time.Time) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []Appointment{}
	for _, id := range r.byDay[dayKey{doctorID: doctorID, date: DateOf(date)}] {
		if a := r.byID[id]; a.Status != StatusCancelled {
			out = append(out, a)
		}
	}
	sortByStart(out)
	return out, nil
}

func (r *MemoryRepository) UpdateStatus(_ context.Context, id uuid.UUID, status AppointmentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	if a.Status == status {
		return nil
	}
	if !a.Status.CanTransition(status) {
		return fmt.Errorf("%w: cannot move from %s to %s", ErrInvalidState, a.Status, status)
	}

	a.Status = status
	a.UpdatedAt = r.now().UTC()
	r.byID[id] = a
	return nil
}

func (r *MemoryRepository) TransitionStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus) (Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[id]
	if !ok {
		return Appointment{}, ErrNotFound
	}
	if a.Status != from {
		return Appointment{}, ErrStatusChanged
	}

	a.Status = to
	a.UpdatedAt = r.now().UTC()
	r.byID[id] = a
	return a, nil
}

func (r *MemoryRepository) ListDueForReminder(_ context.Context, from, until time.Time) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Appointment
	for _, a := range r.byID {
		if a.Status != StatusConfirmed {
			continue
		}
		if at := a.StartsAt(); !at.Before(from) && at.Before(until) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt().Before(out[j].StartsAt()) })
	return out, nil
}

func sortByStart(appts []Appointment) {
	sort.Slice(appts, func(i, j int) bool { return earlier(appts[i], appts[j]) })
}

// MemoryNotificationLog is an in-process NotificationLog.
type MemoryNotificationLog struct {
	mu     sync.RWMutex
	events map[uuid.UUID][]NotificationEvent
}

func NewMemoryNotificationLog() *MemoryNotificationLog {
	return &MemoryNotificationLog{events: make(map[uuid.UUID][]NotificationEvent)}
}

func (l *MemoryNotificationLog) Record(_ context.Context, ev NotificationEvent) (uuid.UUID, error) {
	ev.ID = uuid.New()
	ev.Timestamp = ev.Timestamp.UTC()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.events[ev.AppointmentID] = append(l.events[ev.AppointmentID], ev)
	return ev.ID, nil
}

func (l *MemoryNotificationLog) ListFor(_ context.Context, appointmentID uuid.UUID) ([]NotificationEvent, error) {
	l.mu.RLock()
	out := make([]NotificationEvent, len(l.events[appointmentID]))
	copy(out, l.events[appointmentID])
	l.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}
