package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is the appointment store the service depends on.
type Repository interface {
	// Insert fails with ErrDuplicateID when the id is taken.
	Insert(ctx context.Context, a Appointment) (uuid.UUID, error)
	Get(ctx context.Context, id uuid.UUID) (Appointment, error)

	// ListByDoctorAndDate returns non-cancelled appointments ordered by start.
	ListByDoctorAndDate(ctx context.Context, doctorID string, date time.Time) ([]Appointment, error)

	// UpdateStatus applies the lifecycle table atomically for one record.
	// Repeating the current status is a no-op; a disallowed move is
	// ErrInvalidState.
	UpdateStatus(ctx context.Context, id uuid.UUID, status AppointmentStatus) error

	// TransitionStatus is a compare-and-set on status. It fails with
	// ErrStatusChanged when the stored status is not from. The lifecycle
	// table is the caller's concern.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (Appointment, error)

	// Reminder pass
	ListDueForReminder(ctx context.Context, from, until time.Time) ([]Appointment, error)
}

// NotificationLog is the append-only record of simulated notifications.
type NotificationLog interface {
	// Record appends ev and returns its generated id; ev.ID is ignored.
	Record(ctx context.Context, ev NotificationEvent) (uuid.UUID, error)
	// ListFor is ordered by timestamp, then insertion.
	ListFor(ctx context.Context, appointmentID uuid.UUID) ([]NotificationEvent, error)
}
