package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hackgods/clinic-appointment-scheduling/internal/db"
)

const (
	pgUniqueViolation    = "23505"
	pgExclusionViolation = "23P01"
)

type PgRepository struct {
	db db.Querier
}

func NewPgRepository(q db.Querier) *PgRepository {
	return &PgRepository{db: q}
}

// Helpers

const appointmentColumns = `id, patient_id, doctor_id, appt_date, start_minute, duration_minutes, status, created_at, updated_at`

func scanAppointment(row pgx.Row) (Appointment, error) {
	var (
		a      Appointment
		start  int
		status string
	)

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.Date,
		&start,
		&a.DurationMinutes,
		&status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Appointment{}, ErrNotFound
		}
		return Appointment{}, err
	}

	a.Start = Clock(start)
	a.Status = AppointmentStatus(status)
	return a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	result := []Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// sourcesFor lists the statuses from which to is reachable, plus to itself.
func sourcesFor(to AppointmentStatus) []string {
	out := []string{string(to)}
	for _, s := range []AppointmentStatus{StatusBooked, StatusConfirmed, StatusReminded, StatusCancelled} {
		if s.CanTransition(to) {
			out = append(out, string(s))
		}
	}
	return out
}

// Interface methods

func (r *PgRepository) Insert(ctx context.Context, a Appointment) (uuid.UUID, error) {
	_, err := r.db.Exec(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
	`, a.ID, a.PatientID, a.DoctorID, DateOf(a.Date), int(a.Start), a.DurationMinutes, string(a.Status))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgUniqueViolation:
				return uuid.Nil, ErrDuplicateID
			case pgExclusionViolation:
				return uuid.Nil, fmt.Errorf("%w: overlapping appointment exists", ErrSlotUnavailable)
			}
		}
		return uuid.Nil, storeUnavailable("insert appointment", err)
	}
	return a.ID, nil
}

func (r *PgRepository) Get(ctx context.Context, id uuid.UUID) (Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	a, err := scanAppointment(row)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Appointment{}, storeUnavailable("get appointment", err)
	}
	return a, err
}

func (r *PgRepository) ListByDoctorAndDate(ctx context.Context, doctorID string, date time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND appt_date = $2
		  AND status <> 'cancelled'
		ORDER BY start_minute, id
	`, doctorID, DateOf(date))
	if err != nil {
		return nil, storeUnavailable("list appointments", err)
	}

	appts, err := collectAppointments(rows)
	if err != nil {
		return nil, storeUnavailable("list appointments", err)
	}
	return appts, nil
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status AppointmentStatus) error {
	_, err := scanAppointment(r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($3)
		RETURNING `+appointmentColumns+`
	`, id, string(status), sourcesFor(status)))
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return storeUnavailable("update status", err)
	}

	// No row matched: either the id is unknown or the move is not allowed.
	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.Status == status {
		return nil
	}
	return fmt.Errorf("%w: cannot move from %s to %s", ErrInvalidState, current.Status, status)
}

func (r *PgRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, string(to), string(from))

	a, err := scanAppointment(row)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Appointment{}, storeUnavailable("transition status", err)
	}

	if _, err := r.Get(ctx, id); err != nil {
		return Appointment{}, err
	}
	return Appointment{}, ErrStatusChanged
}

func (r *PgRepository) ListDueForReminder(ctx context.Context, from, until time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'confirmed'
		  AND appt_date BETWEEN $1 AND $2
		ORDER BY appt_date, start_minute
	`, DateOf(from), DateOf(until))
	if err != nil {
		return nil, storeUnavailable("list due reminders", err)
	}

	candidates, err := collectAppointments(rows)
	if err != nil {
		return nil, storeUnavailable("list due reminders", err)
	}

	due := candidates[:0]
	for _, a := range candidates {
		if at := a.StartsAt(); !at.Before(from) && at.Before(until) {
			due = append(due, a)
		}
	}
	return due, nil
}

// PgNotificationLog stores notification events in notification_events.
type PgNotificationLog struct {
	db db.Querier
}

func NewPgNotificationLog(q db.Querier) *PgNotificationLog {
	return &PgNotificationLog{db: q}
}

func (l *PgNotificationLog) Record(ctx context.Context, ev NotificationEvent) (uuid.UUID, error) {
	id := uuid.New()

	_, err := l.db.Exec(ctx, `
		INSERT INTO notification_events (id, appointment_id, kind, channel, recipient, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, ev.AppointmentID, string(ev.Kind), string(ev.Channel), ev.Recipient, ev.Timestamp.UTC())
	if err != nil {
		return uuid.Nil, storeUnavailable("insert notification event", err)
	}
	return id, nil
}

func (l *PgNotificationLog) ListFor(ctx context.Context, appointmentID uuid.UUID) ([]NotificationEvent, error) {
	rows, err := l.db.Query(ctx, `
		SELECT id, appointment_id, kind, channel, recipient, occurred_at
		FROM notification_events
		WHERE appointment_id = $1
		ORDER BY occurred_at, seq
	`, appointmentID)
	if err != nil {
		return nil, storeUnavailable("list notification events", err)
	}
	defer rows.Close()

	events := []NotificationEvent{}
	for rows.Next() {
		var (
			ev            NotificationEvent
			kind, channel string
		)
		if err := rows.Scan(&ev.ID, &ev.AppointmentID, &kind, &channel, &ev.Recipient, &ev.Timestamp); err != nil {
			return nil, storeUnavailable("scan notification event", err)
		}
		ev.Kind = NotificationKind(kind)
		ev.Channel = NotificationChannel(channel)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, storeUnavailable("list notification events", err)
	}
	return events, nil
}
