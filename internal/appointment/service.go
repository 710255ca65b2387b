package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-scheduling/internal/config"
	"github.com/hackgods/clinic-appointment-scheduling/internal/logging"
	"github.com/hackgods/clinic-appointment-scheduling/internal/metrics"
	"github.com/hackgods/clinic-appointment-scheduling/internal/patient"
	redisclient "github.com/hackgods/clinic-appointment-scheduling/internal/redis"
)

const (
	// maxIDAttempts bounds id regeneration after a duplicate-id insert.
	maxIDAttempts = 3
	// maxCancelAttempts bounds re-reads when the status moves under Cancel.
	maxCancelAttempts = 3
)

// PatientLookup lets the service reject bookings for unknown patients.
type PatientLookup interface {
	Get(ctx context.Context, id uuid.UUID) (patient.Patient, error)
}

type BookingRequest struct {
	PatientID       uuid.UUID
	DoctorID        string
	Date            time.Time
	Start           Clock
	DurationMinutes int
}

func (r BookingRequest) slot() Slot {
	return Slot{
		DoctorID:        r.DoctorID,
		Date:            DateOf(r.Date),
		Start:           r.Start,
		DurationMinutes: r.DurationMinutes,
	}
}

type Service struct {
	repo     Repository
	notes    NotificationLog
	locker   redisclient.Locker
	cfg      config.Config
	patients PatientLookup
	logger   *logging.Logger
	metrics  *metrics.SchedulingMetrics
	now      func() time.Time
	newID    func() uuid.UUID
}

type Option func(*Service)

func WithPatients(p PatientLookup) Option {
	return func(s *Service) { s.patients = p }
}

func WithLogger(l *logging.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithMetrics(m *metrics.SchedulingMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(gen func() uuid.UUID) Option {
	return func(s *Service) { s.newID = gen }
}

func NewService(repo Repository, notes NotificationLog, locker redisclient.Locker, cfg config.Config, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		notes:  notes,
		locker: locker,
		cfg:    cfg,
		now:    time.Now,
		newID:  uuid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.Default()
	}
	return s
}

// LockKey identifies the critical section shared by every booking for one
// doctor on one day.
func LockKey(doctorID string, date time.Time) string {
	return fmt.Sprintf("doctor-day:%s:%s", doctorID, DateOf(date).Format(time.DateOnly))
}

// Book reserves a slot, records the confirmation and returns the confirmed
// appointment. The conflict check and the insert run under the doctor-day
// lock so two concurrent requests cannot both pass against a stale listing.
func (s *Service) Book(ctx context.Context, req BookingRequest) (Appointment, error) {
	req.DoctorID = strings.TrimSpace(req.DoctorID)

	if err := s.validate(ctx, req); err != nil {
		s.metrics.ObserveBooking(outcome(err))
		return Appointment{}, err
	}

	slot := req.slot()
	var created Appointment

	waitStart := time.Now()
	err := s.locker.WithLock(ctx, LockKey(slot.DoctorID, slot.Date), func(lockCtx context.Context) error {
		s.metrics.ObserveLockWait(time.Since(waitStart).Seconds())

		// Inside the critical section the listing is authoritative
		existing, err := s.repo.ListByDoctorAndDate(lockCtx, slot.DoctorID, slot.Date)
		if err != nil {
			return fmt.Errorf("list appointments: %w", err)
		}
		if conflict, found := FindConflict(slot, existing); found {
			return &ConflictError{Existing: conflict}
		}

		appt, err := s.insertBooked(lockCtx, req.PatientID, slot)
		if err != nil {
			return err
		}
		created = appt
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			err = ErrBusy
		}
		s.metrics.ObserveBooking(outcome(err))
		return Appointment{}, err
	}

	s.logger.Info("appointment booked",
		"appointment_id", created.ID,
		"doctor_id", created.DoctorID,
		"date", created.Date.Format(time.DateOnly),
		"slot", created.Slot().Range(),
	)

	if err := s.recordNotification(ctx, created, KindConfirmation); err != nil {
		s.releaseUnconfirmed(ctx, created.ID)
		s.metrics.ObserveBooking(outcome(err))
		return Appointment{}, err
	}
	if err := s.repo.UpdateStatus(ctx, created.ID, StatusConfirmed); err != nil {
		s.releaseUnconfirmed(ctx, created.ID)
		s.metrics.ObserveBooking(outcome(err))
		return Appointment{}, fmt.Errorf("confirm appointment %s: %w", created.ID, err)
	}
	s.metrics.ObserveTransition(string(StatusConfirmed))

	confirmed, err := s.repo.Get(ctx, created.ID)
	if err != nil {
		s.metrics.ObserveBooking(outcome(err))
		return Appointment{}, fmt.Errorf("reload appointment: %w", err)
	}

	s.metrics.ObserveBooking("success")
	return confirmed, nil
}

// releaseUnconfirmed cancels a booking whose confirmation failed so the slot
// does not stay held by an appointment nobody can see.
func (s *Service) releaseUnconfirmed(ctx context.Context, id uuid.UUID) {
	ctx = context.WithoutCancel(ctx)
	if _, err := s.repo.TransitionStatus(ctx, id, StatusBooked, StatusCancelled); err != nil {
		s.logger.Error("failed to release unconfirmed booking", "appointment_id", id, "error", err)
		return
	}
	s.metrics.ObserveTransition(string(StatusCancelled))
	s.logger.Warn("released unconfirmed booking", "appointment_id", id)
}

func (s *Service) insertBooked(ctx context.Context, patientID uuid.UUID, slot Slot) (Appointment, error) {
	for attempt := 1; attempt <= maxIDAttempts; attempt++ {
		now := s.now().UTC()
		appt := Appointment{
			ID:              s.newID(),
			PatientID:       patientID,
			DoctorID:        slot.DoctorID,
			Date:            slot.Date,
			Start:           slot.Start,
			DurationMinutes: slot.DurationMinutes,
			Status:          StatusBooked,
			CreatedAt:       now,
			UpdatedAt:       now,
		}

		_, err := s.repo.Insert(ctx, appt)
		if err == nil {
			return appt, nil
		}
		if !errors.Is(err, ErrDuplicateID) {
			return Appointment{}, fmt.Errorf("insert appointment: %w", err)
		}
		s.logger.Warn("appointment id collision, regenerating", "attempt", attempt, "appointment_id", appt.ID)
	}
	return Appointment{}, fmt.Errorf("%w: could not allocate a unique appointment id after %d attempts", ErrInternal, maxIDAttempts)
}

func (s *Service) validate(ctx context.Context, req BookingRequest) error {
	if req.PatientID == uuid.Nil {
		return invalidRequest("patient_id is required")
	}
	if req.DoctorID == "" {
		return invalidRequest("doctor_id is required")
	}
	if req.DurationMinutes <= 0 {
		return invalidRequest("duration must be a positive number of minutes, got %d", req.DurationMinutes)
	}
	if req.Start < 0 || req.Start >= minutesPerDay {
		return invalidRequest("start time %d is outside the day", int(req.Start))
	}
	// Bound before any end-of-slot arithmetic so huge durations cannot wrap.
	if req.DurationMinutes > minutesPerDay-int(req.Start) {
		return invalidRequest("duration of %d minutes runs past midnight from %s", req.DurationMinutes, req.Start)
	}
	if req.Date.IsZero() {
		return invalidRequest("date is required")
	}

	now := wallClock(s.now())
	today := DateOf(now)
	date := DateOf(req.Date)
	if date.Before(today) {
		return invalidRequest("date %s is in the past", date.Format(time.DateOnly))
	}
	if date.Equal(today) && req.Start <= ClockOf(now) {
		return invalidRequest("start time %s has already passed", req.Start)
	}

	slot := req.slot()
	open, closing := ClockFromDuration(s.cfg.ClinicOpen), ClockFromDuration(s.cfg.ClinicClose)
	if slot.Start < open {
		return invalidRequest("slot %s starts before clinic opening at %s", slot.Range(), open)
	}
	if slot.End() > closing {
		return invalidRequest("slot %s ends after clinic closing at %s", slot.Range(), closing)
	}

	if s.patients != nil {
		if _, err := s.patients.Get(ctx, req.PatientID); err != nil {
			if errors.Is(err, patient.ErrNotFound) {
				return invalidRequest("patient %s is not registered", req.PatientID)
			}
			return fmt.Errorf("load patient: %w", err)
		}
	}
	return nil
}

// Cancel releases the appointment's slot. Cancelled appointments are kept for
// the audit trail.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	for attempt := 0; attempt < maxCancelAttempts; attempt++ {
		appt, err := s.repo.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("load appointment: %w", err)
		}
		if appt.Status == StatusCancelled {
			return ErrAlreadyCancelled
		}

		_, err = s.repo.TransitionStatus(ctx, id, appt.Status, StatusCancelled)
		if errors.Is(err, ErrStatusChanged) {
			continue
		}
		if err != nil {
			return fmt.Errorf("cancel appointment: %w", err)
		}

		s.metrics.ObserveTransition(string(StatusCancelled))
		s.logger.Info("appointment cancelled", "appointment_id", id, "previous_status", appt.Status)
		return nil
	}
	return fmt.Errorf("%w: appointment %s kept changing during cancel", ErrInternal, id)
}

// SendReminder records a reminder for a confirmed appointment. Anything else,
// including an appointment already reminded, is ErrInvalidState.
func (s *Service) SendReminder(ctx context.Context, id uuid.UUID) error {
	appt, err := s.repo.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load appointment: %w", err)
	}
	if appt.Status != StatusConfirmed {
		return fmt.Errorf("%w: cannot remind a %s appointment", ErrInvalidState, appt.Status)
	}

	// Claim the transition first so concurrent reminders log one event.
	if _, err := s.repo.TransitionStatus(ctx, id, StatusConfirmed, StatusReminded); err != nil {
		if errors.Is(err, ErrStatusChanged) {
			return fmt.Errorf("%w: appointment changed while reminding", ErrInvalidState)
		}
		return fmt.Errorf("remind appointment: %w", err)
	}

	if err := s.recordNotification(ctx, appt, KindReminder); err != nil {
		if _, revertErr := s.repo.TransitionStatus(ctx, id, StatusReminded, StatusConfirmed); revertErr != nil {
			s.logger.Error("failed to revert reminded status", "appointment_id", id, "error", revertErr)
		}
		return err
	}

	s.metrics.ObserveTransition(string(StatusReminded))
	return nil
}

// SendDueReminders is the reminder pass, intended to be called by the worker
// periodically. Confirmed appointments starting within the configured lead
// time get reminded; individual failures are logged and skipped.
func (s *Service) SendDueReminders(ctx context.Context) (int, error) {
	now := wallClock(s.now())
	due, err := s.repo.ListDueForReminder(ctx, now, now.Add(s.cfg.ReminderLead))
	if err != nil {
		return 0, fmt.Errorf("find due reminders: %w", err)
	}

	sent := 0
	for _, appt := range due {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if err := s.SendReminder(ctx, appt.ID); err != nil {
			s.logger.Warn("reminder skipped", "appointment_id", appt.ID, "error", err)
			continue
		}
		sent++
	}
	return sent, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (Appointment, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListByDoctorAndDate(ctx context.Context, doctorID string, date time.Time) ([]Appointment, error) {
	doctorID = strings.TrimSpace(doctorID)
	if doctorID == "" {
		return nil, invalidRequest("doctor_id is required")
	}
	return s.repo.ListByDoctorAndDate(ctx, doctorID, date)
}

// Notifications lists the log entries for an existing appointment.
func (s *Service) Notifications(ctx context.Context, id uuid.UUID) ([]NotificationEvent, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.notes.ListFor(ctx, id)
}

func (s *Service) recordNotification(ctx context.Context, appt Appointment, kind NotificationKind) error {
	ev := NotificationEvent{
		AppointmentID: appt.ID,
		Kind:          kind,
		Timestamp:     s.now(),
	}
	ev.Channel, ev.Recipient = s.contactFor(ctx, appt.PatientID)

	if _, err := s.notes.Record(ctx, ev); err != nil {
		return fmt.Errorf("record %s: %w", kind, err)
	}
	s.metrics.ObserveNotification(string(kind))
	s.logger.Info("notification recorded",
		"appointment_id", appt.ID,
		"kind", kind,
		"channel", ev.Channel,
	)
	return nil
}

// contactFor picks where a notification goes: email first, then phone. A
// failed lookup records the event without a recipient.
func (s *Service) contactFor(ctx context.Context, patientID uuid.UUID) (NotificationChannel, string) {
	if s.patients == nil {
		return "", ""
	}
	p, err := s.patients.Get(ctx, patientID)
	if err != nil {
		s.logger.Warn("patient contact lookup failed", "patient_id", patientID, "error", err)
		return "", ""
	}
	switch {
	case p.Email != "":
		return ChannelEmail, p.Email
	case p.Phone != "":
		return ChannelSMS, p.Phone
	default:
		return "", ""
	}
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrSlotUnavailable):
		return "slot_unavailable"
	case errors.Is(err, ErrBusy):
		return "busy"
	default:
		return "error"
	}
}
