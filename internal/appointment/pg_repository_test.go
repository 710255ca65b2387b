package appointment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var appointmentCols = []string{
	"id", "patient_id", "doctor_id", "appt_date", "start_minute",
	"duration_minutes", "status", "created_at", "updated_at",
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func apptRow(rows *pgxmock.Rows, a Appointment) *pgxmock.Rows {
	return rows.AddRow(a.ID, a.PatientID, a.DoctorID, a.Date, int(a.Start), a.DurationMinutes,
		string(a.Status), a.CreatedAt, a.UpdatedAt)
}

func TestPgRepositoryInsert(t *testing.T) {
	a := existingAt(t, "dr-rao", "09:00", 30, StatusBooked)

	tests := []struct {
		name    string
		dbErr   error
		wantErr error
	}{
		{"success", nil, nil},
		{"duplicate id", &pgconn.PgError{Code: "23505"}, ErrDuplicateID},
		{"overlap rejected by constraint", &pgconn.PgError{Code: "23P01"}, ErrSlotUnavailable},
		{"connection failure", errors.New("conn closed"), ErrStoreUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			exp := mock.ExpectExec("INSERT INTO appointments").
				WithArgs(a.ID, a.PatientID, "dr-rao", may1, 540, 30, "booked")
			if tt.dbErr != nil {
				exp.WillReturnError(tt.dbErr)
			} else {
				exp.WillReturnResult(pgxmock.NewResult("INSERT", 1))
			}

			id, err := NewPgRepository(mock).Insert(context.Background(), a)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, a.ID, id)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPgRepositoryGet(t *testing.T) {
	mock := newMock(t)
	a := existingAt(t, "dr-rao", "09:00", 30, StatusConfirmed)
	missing := uuid.New()

	mock.ExpectQuery("FROM appointments").WithArgs(a.ID).
		WillReturnRows(apptRow(pgxmock.NewRows(appointmentCols), a))
	mock.ExpectQuery("FROM appointments").WithArgs(missing).
		WillReturnRows(pgxmock.NewRows(appointmentCols))

	repo := NewPgRepository(mock)
	got, err := repo.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Start, got.Start)
	assert.Equal(t, StatusConfirmed, got.Status)

	_, err = repo.Get(context.Background(), missing)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryListByDoctorAndDate(t *testing.T) {
	mock := newMock(t)
	first := existingAt(t, "dr-rao", "09:00", 30, StatusConfirmed)
	second := existingAt(t, "dr-rao", "10:00", 45, StatusBooked)

	rows := pgxmock.NewRows(appointmentCols)
	apptRow(rows, first)
	apptRow(rows, second)
	mock.ExpectQuery("status <> 'cancelled'").WithArgs("dr-rao", may1).WillReturnRows(rows)

	got, err := NewPgRepository(mock).ListByDoctorAndDate(context.Background(), "dr-rao", may1.Add(9*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "10:00-10:45", got[1].Slot().Range())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryListFailureIsStoreUnavailable(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("FROM appointments").WithArgs("dr-rao", may1).WillReturnError(errors.New("timeout"))

	_, err := NewPgRepository(mock).ListByDoctorAndDate(context.Background(), "dr-rao", may1)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestPgRepositoryUpdateStatus(t *testing.T) {
	a := existingAt(t, "dr-rao", "09:00", 30, StatusConfirmed)

	t.Run("applies allowed move", func(t *testing.T) {
		mock := newMock(t)
		updated := a
		updated.Status = StatusCancelled
		mock.ExpectQuery("UPDATE appointments").
			WithArgs(a.ID, "cancelled", pgxmock.AnyArg()).
			WillReturnRows(apptRow(pgxmock.NewRows(appointmentCols), updated))

		require.NoError(t, NewPgRepository(mock).UpdateStatus(context.Background(), a.ID, StatusCancelled))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects disallowed move", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery("UPDATE appointments").
			WithArgs(a.ID, "booked", pgxmock.AnyArg()).
			WillReturnRows(pgxmock.NewRows(appointmentCols))
		mock.ExpectQuery("SELECT").WithArgs(a.ID).
			WillReturnRows(apptRow(pgxmock.NewRows(appointmentCols), a))

		err := NewPgRepository(mock).UpdateStatus(context.Background(), a.ID, StatusBooked)
		assert.ErrorIs(t, err, ErrInvalidState)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown id", func(t *testing.T) {
		mock := newMock(t)
		id := uuid.New()
		mock.ExpectQuery("UPDATE appointments").
			WithArgs(id, "cancelled", pgxmock.AnyArg()).
			WillReturnRows(pgxmock.NewRows(appointmentCols))
		mock.ExpectQuery("SELECT").WithArgs(id).
			WillReturnRows(pgxmock.NewRows(appointmentCols))

		err := NewPgRepository(mock).UpdateStatus(context.Background(), id, StatusCancelled)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestPgRepositoryTransitionStatusStale(t *testing.T) {
	mock := newMock(t)
	a := existingAt(t, "dr-rao", "09:00", 30, StatusCancelled)

	mock.ExpectQuery("UPDATE appointments").
		WithArgs(a.ID, "reminded", "confirmed").
		WillReturnRows(pgxmock.NewRows(appointmentCols))
	mock.ExpectQuery("SELECT").WithArgs(a.ID).
		WillReturnRows(apptRow(pgxmock.NewRows(appointmentCols), a))

	_, err := NewPgRepository(mock).TransitionStatus(context.Background(), a.ID, StatusConfirmed, StatusReminded)
	assert.ErrorIs(t, err, ErrStatusChanged)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryListDueForReminderFiltersWindow(t *testing.T) {
	mock := newMock(t)
	inside := existingAt(t, "dr-rao", "09:00", 30, StatusConfirmed)
	outside := existingAt(t, "dr-rao", "16:00", 30, StatusConfirmed)

	rows := pgxmock.NewRows(appointmentCols)
	apptRow(rows, inside)
	apptRow(rows, outside)
	from := may1.Add(8 * time.Hour)
	until := from.Add(4 * time.Hour)
	mock.ExpectQuery("status = 'confirmed'").WithArgs(may1, may1).WillReturnRows(rows)

	due, err := NewPgRepository(mock).ListDueForReminder(context.Background(), from, until)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, inside.ID, due[0].ID)
}

func TestPgNotificationLog(t *testing.T) {
	mock := newMock(t)
	apptID := uuid.New()
	at := time.Date(2024, 4, 30, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO notification_events").
		WithArgs(pgxmock.AnyArg(), apptID, "confirmation", "email", "asha@example.com", at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("FROM notification_events").WithArgs(apptID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "appointment_id", "kind", "channel", "recipient", "occurred_at"}).
			AddRow(uuid.New(), apptID, "confirmation", "email", "asha@example.com", at).
			AddRow(uuid.New(), apptID, "reminder", "", "", at.Add(time.Hour)))

	log := NewPgNotificationLog(mock)
	id, err := log.Record(context.Background(), NotificationEvent{
		AppointmentID: apptID,
		Kind:          KindConfirmation,
		Channel:       ChannelEmail,
		Recipient:     "asha@example.com",
		Timestamp:     at,
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	events, err := log.ListFor(context.Background(), apptID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, ChannelEmail, events[0].Channel)
	assert.Equal(t, "asha@example.com", events[0].Recipient)
	assert.Equal(t, KindReminder, events[1].Kind)
	assert.Empty(t, events[1].Recipient)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgNotificationLogRecordFailure(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec("INSERT INTO notification_events").WillReturnError(errors.New("disk full"))

	_, err := NewPgNotificationLog(mock).Record(context.Background(), NotificationEvent{
		AppointmentID: uuid.New(),
		Kind:          KindReminder,
		Timestamp:     time.Now(),
	})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}
