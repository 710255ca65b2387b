package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/logging"
	"github.com/hackgods/clinic-appointment-scheduling/internal/patient"
)

// retryAfterSeconds is advertised when a doctor's calendar lock is contended.
const retryAfterSeconds = "1"

type Handlers struct {
	appointments *appointment.Service
	patients     *patient.Service
	logger       *logging.Logger
}

func NewHandlers(appointments *appointment.Service, patients *patient.Service, logger *logging.Logger) *Handlers {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handlers{
		appointments: appointments,
		patients:     patients,
		logger:       logger,
	}
}

func (h *Handlers) RegisterPatient(w http.ResponseWriter, r *http.Request) {
	var req RegisterPatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	dob, err := appointment.ParseDate(strings.TrimSpace(req.DateOfBirth))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date_of_birth", "date_of_birth must be YYYY-MM-DD")
		return
	}

	p, created, err := h.patients.Register(r.Context(), patient.Intake{
		FullName:    req.FullName,
		DateOfBirth: dob,
		Email:       req.Email,
		Phone:       req.Phone,
		Insurance:   req.Insurance,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, newPatientResponse(p, created))
}

func (h *Handlers) GetPatient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	p, err := h.patients.Get(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPatientResponse(p, false))
}

func (h *Handlers) BookAppointment(w http.ResponseWriter, r *http.Request) {
	var req BookAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
		return
	}
	date, err := appointment.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return
	}
	start, err := appointment.ParseClock(req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_start", "start must be HH:MM")
		return
	}

	appt, err := h.appointments.Book(r.Context(), appointment.BookingRequest{
		PatientID:       patientID,
		DoctorID:        req.DoctorID,
		Date:            date,
		Start:           start,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newAppointmentResponse(appt))
}

func (h *Handlers) GetAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	appt, err := h.appointments.Get(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAppointmentResponse(appt))
}

func (h *Handlers) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.appointments.Cancel(r.Context(), id); err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{ID: id, Status: string(appointment.StatusCancelled)})
}

func (h *Handlers) RemindAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.appointments.SendReminder(r.Context(), id); err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{ID: id, Status: string(appointment.StatusReminded)})
}

func (h *Handlers) ListNotifications(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	events, err := h.appointments.Notifications(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	resp := make([]NotificationResponse, 0, len(events))
	for _, ev := range events {
		resp = append(resp, NotificationResponse{
			ID:            ev.ID,
			AppointmentID: ev.AppointmentID,
			Kind:          string(ev.Kind),
			Channel:       string(ev.Channel),
			Recipient:     ev.Recipient,
			Timestamp:     ev.Timestamp,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) ListDoctorAppointments(w http.ResponseWriter, r *http.Request) {
	date, err := appointment.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date query parameter must be YYYY-MM-DD")
		return
	}

	appts, err := h.appointments.ListByDoctorAndDate(r.Context(), chi.URLParam(r, "doctor"), date)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	resp := make([]AppointmentResponse, 0, len(appts))
	for _, a := range appts {
		resp = append(resp, newAppointmentResponse(a))
	}
	writeJSON(w, http.StatusOK, resp)
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// handleError maps service errors onto HTTP responses. Infrastructure detail
// is logged, never returned.
func (h *Handlers) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, appointment.ErrInvalidRequest),
		errors.Is(err, patient.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, appointment.ErrNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, patient.ErrNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, appointment.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, appointment.ErrAlreadyCancelled):
		writeError(w, http.StatusConflict, "already_cancelled", err.Error())
	case errors.Is(err, appointment.ErrInvalidState):
		writeError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, appointment.ErrBusy):
		w.Header().Set("Retry-After", retryAfterSeconds)
		writeError(w, http.StatusServiceUnavailable, "busy", err.Error())
	default:
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", GetRequestID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "")
	}
}
