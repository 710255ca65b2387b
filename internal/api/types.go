package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/patient"
)

type RegisterPatientRequest struct {
	FullName    string            `json:"full_name"`
	DateOfBirth string            `json:"date_of_birth"`
	Email       string            `json:"email"`
	Phone       string            `json:"phone"`
	Insurance   patient.Insurance `json:"insurance"`
}

type PatientResponse struct {
	ID          uuid.UUID         `json:"id"`
	FullName    string            `json:"full_name"`
	DateOfBirth string            `json:"date_of_birth"`
	Email       string            `json:"email,omitempty"`
	Phone       string            `json:"phone,omitempty"`
	Insurance   patient.Insurance `json:"insurance"`
	Created     bool              `json:"created"`
}

func newPatientResponse(p patient.Patient, created bool) PatientResponse {
	return PatientResponse{
		ID:          p.ID,
		FullName:    p.FullName,
		DateOfBirth: p.DateOfBirth.Format(time.DateOnly),
		Email:       p.Email,
		Phone:       p.Phone,
		Insurance:   p.Insurance,
		Created:     created,
	}
}

type BookAppointmentRequest struct {
	PatientID       string `json:"patient_id"`
	DoctorID        string `json:"doctor_id"`
	Date            string `json:"date"`
	Start           string `json:"start"`
	DurationMinutes int    `json:"duration_minutes"`
}

type AppointmentResponse struct {
	ID              uuid.UUID `json:"id"`
	PatientID       uuid.UUID `json:"patient_id"`
	DoctorID        string    `json:"doctor_id"`
	Date            string    `json:"date"`
	Start           string    `json:"start"`
	End             string    `json:"end"`
	DurationMinutes int       `json:"duration_minutes"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func newAppointmentResponse(a appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		PatientID:       a.PatientID,
		DoctorID:        a.DoctorID,
		Date:            a.Date.Format(time.DateOnly),
		Start:           a.Start.String(),
		End:             a.End().String(),
		DurationMinutes: a.DurationMinutes,
		Status:          string(a.Status),
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

type NotificationResponse struct {
	ID            uuid.UUID `json:"id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	Kind          string    `json:"kind"`
	Channel       string    `json:"channel,omitempty"`
	Recipient     string    `json:"recipient,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

type StatusResponse struct {
	ID     uuid.UUID `json:"id"`
	Status string    `json:"status"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
