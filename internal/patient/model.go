package patient

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("patient not found")
	ErrInvalidInput  = errors.New("invalid patient intake")
	// ErrAlreadyExists means a patient with the same name and date of birth
	// is already on file.
	ErrAlreadyExists = errors.New("patient already exists")
)

type Insurance struct {
	Carrier  string `json:"carrier,omitempty"`
	MemberID string `json:"member_id,omitempty"`
	Group    string `json:"group,omitempty"`
}

// Patient is immutable once created.
type Patient struct {
	ID          uuid.UUID `json:"id"`
	FullName    string    `json:"full_name"`
	DateOfBirth time.Time `json:"date_of_birth"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Insurance   Insurance `json:"insurance"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists patients.
type Store interface {
	Create(ctx context.Context, p Patient) error
	Get(ctx context.Context, id uuid.UUID) (Patient, error)
	// FindByNameAndDOB matches the name case-insensitively.
	FindByNameAndDOB(ctx context.Context, name string, dob time.Time) (Patient, error)
}
