package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-scheduling/internal/logging"
)

// Intake is the raw form submission for a patient.
type Intake struct {
	FullName    string
	DateOfBirth time.Time
	Email       string
	Phone       string
	Insurance   Insurance
}

type Service struct {
	store  Store
	logger *logging.Logger
	now    func() time.Time
}

func NewService(store Store, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Register returns the existing patient with the same name and date of birth,
// or creates one. created reports which happened.
func (s *Service) Register(ctx context.Context, in Intake) (p Patient, created bool, err error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)

	if err := s.validate(in); err != nil {
		return Patient{}, false, err
	}
	dob := dateOnly(in.DateOfBirth)

	existing, err := s.store.FindByNameAndDOB(ctx, in.FullName, dob)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, ErrNotFound):
		return Patient{}, false, fmt.Errorf("lookup patient: %w", err)
	}

	p = Patient{
		ID:          uuid.New(),
		FullName:    in.FullName,
		DateOfBirth: dob,
		Email:       in.Email,
		Phone:       in.Phone,
		Insurance:   in.Insurance,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.Create(ctx, p); err != nil {
		if !errors.Is(err, ErrAlreadyExists) {
			return Patient{}, false, fmt.Errorf("create patient: %w", err)
		}
		// Lost the race to a concurrent intake for the same person.
		existing, findErr := s.store.FindByNameAndDOB(ctx, in.FullName, dob)
		if findErr != nil {
			return Patient{}, false, fmt.Errorf("reload patient after conflict: %w", findErr)
		}
		return existing, false, nil
	}

	s.logger.Info("patient registered", "patient_id", p.ID)
	return p, true, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (Patient, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) validate(in Intake) error {
	if in.FullName == "" {
		return fmt.Errorf("%w: full name is required", ErrInvalidInput)
	}
	if in.DateOfBirth.IsZero() {
		return fmt.Errorf("%w: date of birth is required", ErrInvalidInput)
	}
	if dateOnly(in.DateOfBirth).After(dateOnly(s.now())) {
		return fmt.Errorf("%w: date of birth is in the future", ErrInvalidInput)
	}
	if in.Email != "" && !strings.Contains(in.Email, "@") {
		return fmt.Errorf("%w: email %q is malformed", ErrInvalidInput, in.Email)
	}
	return nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
