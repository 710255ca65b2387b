package patient

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
	pgUniqueViolation = "23505"
	nameDOBConstraint = "patients_name_dob_key"
)

type PgStore struct {
	db db.Querier
}

func NewPgStore(q db.Querier) *PgStore {
	return &PgStore{db: q}
}

const patientColumns = `id, full_name, date_of_birth, email, phone,
		insurance_carrier, insurance_member_id, insurance_group, created_at`

func scanPatient(row pgx.Row) (Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID,
		&p.FullName,
		&p.DateOfBirth,
		&p.Email,
		&p.Phone,
		&p.Insurance.Carrier,
		&p.Insurance.MemberID,
		&p.Insurance.Group,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Patient{}, ErrNotFound
		}
		return Patient{}, err
	}
	return p, nil
}

func (s *PgStore) Create(ctx context.Context, p Patient) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO patients (`+patientColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, p.ID, p.FullName, p.DateOfBirth, p.Email, p.Phone,
		p.Insurance.Carrier, p.Insurance.MemberID, p.Insurance.Group, p.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == nameDOBConstraint {
			return fmt.Errorf("patients: insert: %w", ErrAlreadyExists)
		}
		return fmt.Errorf("patients: insert: %w", err)
	}
	return nil
}

func (s *PgStore) Get(ctx context.Context, id uuid.UUID) (Patient, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE id = $1
	`, id)
	p, err := scanPatient(row)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Patient{}, fmt.Errorf("patients: get: %w", err)
	}
	return p, err
}

func (s *PgStore) FindByNameAndDOB(ctx context.Context, name string, dob time.Time) (Patient, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE lower(full_name) = lower($1)
		  AND date_of_birth = $2
		ORDER BY created_at
		LIMIT 1
	`, name, dob)
	p, err := scanPatient(row)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Patient{}, fmt.Errorf("patients: find: %w", err)
	}
	return p, err
}
