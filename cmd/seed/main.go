package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/config"
	"github.com/hackgods/clinic-appointment-scheduling/internal/db"
	"github.com/hackgods/clinic-appointment-scheduling/internal/logging"
	"github.com/hackgods/clinic-appointment-scheduling/internal/patient"
	redisclient "github.com/hackgods/clinic-appointment-scheduling/internal/redis"
)

const (
	patientCount = 200
	seedDays     = 5
	slotMinutes  = 30
)

var doctors = []string{
	"dr-rao",
	"dr-iyer",
	"dr-mehta",
	"dr-fernandes",
	"dr-okafor",
}

var carriers = []string{"Aetna", "Cigna", "UnitedHealthcare", "Blue Cross", "Humana", ""}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load error", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel).With("service", "seed")
	logger.Info("seed starting")

	if cfg.PostgresDSN == "" {
		logger.Error("POSTGRES_DSN is required")
		os.Exit(1)
	}
	if err := db.MigrateUp(cfg.PostgresDSN); err != nil {
		logger.Error("migration error", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	faker := gofakeit.New(0)

	patients := patient.NewService(patient.NewPgStore(pool), logger)
	ids, err := seedPatients(ctx, patients, faker, logger)
	if err != nil {
		logger.Error("seed patients", "error", err)
		os.Exit(1)
	}

	appointments := appointment.NewService(
		appointment.NewPgRepository(pool),
		appointment.NewPgNotificationLog(pool),
		redisclient.NewLocalLocker(cfg.LockWait),
		cfg,
		appointment.WithPatients(patients),
		appointment.WithLogger(logger),
	)
	booked, err := seedAppointments(ctx, appointments, cfg, ids, faker, logger)
	if err != nil {
		logger.Error("seed appointments", "error", err)
		os.Exit(1)
	}

	logger.Info("seed complete", "patients", len(ids), "appointments", booked)
}

func seedPatients(ctx context.Context, svc *patient.Service, faker *gofakeit.Faker, logger *logging.Logger) ([]uuid.UUID, error) {
	logger.Info("seeding patients", "count", patientCount)

	oldest := time.Now().AddDate(-90, 0, 0)
	youngest := time.Now().AddDate(-1, 0, 0)

	ids := make([]uuid.UUID, 0, patientCount)
	for i := 0; i < patientCount; i++ {
		carrier := carriers[faker.Number(0, len(carriers)-1)]
		in := patient.Intake{
			FullName:    faker.Name(),
			DateOfBirth: faker.DateRange(oldest, youngest),
			Email:       faker.Email(),
			Phone:       faker.Phone(),
		}
		if carrier != "" {
			in.Insurance = patient.Insurance{
				Carrier:  carrier,
				MemberID: faker.Numerify("MBR#########"),
				Group:    faker.Numerify("GRP####"),
			}
		}

		p, _, err := svc.Register(ctx, in)
		if err != nil {
			return nil, err
		}
		ids = append(ids, p.ID)
	}
	return ids, nil
}

// seedAppointments fills roughly half of each doctor's standard slots for the
// coming days. Re-running skips slots that are already taken.
func seedAppointments(ctx context.Context, svc *appointment.Service, cfg config.Config, patients []uuid.UUID, faker *gofakeit.Faker, logger *logging.Logger) (int, error) {
	open := appointment.ClockFromDuration(cfg.ClinicOpen)
	closing := appointment.ClockFromDuration(cfg.ClinicClose)
	tomorrow := appointment.DateOf(time.Now()).AddDate(0, 0, 1)

	booked := 0
	for day := 0; day < seedDays; day++ {
		date := tomorrow.AddDate(0, 0, day)
		for _, doctor := range doctors {
			for start := open; start+slotMinutes <= closing; start += slotMinutes {
				if !faker.Bool() {
					continue
				}
				_, err := svc.Book(ctx, appointment.BookingRequest{
					PatientID:       patients[faker.Number(0, len(patients)-1)],
					DoctorID:        doctor,
					Date:            date,
					Start:           start,
					DurationMinutes: slotMinutes,
				})
				if errors.Is(err, appointment.ErrSlotUnavailable) {
					continue
				}
				if err != nil {
					return booked, err
				}
				booked++
			}
		}
		logger.Info("appointments seeded", "date", date.Format(time.DateOnly), "total", booked)
	}
	return booked, nil
}
