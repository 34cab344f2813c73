package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"github.com/mgonzalezm-dev/vet-clinic/internal/domain"
	"github.com/mgonzalezm-dev/vet-clinic/internal/store"
)

const noOverlapConstraint = "appointments_vet_no_overlap"

type SchedulingRepo struct {
	db *bun.DB
}

func NewSchedulingRepo(db *bun.DB) *SchedulingRepo {
	return &SchedulingRepo{db: db}
}

// InVetCalendar runs fn inside a transaction holding the vet's advisory lock,
// so check and commit against one calendar are serialized while calendars of
// different vets proceed independently.
func (r *SchedulingRepo) InVetCalendar(ctx context.Context, vetID string, fn func(ctx context.Context, tx store.CalendarTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockVetCalendar(ctx, tx, vetID); err != nil {
			return err
		}
		return fn(ctx, calendarTx{db: tx})
	})
}

func lockVetCalendar(ctx context.Context, tx bun.Tx, vetID string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", vetID).Exec(ctx)
	return err
}

func (r *SchedulingRepo) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return getAppointment(ctx, r.db, id)
}

func (r *SchedulingRepo) ListAppointments(ctx context.Context, vetID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	return listAppointments(ctx, r.db, vetID, windowStart, windowEnd, false)
}

func (r *SchedulingRepo) ListScheduled(ctx context.Context, vetID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	return listAppointments(ctx, r.db, vetID, windowStart, windowEnd, true)
}

func (r *SchedulingRepo) ListRules(ctx context.Context, vetID string) ([]domain.AvailabilityRule, error) {
	return listRules(ctx, r.db, vetID)
}

func (r *SchedulingRepo) ListExceptions(ctx context.Context, vetID string, from, to time.Time) ([]domain.AvailabilityException, error) {
	return listExceptions(ctx, r.db, vetID, from, to)
}

func (r *SchedulingRepo) CreateRule(ctx context.Context, rule domain.AvailabilityRule) (domain.AvailabilityRule, error) {
	m := rule
	if _, err := r.db.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.AvailabilityRule{}, err
	}
	return m, nil
}

func (r *SchedulingRepo) CreateException(ctx context.Context, ex domain.AvailabilityException) (domain.AvailabilityException, error) {
	m := ex
	if _, err := r.db.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.AvailabilityException{}, err
	}
	return m, nil
}

type calendarTx struct {
	db bun.Tx
}

func (t calendarTx) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return getAppointment(ctx, t.db, id)
}

func (t calendarTx) InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := domain.Appointment{
		ID:        appt.ID,
		VetID:     appt.VetID,
		PetID:     appt.PetID,
		StartTime: appt.StartTime,
		EndTime:   appt.EndTime,
		Status:    domain.StatusScheduled,
	}

	_, err := t.db.NewInsert().Model(&m).Exec(ctx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23P01" && pgErr.ConstraintName == noOverlapConstraint {
			return domain.Appointment{}, store.ErrOverlap
		}
		return domain.Appointment{}, err
	}
	return m, nil
}

func (t calendarTx) UpdateAppointment(ctx context.Context, appt domain.Appointment, expectedVersion int64) (domain.Appointment, error) {
	m := domain.Appointment{
		ID:        appt.ID,
		StartTime: appt.StartTime,
		EndTime:   appt.EndTime,
		Status:    appt.Status,
		Version:   expectedVersion + 1,
	}

	res, err := t.db.NewUpdate().
		Model(&m).
		Column("start_time", "end_time", "status", "version", "updated_at").
		Where("id = ?", m.ID).
		Where("version = ?", expectedVersion).
		Exec(ctx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23P01" && pgErr.ConstraintName == noOverlapConstraint {
			return domain.Appointment{}, store.ErrOverlap
		}
		return domain.Appointment{}, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Appointment{}, err
	}
	if affected == 0 {
		if _, err := getAppointment(ctx, t.db, m.ID); err != nil {
			return domain.Appointment{}, err
		}
		return domain.Appointment{}, store.ErrVersionMismatch
	}

	return getAppointment(ctx, t.db, m.ID)
}

func (t calendarTx) ListScheduled(ctx context.Context, vetID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	return listAppointments(ctx, t.db, vetID, windowStart, windowEnd, true)
}

func (t calendarTx) ListRules(ctx context.Context, vetID string) ([]domain.AvailabilityRule, error) {
	return listRules(ctx, t.db, vetID)
}

func (t calendarTx) ListExceptions(ctx context.Context, vetID string, from, to time.Time) ([]domain.AvailabilityException, error) {
	return listExceptions(ctx, t.db, vetID, from, to)
}

func getAppointment(ctx context.Context, db bun.IDB, id uuid.UUID) (domain.Appointment, error) {
	var a domain.Appointment
	err := db.NewSelect().
		Model(&a).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Appointment{}, store.ErrNotFound
		}
		return domain.Appointment{}, err
	}
	return a, nil
}

func listAppointments(ctx context.Context, db bun.IDB, vetID string, windowStart, windowEnd time.Time, scheduledOnly bool) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	q := db.NewSelect().
		Model(&rows).
		Where("vet_id = ?", vetID).
		Where("start_time < ?", windowEnd).
		Where("end_time > ?", windowStart)
	if scheduledOnly {
		q = q.Where("status = ?", domain.StatusScheduled)
	}
	if err := q.OrderExpr("start_time ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func listRules(ctx context.Context, db bun.IDB, vetID string) ([]domain.AvailabilityRule, error) {
	var rows []domain.AvailabilityRule
	err := db.NewSelect().
		Model(&rows).
		Where("vet_id = ?", vetID).
		OrderExpr("weekday ASC, start_minute ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func listExceptions(ctx context.Context, db bun.IDB, vetID string, from, to time.Time) ([]domain.AvailabilityException, error) {
	var rows []domain.AvailabilityException
	err := db.NewSelect().
		Model(&rows).
		Where("vet_id = ?", vetID).
		Where("date >= ?", domain.DateOf(from)).
		Where("date <= ?", domain.DateOf(to)).
		OrderExpr("date ASC, start_minute ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
