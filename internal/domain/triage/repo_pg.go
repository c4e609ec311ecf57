package triage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/groot/groot/internal/platform/db"
)

// -- Assessment Repository --

const assessmentColumns = `id, kind, doctor_id, patient_data, outcome, created_at`

type assessmentRepoPG struct {
	q db.Querier
}

func NewAssessmentRepo(q db.Querier) AssessmentRepository {
	return &assessmentRepoPG{q: q}
}

func (r *assessmentRepoPG) Create(ctx context.Context, a *Assessment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return r.q.QueryRow(ctx, `
		INSERT INTO assessments (id, kind, doctor_id, patient_data, outcome)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		a.ID, a.Kind, a.DoctorID, []byte(a.PatientData), []byte(a.Outcome),
	).Scan(&a.CreatedAt)
}

func (r *assessmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Assessment, error) {
	return scanAssessment(r.q.QueryRow(ctx, `SELECT `+assessmentColumns+` FROM assessments WHERE id = $1`, id))
}

func (r *assessmentRepoPG) List(ctx context.Context, kind string, limit, offset int) ([]*Assessment, int, error) {
	where := ``
	var args []interface{}
	if kind != "" {
		where = ` WHERE kind = $1`
		args = append(args, kind)
	}

	var total int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM assessments`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM assessments%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		assessmentColumns, where, len(args)+1, len(args)+2)
	rows, err := r.q.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func scanAssessment(row pgx.Row) (*Assessment, error) {
	var a Assessment
	var patient, outcome []byte
	err := row.Scan(&a.ID, &a.Kind, &a.DoctorID, &patient, &outcome, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.PatientData = patient
	a.Outcome = outcome
	return &a, nil
}

// -- Catalog Repository --

type catalogRepoPG struct {
	pool *pgxpool.Pool
}

func NewCatalogRepo(pool *pgxpool.Pool) CatalogRepository {
	return &catalogRepoPG{pool: pool}
}

func (r *catalogRepoPG) Available(ctx context.Context, region, facility, category string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM inventory
			WHERE LOWER(region) = LOWER($1) AND LOWER(facility) = LOWER($2)
			  AND LOWER(category) = LOWER($3) AND available_stock > 0
		)`, region, facility, category).Scan(&ok)
	return ok, err
}

func (r *catalogRepoPG) Cost(ctx context.Context, region, facility, category string) (*CostEntry, error) {
	var e CostEntry
	err := r.pool.QueryRow(ctx, `
		SELECT region, facility, category, base_cost, nhif_covered, insurance_copay, out_of_pocket
		FROM treatment_costs
		WHERE LOWER(region) = LOWER($1) AND LOWER(facility) = LOWER($2) AND LOWER(category) = LOWER($3)
		ORDER BY id
		LIMIT 1`, region, facility, category).
		Scan(&e.Region, &e.Facility, &e.Category, &e.BaseCost, &e.NHIFCovered, &e.InsuranceCoPay, &e.OutOfPocket)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *catalogRepoPG) Replace(ctx context.Context, inventory []InventoryItem, costs []CostEntry) error {
	return db.InTx(ctx, r.pool, func(q db.Querier) error {
		if _, err := q.Exec(ctx, `DELETE FROM inventory`); err != nil {
			return fmt.Errorf("clear inventory: %w", err)
		}
		if _, err := q.Exec(ctx, `DELETE FROM treatment_costs`); err != nil {
			return fmt.Errorf("clear treatment costs: %w", err)
		}
		for _, it := range inventory {
			if _, err := q.Exec(ctx,
				`INSERT INTO inventory (region, facility, category, available_stock) VALUES ($1, $2, $3, $4)`,
				it.Region, it.Facility, it.Category, it.AvailableStock); err != nil {
				return fmt.Errorf("insert inventory: %w", err)
			}
		}
		for _, c := range costs {
			if _, err := q.Exec(ctx, `
				INSERT INTO treatment_costs (region, facility, category, base_cost, nhif_covered, insurance_copay, out_of_pocket)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				c.Region, c.Facility, c.Category, c.BaseCost, c.NHIFCovered, c.InsuranceCoPay, c.OutOfPocket); err != nil {
				return fmt.Errorf("insert treatment cost: %w", err)
			}
		}
		return nil
	})
}
