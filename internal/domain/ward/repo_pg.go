package ward

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/icuward/internal/platform/db"
)

func wrapNoRows(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return err
}

// =========== Bed Repository ===========

type bedRepoPG struct{ pool *pgxpool.Pool }

func NewBedRepoPG(pool *pgxpool.Pool) BedRepository { return &bedRepoPG{pool: pool} }

func (r *bedRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const bedCols = `bed_number, room_type, ward, floor, status, patient_id,
	has_ventilator, has_monitor, has_oxygen_supply, is_isolation, near_nursing_station,
	last_sanitized, notes, created_at, updated_at`

func (r *bedRepoPG) scanBed(row pgx.Row) (*Bed, error) {
	var b Bed
	var roomType, status string
	err := row.Scan(&b.BedNumber, &roomType, &b.Ward, &b.Floor, &status, &b.PatientID,
		&b.Features.HasVentilator, &b.Features.HasMonitor, &b.Features.HasOxygenSupply,
		&b.Features.IsIsolation, &b.Features.NearNursingStation,
		&b.LastSanitized, &b.Notes, &b.CreatedAt, &b.UpdatedAt)
	b.RoomType = RoomType(roomType)
	b.Status = BedStatus(status)
	return &b, err
}

func (r *bedRepoPG) Create(ctx context.Context, b *Bed) error {
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO bed (bed_number, room_type, ward, floor, status, patient_id,
			has_ventilator, has_monitor, has_oxygen_supply, is_isolation, near_nursing_station,
			last_sanitized, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (bed_number) DO NOTHING
		RETURNING created_at, updated_at`,
		b.BedNumber, string(b.RoomType), b.Ward, b.Floor, string(b.Status), b.PatientID,
		b.Features.HasVentilator, b.Features.HasMonitor, b.Features.HasOxygenSupply,
		b.Features.IsIsolation, b.Features.NearNursingStation,
		b.LastSanitized, b.Notes)
	if err := row.Scan(&b.CreatedAt, &b.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: bed %d already exists", ErrConflict, b.BedNumber)
		}
		return err
	}
	return nil
}

func (r *bedRepoPG) GetByNumber(ctx context.Context, number int) (*Bed, error) {
	b, err := r.scanBed(r.conn(ctx).QueryRow(ctx, `SELECT `+bedCols+` FROM bed WHERE bed_number = $1`, number))
	if err != nil {
		return nil, wrapNoRows(err, fmt.Sprintf("bed %d", number))
	}
	return b, nil
}

func (r *bedRepoPG) Update(ctx context.Context, b *Bed) error {
	updated, err := r.scanBed(r.conn(ctx).QueryRow(ctx, `
		UPDATE bed SET room_type=$2, ward=$3, floor=$4,
			has_ventilator=$5, has_monitor=$6, has_oxygen_supply=$7, is_isolation=$8,
			near_nursing_station=$9, notes=$10, updated_at=NOW()
		WHERE bed_number = $1
		RETURNING `+bedCols,
		b.BedNumber, string(b.RoomType), b.Ward, b.Floor,
		b.Features.HasVentilator, b.Features.HasMonitor, b.Features.HasOxygenSupply,
		b.Features.IsIsolation, b.Features.NearNursingStation, b.Notes))
	if err != nil {
		return wrapNoRows(err, fmt.Sprintf("bed %d", b.BedNumber))
	}
	*b = *updated
	return nil
}

func (r *bedRepoPG) Delete(ctx context.Context, number int) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM bed WHERE bed_number = $1 AND status <> 'occupied'`, number)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByNumber(ctx, number); err != nil {
			return err
		}
		return fmt.Errorf("%w: bed %d is occupied", ErrConflict, number)
	}
	return nil
}

func (r *bedRepoPG) List(ctx context.Context, f BedFilter) ([]*Bed, error) {
	query := `SELECT ` + bedCols + ` FROM bed WHERE 1=1`
	var args []interface{}
	idx := 1
	if f.RoomType != "" {
		query += fmt.Sprintf(" AND room_type = $%d", idx)
		args = append(args, string(f.RoomType))
		idx++
	}
	if f.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, string(f.Status))
		idx++
	}
	if f.Ward != "" {
		query += fmt.Sprintf(" AND ward = $%d", idx)
		args = append(args, f.Ward)
		idx++
	}
	query += " ORDER BY bed_number"

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Bed
	for rows.Next() {
		b, err := r.scanBed(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, rows.Err()
}

// Transition runs the compare-and-swap as a single conditional UPDATE, so
// concurrent callers across processes cannot both win.
func (r *bedRepoPG) Transition(ctx context.Context, number int, t Transition) (*Bed, error) {
	b, err := r.scanBed(r.conn(ctx).QueryRow(ctx, `
		UPDATE bed SET status=$3, patient_id=$4,
			last_sanitized=COALESCE($5, last_sanitized), updated_at=NOW()
		WHERE bed_number = $1 AND status = $2
			AND ($6::uuid IS NULL OR patient_id = $6)
		RETURNING `+bedCols,
		number, string(t.From), string(t.To), t.Occupant, t.Sanitized, t.ExpectOccupant))
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	cur, err := r.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	return cur, ErrStatusMismatch
}

// =========== Patient Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository { return &patientRepoPG{pool: pool} }

func (r *patientRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const patientCols = `id, name, age, gender, status, room_type, bed_number, risk_score,
	diagnosis, assigned_doctor, assigned_nurse, allergies, notes,
	needs_ventilator, needs_isolation, admission_date, discharge_date, created_at, updated_at`

func (r *patientRepoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var status string
	var roomType *string
	err := row.Scan(&p.ID, &p.Name, &p.Age, &p.Gender, &status, &roomType, &p.BedNumber, &p.RiskScore,
		&p.Diagnosis, &p.AssignedDoctor, &p.AssignedNurse, &p.Allergies, &p.Notes,
		&p.NeedsVentilator, &p.NeedsIsolation, &p.AdmissionDate, &p.DischargeDate, &p.CreatedAt, &p.UpdatedAt)
	p.Status = Severity(status)
	if roomType != nil {
		rt := RoomType(*roomType)
		p.RoomType = &rt
	}
	return &p, err
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	var roomType *string
	if p.RoomType != nil {
		s := string(*p.RoomType)
		roomType = &s
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient (id, name, age, gender, status, room_type, bed_number, risk_score,
			diagnosis, assigned_doctor, assigned_nurse, allergies, notes,
			needs_ventilator, needs_isolation, admission_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		RETURNING created_at, updated_at`,
		p.ID, p.Name, p.Age, p.Gender, string(p.Status), roomType, p.BedNumber, p.RiskScore,
		p.Diagnosis, p.AssignedDoctor, p.AssignedNurse, p.Allergies, p.Notes,
		p.NeedsVentilator, p.NeedsIsolation, p.AdmissionDate).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
	if err != nil {
		return nil, wrapNoRows(err, "patient "+id.String())
	}
	return p, nil
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	updated, err := r.scanPatient(r.conn(ctx).QueryRow(ctx, `
		UPDATE patient SET name=$2, age=$3, gender=$4, status=$5, diagnosis=$6,
			assigned_doctor=$7, assigned_nurse=$8, allergies=$9, notes=$10,
			needs_ventilator=$11, needs_isolation=$12, updated_at=NOW()
		WHERE id = $1
		RETURNING `+patientCols,
		p.ID, p.Name, p.Age, p.Gender, string(p.Status), p.Diagnosis,
		p.AssignedDoctor, p.AssignedNurse, p.Allergies, p.Notes,
		p.NeedsVentilator, p.NeedsIsolation))
	if err != nil {
		return wrapNoRows(err, "patient "+p.ID.String())
	}
	*p = *updated
	return nil
}

func (r *patientRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: patient %s", ErrNotFound, id)
	}
	return nil
}

func (r *patientRepoPG) List(ctx context.Context, f PatientFilter, limit, offset int) ([]*Patient, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1
	if f.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, string(f.Status))
		idx++
	}
	if f.Active {
		where += " AND status <> 'discharged'"
	}
	if f.RoomType != "" {
		where += fmt.Sprintf(" AND room_type = $%d", idx)
		args = append(args, string(f.RoomType))
		idx++
	}
	if f.Search != "" {
		where += fmt.Sprintf(" AND name ILIKE $%d", idx)
		args = append(args, "%"+strings.ReplaceAll(f.Search, "%", `\%`)+"%")
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + patientCols + ` FROM patient` + where + ` ORDER BY admission_date DESC, id`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", idx, idx+1)
		args = append(args, limit, offset)
	}
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *patientRepoPG) exec(ctx context.Context, id uuid.UUID, sql string, args ...interface{}) error {
	tag, err := r.conn(ctx).Exec(ctx, sql, append([]interface{}{id}, args...)...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: patient %s", ErrNotFound, id)
	}
	return nil
}

func (r *patientRepoPG) SetPlacement(ctx context.Context, id uuid.UUID, pl *Placement) error {
	if pl == nil {
		return r.exec(ctx, id, `UPDATE patient SET bed_number=NULL, room_type=NULL, updated_at=NOW() WHERE id = $1`)
	}
	return r.exec(ctx, id, `UPDATE patient SET bed_number=$2, room_type=$3, updated_at=NOW() WHERE id = $1`,
		pl.BedNumber, string(pl.RoomType))
}

func (r *patientRepoPG) UpdateRisk(ctx context.Context, id uuid.UUID, score float64, status Severity) error {
	return r.exec(ctx, id, `UPDATE patient SET risk_score=$2, status=$3, updated_at=NOW() WHERE id = $1`,
		score, string(status))
}

func (r *patientRepoPG) Discharge(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.exec(ctx, id, `UPDATE patient SET status='discharged', discharge_date=$2, updated_at=NOW() WHERE id = $1`, at)
}
