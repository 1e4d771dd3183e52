package monitoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/icuward/internal/domain/risk"
	"github.com/ehr/icuward/internal/domain/ward"
	"github.com/ehr/icuward/internal/platform/db"
)

// =========== Vitals Repository ===========

type vitalsRepoPG struct{ pool *pgxpool.Pool }

func NewVitalsRepoPG(pool *pgxpool.Pool) VitalsRepository { return &vitalsRepoPG{pool: pool} }

func (r *vitalsRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const vitalsCols = `id, patient_id, heart_rate, spo2, temperature, bp_systolic, bp_diastolic,
	respiratory_rate, risk_score, risk_level, risk_source, recorded_at`

func (r *vitalsRepoPG) scanReading(row pgx.Row) (*VitalsReading, error) {
	var v VitalsReading
	var level, source string
	err := row.Scan(&v.ID, &v.PatientID, &v.HeartRate, &v.SpO2, &v.Temperature,
		&v.BloodPressureSystolic, &v.BloodPressureDiastolic, &v.RespiratoryRate,
		&v.RiskScore, &level, &source, &v.Timestamp)
	v.RiskLevel = risk.Level(level)
	v.RiskSource = risk.Source(source)
	return &v, err
}

func (r *vitalsRepoPG) Append(ctx context.Context, v *VitalsReading) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO vitals_reading (`+vitalsCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		v.ID, v.PatientID, v.HeartRate, v.SpO2, v.Temperature,
		v.BloodPressureSystolic, v.BloodPressureDiastolic, v.RespiratoryRate,
		v.RiskScore, string(v.RiskLevel), string(v.RiskSource), v.Timestamp)
	return err
}

func (r *vitalsRepoPG) History(ctx context.Context, patientID uuid.UUID, limit int) ([]*VitalsReading, error) {
	query := `SELECT ` + vitalsCols + ` FROM vitals_reading WHERE patient_id = $1 ORDER BY recorded_at DESC, seq DESC`
	args := []interface{}{patientID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	return r.query(ctx, query, args...)
}

func (r *vitalsRepoPG) Latest(ctx context.Context, patientIDs []uuid.UUID) (map[uuid.UUID]*VitalsReading, error) {
	out := make(map[uuid.UUID]*VitalsReading, len(patientIDs))
	if len(patientIDs) == 0 {
		return out, nil
	}
	items, err := r.query(ctx, `
		SELECT DISTINCT ON (patient_id) `+vitalsCols+`
		FROM vitals_reading WHERE patient_id = ANY($1)
		ORDER BY patient_id, recorded_at DESC, seq DESC`, patientIDs)
	if err != nil {
		return nil, err
	}
	for _, v := range items {
		out[v.PatientID] = v
	}
	return out, nil
}

func (r *vitalsRepoPG) query(ctx context.Context, sql string, args ...interface{}) ([]*VitalsReading, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*VitalsReading
	for rows.Next() {
		v, err := r.scanReading(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, rows.Err()
}

// =========== Alert Repository ===========

type alertRepoPG struct{ pool *pgxpool.Pool }

func NewAlertRepoPG(pool *pgxpool.Pool) AlertRepository { return &alertRepoPG{pool: pool} }

func (r *alertRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const alertCols = `id, patient_id, patient_name, bed_number, message, severity, type,
	acknowledged, acknowledged_by, acknowledged_at, raised_at`

func (r *alertRepoPG) scanAlert(row pgx.Row) (*Alert, error) {
	var a Alert
	var severity, typ string
	var by *string
	err := row.Scan(&a.ID, &a.PatientID, &a.PatientName, &a.BedNumber, &a.Message, &severity, &typ,
		&a.Acknowledged, &by, &a.AcknowledgedAt, &a.Time)
	a.Severity = AlertSeverity(severity)
	a.Type = AlertType(typ)
	if by != nil {
		a.AcknowledgedBy = *by
	}
	return &a, err
}

func (r *alertRepoPG) Create(ctx context.Context, a *Alert) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO alert (id, patient_id, patient_name, bed_number, message, severity, type, raised_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		a.ID, a.PatientID, a.PatientName, a.BedNumber, a.Message, string(a.Severity), string(a.Type), a.Time)
	return err
}

func (r *alertRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Alert, error) {
	a, err := r.scanAlert(r.conn(ctx).QueryRow(ctx, `SELECT `+alertCols+` FROM alert WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: alert %s", ward.ErrNotFound, id)
		}
		return nil, err
	}
	return a, nil
}

func (r *alertRepoPG) List(ctx context.Context, f AlertFilter, limit int) ([]*Alert, error) {
	query := `SELECT ` + alertCols + ` FROM alert WHERE 1=1`
	var args []interface{}
	idx := 1
	if f.Severity != "" {
		query += fmt.Sprintf(" AND severity = $%d", idx)
		args = append(args, string(f.Severity))
		idx++
	}
	if f.Acknowledged != nil {
		query += fmt.Sprintf(" AND acknowledged = $%d", idx)
		args = append(args, *f.Acknowledged)
		idx++
	}
	if f.PatientID != nil {
		query += fmt.Sprintf(" AND patient_id = $%d", idx)
		args = append(args, *f.PatientID)
		idx++
	}
	query += " ORDER BY raised_at DESC, seq DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", idx)
		args = append(args, limit)
	}

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Alert
	for rows.Next() {
		a, err := r.scanAlert(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

// Acknowledge only writes rows that are still unacknowledged, which keeps
// the first acknowledger on record under concurrent requests.
func (r *alertRepoPG) Acknowledge(ctx context.Context, id uuid.UUID, by string, at time.Time) (*Alert, bool, error) {
	a, err := r.scanAlert(r.conn(ctx).QueryRow(ctx, `
		UPDATE alert SET acknowledged = TRUE, acknowledged_by = $2, acknowledged_at = $3
		WHERE id = $1 AND NOT acknowledged
		RETURNING `+alertCols, id, by, at))
	if err == nil {
		return a, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}
	cur, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return cur, false, nil
}
