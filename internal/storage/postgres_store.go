package storage

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/trip-coordinator/internal/models"
)

// PostgresStore persists trips in two tables: trips and trip_points.
// Status transitions use conditional updates so double-accept and
// double-complete races lose cleanly.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Create(ctx context.Context, t *models.Trip) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO trips(id, rider_id, pickup_lat, pickup_lng, dest_lat, dest_lng,
			vehicle_id, vehicle_class, status, estimate, payment_method, payment_status, created_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		t.ID, t.RiderID, t.Pickup.Lat, t.Pickup.Lng, t.Destination.Lat, t.Destination.Lng,
		nullStr(t.VehicleID), t.VehicleClass, string(t.Status), t.Estimate,
		t.PaymentMethod, t.PaymentStatus, t.CreatedAt)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*models.Trip, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, rider_id, pickup_lat, pickup_lng, dest_lat, dest_lng,
			COALESCE(vehicle_id, ''), vehicle_class, status, estimate,
			payment_method, payment_status, COALESCE(payment_ref, ''), paid_at,
			COALESCE(cancel_reason, ''), COALESCE(cancel_note, ''), COALESCE(cancelled_by, ''),
			created_at, arrived_at, picked_at, started_at, completed_at, cancelled_at,
			final_price, final_distance_km, final_duration_sec, final_traffic_factor, final_surge
		FROM trips WHERE id = $1`, id)

	var t models.Trip
	var status string
	var finalPrice, finalDuration sql.NullInt64
	var finalKm, finalTraffic, finalSurge sql.NullFloat64
	err := row.Scan(&t.ID, &t.RiderID, &t.Pickup.Lat, &t.Pickup.Lng, &t.Destination.Lat, &t.Destination.Lng,
		&t.VehicleID, &t.VehicleClass, &status, &t.Estimate,
		&t.PaymentMethod, &t.PaymentStatus, &t.PaymentRef, &t.PaidAt,
		&t.CancelReason, &t.CancelNote, &t.CancelledBy,
		&t.CreatedAt, &t.ArrivedAt, &t.PickedAt, &t.StartedAt, &t.CompletedAt, &t.CancelledAt,
		&finalPrice, &finalKm, &finalDuration, &finalTraffic, &finalSurge)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.Status = models.Status(status)
	if finalPrice.Valid {
		t.Fare = &models.FareSnapshot{
			Price:         int(finalPrice.Int64),
			DistanceKm:    finalKm.Float64,
			DurationSec:   int(finalDuration.Int64),
			TrafficFactor: finalTraffic.Float64,
			Surge:         finalSurge.Float64,
		}
	}
	if t.Path, err = p.loadPath(ctx, id); err != nil {
		return nil, err
	}
	return &t, nil
}

func (p *PostgresStore) loadPath(ctx context.Context, id string) ([]models.PathPoint, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT lat, lng, ts FROM trip_points WHERE trip_id = $1 ORDER BY ts ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var path []models.PathPoint
	for rows.Next() {
		var pt models.PathPoint
		if err := rows.Scan(&pt.Lat, &pt.Lng, &pt.TS); err != nil {
			return nil, err
		}
		path = append(path, pt)
	}
	return path, rows.Err()
}

func (p *PostgresStore) Update(ctx context.Context, t *models.Trip) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE trips SET vehicle_id=$1, status=$2, estimate=$3,
			payment_method=$4, payment_status=$5, payment_ref=$6, paid_at=$7,
			cancel_reason=$8, cancel_note=$9, cancelled_by=$10,
			arrived_at=$11, picked_at=$12, started_at=$13, completed_at=$14, cancelled_at=$15
		WHERE id=$16`,
		nullStr(t.VehicleID), string(t.Status), t.Estimate,
		t.PaymentMethod, t.PaymentStatus, nullStr(t.PaymentRef), t.PaidAt,
		nullStr(t.CancelReason), nullStr(t.CancelNote), nullStr(t.CancelledBy),
		t.ArrivedAt, t.PickedAt, t.StartedAt, t.CompletedAt, t.CancelledAt, t.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (p *PostgresStore) SetStatusIf(ctx context.Context, id string, from, to models.Status, at time.Time) error {
	col := timestampColumn(to)
	var res sql.Result
	var err error
	if col == "" {
		res, err = p.db.ExecContext(ctx,
			`UPDATE trips SET status=$1 WHERE id=$2 AND status=$3`, string(to), id, string(from))
	} else {
		res, err = p.db.ExecContext(ctx,
			`UPDATE trips SET status=$1, `+col+`=$2 WHERE id=$3 AND status=$4`,
			string(to), at, id, string(from))
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// distinguish unknown id from a lost race
		var exists bool
		if err := p.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM trips WHERE id=$1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

func timestampColumn(to models.Status) string {
	switch to {
	case models.StatusEnroute:
		return "started_at"
	case models.StatusCompleted:
		return "completed_at"
	case models.StatusCancelled:
		return "cancelled_at"
	}
	return ""
}

func (p *PostgresStore) AttachVehicle(ctx context.Context, id, vehicleID string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE trips SET vehicle_id=$1 WHERE id=$2`, vehicleID, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (p *PostgresStore) SetEstimate(ctx context.Context, id string, estimate int) error {
	res, err := p.db.ExecContext(ctx, `UPDATE trips SET estimate=$1 WHERE id=$2`, estimate, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (p *PostgresStore) AppendPathPoint(ctx context.Context, id string, pt models.PathPoint) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO trip_points(trip_id, lat, lng, ts) VALUES($1,$2,$3,$4)`,
		id, pt.Lat, pt.Lng, pt.TS)
	return err
}

func (p *PostgresStore) SetFinalFare(ctx context.Context, id string, f models.FareSnapshot) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE trips SET final_price=$1, final_distance_km=$2, final_duration_sec=$3,
			final_traffic_factor=$4, final_surge=$5
		WHERE id=$6 AND final_price IS NULL`,
		f.Price, f.DistanceKm, f.DurationSec, f.TrafficFactor, f.Surge, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

func (p *PostgresStore) ActiveTripForVehicle(ctx context.Context, vehicleID string) (*models.Trip, error) {
	var id string
	err := p.db.QueryRowContext(ctx, `
		SELECT id FROM trips
		WHERE vehicle_id = $1 AND status IN ('accepted','enroute')
		ORDER BY created_at DESC LIMIT 1`, vehicleID).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p.Get(ctx, id)
}

func (p *PostgresStore) PendingCreatedSince(ctx context.Context, since time.Time) ([]*models.Trip, error) {
	return p.queryTrips(ctx, `
		SELECT id, pickup_lat, pickup_lng, status, created_at FROM trips
		WHERE status IN ('pending','payment_pending') AND created_at >= $1`, since)
}

func (p *PostgresStore) CompletedForVehicle(ctx context.Context, vehicleID string) ([]*models.Trip, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id FROM trips
		WHERE vehicle_id = $1 AND status = 'completed'
		ORDER BY created_at DESC`, vehicleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]*models.Trip, 0, len(ids))
	for _, id := range ids {
		t, err := p.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// queryTrips loads the thin projection used by the surge estimator.
func (p *PostgresStore) queryTrips(ctx context.Context, q string, args ...any) ([]*models.Trip, error) {
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Trip
	for rows.Next() {
		var t models.Trip
		var status string
		if err := rows.Scan(&t.ID, &t.Pickup.Lat, &t.Pickup.Lng, &status, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Status = models.Status(status)
		out = append(out, &t)
	}
	return out, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
