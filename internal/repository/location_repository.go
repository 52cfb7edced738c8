package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jengzang/tourist-safety-backend/internal/database"
	"github.com/jengzang/tourist-safety-backend/internal/models"
	"github.com/jengzang/tourist-safety-backend/internal/spatial"
)

// StoredGeohashPrecision is the precision of location_samples.geohash (~5 m cells)
const StoredGeohashPrecision = 9

// geohashRangeEnd sorts after every base32 geohash character
const geohashRangeEnd = "{"

const locationColumns = `id, tourist_id, latitude, longitude, altitude, speed, heading, captured_at`

// LocationRepository handles database operations for location samples
type LocationRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewLocationRepository creates a new location repository
func NewLocationRepository(db *sql.DB) *LocationRepository {
	return &LocationRepository{db: db, now: time.Now}
}

// Insert stores a sample and sets its ID
func (r *LocationRepository) Insert(ctx context.Context, s *models.LocationSample) error {
	query := `
		INSERT INTO location_samples (
			tourist_id, latitude, longitude, altitude, speed, heading, geohash, captured_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		s.TouristID,
		s.Latitude,
		s.Longitude,
		s.Altitude,
		s.Speed,
		s.Heading,
		spatial.EncodeGeohash(s.Latitude, s.Longitude, StoredGeohashPrecision),
		s.CapturedAt.UnixMilli(),
		r.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert location sample: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	s.ID = id
	return nil
}

// RecentLocations returns at most w.MaxSamples samples of touristID captured within
// w.MaxAge before w.Until, oldest first
func (r *LocationRepository) RecentLocations(ctx context.Context, touristID string, w models.Window) ([]models.LocationSample, error) {
	until := w.Until
	if until.IsZero() {
		until = r.now()
	}
	limit := w.MaxSamples
	if limit <= 0 {
		limit = 10
	}

	query := `SELECT ` + locationColumns + `
		FROM location_samples
		WHERE tourist_id = ? AND captured_at >= ? AND captured_at <= ?
		ORDER BY captured_at DESC, id DESC
		LIMIT ?`

	samples, err := r.query(ctx, query, touristID, until.Add(-w.MaxAge).UnixMilli(), until.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent locations: %w", err)
	}
	// newest first from the query
	for i, j := 0, len(samples)-1; i < j; i, j = i+1, j-1 {
		samples[i], samples[j] = samples[j], samples[i]
	}
	return samples, nil
}

// SamplesSince returns all samples captured at or after since, ordered by tourist and time
func (r *LocationRepository) SamplesSince(ctx context.Context, since time.Time) ([]models.LocationSample, error) {
	query := `SELECT ` + locationColumns + `
		FROM location_samples
		WHERE captured_at >= ?
		ORDER BY tourist_id, captured_at, id`

	samples, err := r.query(ctx, query, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to query samples since %s: %w", since.Format(time.RFC3339), err)
	}
	return samples, nil
}

// CountNearbySamples counts samples of other tourists within radius meters of (lat, lon)
// captured in [since, until]
func (r *LocationRepository) CountNearbySamples(ctx context.Context, excludeTourist string, lat, lon, radius float64, since, until time.Time) (int, error) {
	precision := spatial.GeohashPrecisionCovering(radius)
	cells := spatial.GeohashNeighbors(lat, lon, precision)
	sort.Strings(cells)

	ranges := make([]string, 0, len(cells))
	args := make([]interface{}, 0, len(cells)*2+3)
	for _, c := range cells {
		ranges = append(ranges, "(geohash >= ? AND geohash < ?)")
		args = append(args, c, c+geohashRangeEnd)
	}
	args = append(args, since.UnixMilli(), until.UnixMilli(), excludeTourist)

	query := `SELECT latitude, longitude
		FROM location_samples
		WHERE (` + strings.Join(ranges, " OR ") + `)
		AND captured_at >= ? AND captured_at <= ?
		AND tourist_id <> ?`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to query nearby samples: %w", err)
	}
	defer rows.Close()

	center := spatial.Point{Lat: lat, Lon: lon}
	count := 0
	for rows.Next() {
		var p spatial.Point
		if err := rows.Scan(&p.Lat, &p.Lon); err != nil {
			return 0, fmt.Errorf("failed to scan nearby sample: %w", err)
		}
		if spatial.Distance(center, p) <= radius {
			count++
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to iterate nearby samples: %w", err)
	}
	return count, nil
}

// DeleteBefore removes samples captured before cutoff and returns how many were removed
func (r *LocationRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM location_samples WHERE captured_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old samples: %w", err)
	}
	return result.RowsAffected()
}

func (r *LocationRepository) query(ctx context.Context, query string, args ...interface{}) ([]models.LocationSample, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []models.LocationSample
	for rows.Next() {
		var (
			s          models.LocationSample
			altitude   sql.NullFloat64
			speed      sql.NullFloat64
			heading    sql.NullFloat64
			capturedAt int64
		)
		if err := rows.Scan(&s.ID, &s.TouristID, &s.Latitude, &s.Longitude, &altitude, &speed, &heading, &capturedAt); err != nil {
			return nil, fmt.Errorf("failed to scan location sample: %w", err)
		}
		s.Altitude = nullFloat(altitude)
		s.Speed = nullFloat(speed)
		s.Heading = nullFloat(heading)
		s.CapturedAt = database.UnixMilli(capturedAt)
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
