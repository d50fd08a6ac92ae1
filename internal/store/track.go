package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Bucknalla/go-truck-nav/geo"
	"github.com/Bucknalla/go-truck-nav/nav"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Breadcrumb is one position of a vehicle on the fleet live map.
type Breadcrumb struct {
	ID        uint    `gorm:"primaryKey"`
	VehicleID string  `gorm:"index:idx_vehicle_time,priority:1;not null"`
	SessionID string  `gorm:"index"`
	Latitude  float64 `gorm:"not null"`
	Longitude float64 `gorm:"not null"`
	Geom      string  `gorm:"type:geometry(Point,4326);not null"`
	SpeedKmh  *float64
	Heading   *float64
	CreatedAt time.Time `gorm:"index:idx_vehicle_time,priority:2;not null"`
}

func (Breadcrumb) TableName() string {
	return "breadcrumbs"
}

// Connect opens the breadcrumb database, retrying while it comes up, and
// makes sure PostGIS and the table exist.
func Connect(dsn string, attempts int, delay time.Duration) (*gorm.DB, error) {
	var lastErr error
	for i := 1; i <= attempts; i++ {
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		if err == nil {
			if err := bootstrap(db); err != nil {
				return nil, err
			}
			return db, nil
		}

		lastErr = err
		time.Sleep(delay)
	}

	return nil, fmt.Errorf("db connect failed after %d attempts: %w", attempts, lastErr)
}

func bootstrap(db *gorm.DB) error {
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS postgis").Error; err != nil {
		return err
	}
	return db.AutoMigrate(&Breadcrumb{})
}

// TrackRepository stores and queries breadcrumbs.
type TrackRepository struct {
	db *gorm.DB
}

func NewTrackRepository(db *gorm.DB) *TrackRepository {
	return &TrackRepository{db: db}
}

func pointEWKT(c geo.Coordinate) string {
	return fmt.Sprintf("SRID=4326;POINT(%f %f)", c.Lon, c.Lat)
}

// Record stores a position sample of a vehicle.
func (r *TrackRepository) Record(ctx context.Context, vehicleID, sessionID string, s nav.PositionSample) error {
	ts := s.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	return r.db.WithContext(ctx).Exec(
		`INSERT INTO breadcrumbs (vehicle_id, session_id, latitude, longitude, geom, speed_kmh, heading, created_at)
		 VALUES (?, ?, ?, ?, ST_GeomFromEWKT(?), ?, ?, ?)`,
		vehicleID, sessionID, s.Coordinate.Lat, s.Coordinate.Lon, pointEWKT(s.Coordinate), s.SpeedKmh, s.Heading, ts,
	).Error
}

// Latest returns the last known position of a vehicle.
func (r *TrackRepository) Latest(ctx context.Context, vehicleID string) (*Breadcrumb, error) {
	var b Breadcrumb
	err := r.db.WithContext(ctx).
		Where("vehicle_id = ?", vehicleID).
		Order("created_at DESC").
		Limit(1).
		Find(&b).Error
	if err != nil {
		return nil, err
	}
	if b.ID == 0 {
		return nil, nil
	}
	return &b, nil
}

// PathGeoJSON returns the driven path of a vehicle between start and end as
// a GeoJSON LineString, or nil when there is none.
func (r *TrackRepository) PathGeoJSON(ctx context.Context, vehicleID string, start, end time.Time) (*string, error) {
	var geojson sql.NullString

	err := r.db.WithContext(ctx).Raw(
		`SELECT ST_AsGeoJSON(ST_MakeLine(geom ORDER BY created_at))
		 FROM breadcrumbs
		 WHERE vehicle_id = ? AND created_at >= ? AND created_at < ?`,
		vehicleID, start, end,
	).Scan(&geojson).Error
	if err != nil {
		return nil, err
	}

	if !geojson.Valid {
		return nil, nil
	}
	return &geojson.String, nil
}
