package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/jamo/immich-gps/internal/models"
)

const (
	settingAPIKey        = "api_key"
	settingCurrentPeriod = "current_period"
	settingTimezone      = "current_timezone"

	// MaxAuditEntries is how many pastes the audit log keeps
	MaxAuditEntries = 100
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT
	);

	CREATE TABLE IF NOT EXISTS photos (
		id TEXT PRIMARY KEY,
		position INTEGER,
		filename TEXT,
		created_at TIMESTAMP,
		analyzed INTEGER DEFAULT 0,
		has_gps INTEGER DEFAULT 0,
		latitude REAL,
		longitude REAL,
		country TEXT,
		city TEXT,
		altitude REAL,
		gps_captured_at TIMESTAMP,
		raw TEXT
	);

	CREATE TABLE IF NOT EXISTS gps_actions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT UNIQUE,
		timestamp TIMESTAMP,
		action TEXT,
		target_id TEXT,
		target_filename TEXT,
		source_id TEXT,
		source_filename TEXT,
		latitude REAL,
		longitude REAL,
		country TEXT,
		city TEXT,
		altitude REAL
	);

	CREATE INDEX IF NOT EXISTS idx_photos_position ON photos(position);
	`

	_, err := db.conn.Exec(schema)
	return err
}

func (db *DB) getSetting(key string) (string, error) {
	var value sql.NullString
	err := db.conn.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value.String, nil
}

func setSetting(e execer, key, value string) error {
	_, err := e.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func deleteSetting(e execer, key string) error {
	_, err := e.Exec(`DELETE FROM settings WHERE key = ?`, key)
	return err
}

// LoadCredential returns the stored API key, empty when none is stored
func (db *DB) LoadCredential() (string, error) {
	return db.getSetting(settingAPIKey)
}

func (db *DB) SaveCredential(key string) error {
	return setSetting(db.conn, settingAPIKey, key)
}

func (db *DB) ClearCredential() error {
	return deleteSetting(db.conn, settingAPIKey)
}

// ReplacePhotos stores the photos of a newly loaded period in list order,
// dropping the previous ones. Times are stored in UTC along with the zone
// the photos were resolved in, which LoadPhotos restores.
func (db *DB) ReplacePhotos(p models.Period, photos []models.Photo) error {
	return db.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM photos`); err != nil {
			return err
		}

		stmt, err := tx.Prepare(`
			INSERT INTO photos (
				id, position, filename, created_at, analyzed, has_gps,
				latitude, longitude, country, city, altitude, gps_captured_at, raw
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, photo := range photos {
			g := gpsColumns(photo)
			_, err := stmt.Exec(
				photo.ID, i, photo.Filename, photo.CreatedAt.UTC(), photo.Analyzed, photo.HasGPS,
				g.lat, g.lon, g.country, g.city, g.alt, g.capturedAt, rawColumn(photo.Raw),
			)
			if err != nil {
				return err
			}
		}

		period, err := json.Marshal(p)
		if err != nil {
			return err
		}
		if err := setSetting(tx, settingCurrentPeriod, string(period)); err != nil {
			return err
		}
		zone := time.UTC.String()
		if len(photos) > 0 {
			zone = photos[0].CreatedAt.Location().String()
		}
		return setSetting(tx, settingTimezone, zone)
	})
}

// SavePhotos updates the analysis state of photos already stored
func (db *DB) SavePhotos(photos []models.Photo) error {
	return db.withTx(func(tx *sql.Tx) error {
		for _, photo := range photos {
			if err := updatePhoto(tx, photo); err != nil {
				return err
			}
		}
		return nil
	})
}

// SavePaste stores a pasted coordinate and its audit entry in one
// transaction
func (db *DB) SavePaste(photo models.Photo, entry models.AuditEntry) error {
	return db.withTx(func(tx *sql.Tx) error {
		if err := updatePhoto(tx, photo); err != nil {
			return err
		}
		return insertAudit(tx, entry)
	})
}

func updatePhoto(e execer, photo models.Photo) error {
	g := gpsColumns(photo)
	_, err := e.Exec(`
		UPDATE photos SET
			analyzed = ?, has_gps = ?, latitude = ?, longitude = ?,
			country = ?, city = ?, altitude = ?, gps_captured_at = ?
		WHERE id = ?
	`, photo.Analyzed, photo.HasGPS, g.lat, g.lon, g.country, g.city, g.alt, g.capturedAt, photo.ID)
	return err
}

// LoadPhotos returns the stored period and its photos, nil and empty
// when nothing was loaded yet
func (db *DB) LoadPhotos() (*models.Period, []models.Photo, error) {
	raw, err := db.getSetting(settingCurrentPeriod)
	if err != nil {
		return nil, nil, err
	}
	if raw == "" {
		return nil, nil, nil
	}
	var p models.Period
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, nil, fmt.Errorf("invalid stored period: %w", err)
	}
	loc, err := db.storedLocation()
	if err != nil {
		return nil, nil, err
	}

	rows, err := db.conn.Query(`
		SELECT id, filename, created_at, analyzed, has_gps,
			latitude, longitude, country, city, altitude, gps_captured_at, raw
		FROM photos
		ORDER BY position
	`)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var photos []models.Photo
	for rows.Next() {
		var photo models.Photo
		var lat, lon, alt sql.NullFloat64
		var country, city, rawJSON sql.NullString
		var capturedAt sql.NullTime

		err := rows.Scan(
			&photo.ID, &photo.Filename, &photo.CreatedAt, &photo.Analyzed, &photo.HasGPS,
			&lat, &lon, &country, &city, &alt, &capturedAt, &rawJSON,
		)
		if err != nil {
			return nil, nil, err
		}
		photo.CreatedAt = photo.CreatedAt.In(loc)

		if photo.HasGPS && lat.Valid && lon.Valid {
			c := models.GPSCoordinate{
				Latitude:  lat.Float64,
				Longitude: lon.Float64,
				Country:   country.String,
				City:      city.String,
			}
			if alt.Valid {
				a := alt.Float64
				c.Altitude = &a
			}
			if capturedAt.Valid {
				t := capturedAt.Time
				c.CapturedAt = &t
			}
			photo.GPSData = &c
		} else {
			photo.HasGPS = false
		}
		if rawJSON.Valid && rawJSON.String != "" {
			photo.Raw = json.RawMessage(rawJSON.String)
		}

		photos = append(photos, photo)
	}

	return &p, photos, rows.Err()
}

// storedLocation returns the zone saved by ReplacePhotos, UTC when none
// is saved or it is unknown to this system
func (db *DB) storedLocation() (*time.Location, error) {
	name, err := db.getSetting(settingTimezone)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC, nil
	}
	return loc, nil
}

// ClearPhotos forgets the loaded period
func (db *DB) ClearPhotos() error {
	return db.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM photos`); err != nil {
			return err
		}
		if err := deleteSetting(tx, settingCurrentPeriod); err != nil {
			return err
		}
		return deleteSetting(tx, settingTimezone)
	})
}

type gpsRow struct {
	lat, lon, alt interface{}
	country, city interface{}
	capturedAt    interface{}
}

func gpsColumns(photo models.Photo) gpsRow {
	if !photo.HasGPS || photo.GPSData == nil {
		return gpsRow{}
	}
	g := photo.GPSData
	row := gpsRow{lat: g.Latitude, lon: g.Longitude, country: g.Country, city: g.City}
	if g.Altitude != nil {
		row.alt = *g.Altitude
	}
	if g.CapturedAt != nil {
		row.capturedAt = g.CapturedAt.UTC()
	}
	return row
}

func rawColumn(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
