package database

import (
	"database/sql"

	"github.com/jamo/immich-gps/internal/models"
)

// insertAudit records one paste and trims the log to MaxAuditEntries
func insertAudit(e execer, entry models.AuditEntry) error {
	var alt interface{}
	if entry.Coordinate.Altitude != nil {
		alt = *entry.Coordinate.Altitude
	}
	_, err := e.Exec(`
		INSERT INTO gps_actions (
			id, timestamp, action, target_id, target_filename, source_id, source_filename,
			latitude, longitude, country, city, altitude
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID, entry.Timestamp, string(entry.Action),
		entry.TargetID, entry.TargetFilename, entry.SourceID, entry.SourceFilename,
		entry.Coordinate.Latitude, entry.Coordinate.Longitude,
		entry.Coordinate.Country, entry.Coordinate.City, alt,
	)
	if err != nil {
		return err
	}

	_, err = e.Exec(`
		DELETE FROM gps_actions
		WHERE seq NOT IN (SELECT seq FROM gps_actions ORDER BY seq DESC LIMIT ?)
	`, MaxAuditEntries)
	return err
}

// GetAuditEntries returns the kept pastes, oldest first
func (db *DB) GetAuditEntries() ([]models.AuditEntry, error) {
	rows, err := db.conn.Query(`
		SELECT id, timestamp, action, target_id, target_filename, source_id, source_filename,
			latitude, longitude, country, city, altitude
		FROM gps_actions
		ORDER BY seq
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var action string
		var alt sql.NullFloat64
		err := rows.Scan(
			&e.ID, &e.Timestamp, &action, &e.TargetID, &e.TargetFilename,
			&e.SourceID, &e.SourceFilename,
			&e.Coordinate.Latitude, &e.Coordinate.Longitude,
			&e.Coordinate.Country, &e.Coordinate.City, &alt,
		)
		if err != nil {
			return nil, err
		}
		e.Action = models.AuditAction(action)
		if alt.Valid {
			a := alt.Float64
			e.Coordinate.Altitude = &a
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// ClearAuditEntries empties the audit log
func (db *DB) ClearAuditEntries() error {
	_, err := db.conn.Exec(`DELETE FROM gps_actions`)
	return err
}
