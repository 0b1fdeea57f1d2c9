// Package export writes the GPS-bearing photos of a period as CSV, JSON
// or KML, and the paste audit log as CSV.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jamo/immich-gps/internal/models"
)

const (
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatKML  = "kml"

	sourceName    = "Immich GPS Manager"
	unknownPeriod = "unknown"
)

var ErrNoGPSPhotos = errors.New("no photo with GPS to export")

var csvHeader = []string{"Nom", "Latitude", "Longitude", "Pays", "Ville", "Altitude", "Date"}

// Filename builds photos_gps_<period>_<YYYY-MM-DD>.<ext>
func Filename(p *models.Period, ext string, now time.Time) string {
	name := unknownPeriod
	if p != nil {
		name = p.String()
	}
	return fmt.Sprintf("photos_gps_%s_%s.%s", name, now.Format("2006-01-02"), ext)
}

// ContentType returns the MIME type of an export format
func ContentType(format string) string {
	switch format {
	case FormatCSV:
		return "text/csv"
	case FormatJSON:
		return "application/json"
	case FormatKML:
		return "application/vnd.google-earth.kml+xml"
	default:
		return "application/octet-stream"
	}
}

// Write dispatches on format
func Write(w io.Writer, format string, p *models.Period, photos []models.Photo, now time.Time) (int, error) {
	switch format {
	case FormatCSV:
		return WriteCSV(w, photos)
	case FormatJSON:
		return WriteJSON(w, p, photos, now)
	case FormatKML:
		return WriteKML(w, p, photos)
	default:
		return 0, fmt.Errorf("unknown export format %q", format)
	}
}

func withGPS(photos []models.Photo) []models.Photo {
	var out []models.Photo
	for _, p := range photos {
		if p.HasGPS && p.GPSData != nil {
			out = append(out, p)
		}
	}
	return out
}

// WriteCSV writes one row per GPS-bearing photo and returns the row count
func WriteCSV(w io.Writer, photos []models.Photo) (int, error) {
	rows := withGPS(photos)
	if len(rows) == 0 {
		return 0, ErrNoGPSPhotos
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return 0, err
	}
	for _, p := range rows {
		g := p.GPSData
		altitude := ""
		if g.Altitude != nil {
			altitude = formatFloat(*g.Altitude)
		}
		record := []string{
			p.Filename,
			formatFloat(g.Latitude),
			formatFloat(g.Longitude),
			orDefault(g.Country),
			orDefault(g.City),
			altitude,
			p.CreatedAt.Format(time.RFC3339),
		}
		if err := cw.Write(record); err != nil {
			return 0, err
		}
	}
	cw.Flush()
	return len(rows), cw.Error()
}

type jsonEnvelope struct {
	Metadata jsonMetadata `json:"metadata"`
	Photos   []jsonPhoto  `json:"photos"`
}

type jsonMetadata struct {
	ExportDate  time.Time      `json:"exportDate"`
	Period      *models.Period `json:"period"`
	TotalPhotos int            `json:"totalPhotos"`
	Source      string         `json:"source"`
}

type jsonPhoto struct {
	ID            string                `json:"id"`
	Filename      string                `json:"filename"`
	FileCreatedAt time.Time             `json:"fileCreatedAt"`
	GPS           *models.GPSCoordinate `json:"gps"`
}

// WriteJSON writes a metadata envelope and the GPS-bearing photos
func WriteJSON(w io.Writer, p *models.Period, photos []models.Photo, now time.Time) (int, error) {
	rows := withGPS(photos)
	if len(rows) == 0 {
		return 0, ErrNoGPSPhotos
	}

	out := jsonEnvelope{
		Metadata: jsonMetadata{
			ExportDate:  now.UTC(),
			Period:      p,
			TotalPhotos: len(rows),
			Source:      sourceName,
		},
		Photos: make([]jsonPhoto, len(rows)),
	}
	for i, photo := range rows {
		out.Photos[i] = jsonPhoto{
			ID:            photo.ID,
			Filename:      photo.Filename,
			FileCreatedAt: photo.CreatedAt,
			GPS:           photo.GPSData,
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return 0, err
	}
	return len(rows), nil
}

var auditHeader = []string{"Date", "Action", "Photo_Destination", "Photo_Source", "Latitude", "Longitude", "Pays", "Ville"}

// WriteAuditCSV writes the paste log, oldest first
func WriteAuditCSV(w io.Writer, entries []models.AuditEntry) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(auditHeader); err != nil {
		return 0, err
	}
	for _, e := range entries {
		record := []string{
			e.Timestamp.UTC().Format(time.RFC3339),
			string(e.Action),
			e.TargetFilename,
			e.SourceFilename,
			formatFloat(e.Coordinate.Latitude),
			formatFloat(e.Coordinate.Longitude),
			e.Coordinate.Country,
			e.Coordinate.City,
		}
		if err := cw.Write(record); err != nil {
			return 0, err
		}
	}
	cw.Flush()
	return len(entries), cw.Error()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func orDefault(s string) string {
	if s == "" {
		return models.DefaultPlace
	}
	return s
}
