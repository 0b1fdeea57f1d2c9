// Package transfer implements copy/paste of a GPS coordinate from one
// photo onto another.
package transfer

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jamo/immich-gps/internal/logging"
	"github.com/jamo/immich-gps/internal/metrics"
	"github.com/jamo/immich-gps/internal/models"
	"go.uber.org/zap"
)

type Mode int

const (
	Idle Mode = iota
	CopyArmed
	PasteArmed
)

func (m Mode) String() string {
	switch m {
	case CopyArmed:
		return "copy"
	case PasteArmed:
		return "paste"
	default:
		return "idle"
	}
}

// Outcome is the result of selecting a photo
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeCopied
	OutcomePasted
	OutcomeRejected
	OutcomeDeclined
	OutcomeNoGPS
	OutcomeMapOpened
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCopied:
		return "copied"
	case OutcomePasted:
		return "pasted"
	case OutcomeRejected:
		return "rejected"
	case OutcomeDeclined:
		return "declined"
	case OutcomeNoGPS:
		return "no-gps"
	case OutcomeMapOpened:
		return "map-opened"
	case OutcomeFailed:
		return "failed"
	default:
		return "none"
	}
}

// PhotoStore applies coordinate changes to a photo. Each call either
// applies completely or returns an error and leaves the photo unchanged.
type PhotoStore interface {
	UpdatePhotoGPS(photo *models.Photo, c models.GPSCoordinate) error
	PastePhotoGPS(photo *models.Photo, c models.GPSCoordinate, entry models.AuditEntry) error
}

// CoordinateLookup fetches a single photo's coordinate from the service
type CoordinateLookup interface {
	Lookup(ctx context.Context, id string) (models.GPSCoordinate, bool, error)
}

// Confirmer asks the user before a paste is committed
type Confirmer interface {
	ConfirmPaste(ctx context.Context, target *models.Photo, entry models.ClipboardEntry) (bool, error)
}

// MapOpener shows a coordinate to the user
type MapOpener interface {
	OpenMap(url string) error
}

type Deps struct {
	Photos    PhotoStore
	Lookup    CoordinateLookup
	Confirmer Confirmer
	Notifier  Notifier
	Maps      MapOpener
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

// Machine holds the transfer mode and the single clipboard slot
type Machine struct {
	deps Deps

	mu        sync.Mutex
	mode      Mode
	clipboard *models.ClipboardEntry
}

// NewMachine creates an idle machine. Without a Confirmer every paste is
// confirmed.
func NewMachine(deps Deps) *Machine {
	deps.Logger = logging.OrNop(deps.Logger)
	if deps.Notifier == nil {
		deps.Notifier = NotifyFunc(func(Level, string) {})
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Machine{deps: deps}
}

func (m *Machine) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Clipboard returns a copy of the held entry
func (m *Machine) Clipboard() (models.ClipboardEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.clipboard == nil {
		return models.ClipboardEntry{}, false
	}
	entry := *m.clipboard
	entry.Coordinate = entry.Coordinate.Clone()
	return entry, true
}

// ToggleCopy arms copy mode, or disarms it when already armed
func (m *Machine) ToggleCopy() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.mode == CopyArmed {
		m.mode = Idle
		m.notify(LevelInfo, "Copy mode off")
	} else {
		m.mode = CopyArmed
		m.notify(LevelInfo, "Copy mode on: select a photo with GPS")
	}
	return m.mode
}

// TogglePaste arms paste mode, or disarms it when already armed. It does
// nothing but warn while the clipboard is empty.
func (m *Machine) TogglePaste() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.clipboard == nil {
		m.notify(LevelWarning, "No GPS coordinate copied yet: use copy mode first")
		return m.mode
	}
	if m.mode == PasteArmed {
		m.mode = Idle
		m.notify(LevelInfo, "Paste mode off")
	} else {
		m.mode = PasteArmed
		m.notify(LevelInfo, "Paste mode on: select a photo without GPS")
	}
	return m.mode
}

// ResetModes returns to Idle and keeps the clipboard
func (m *Machine) ResetModes() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = Idle
	m.notify(LevelInfo, "Modes reset")
}

// ClearClipboard returns to Idle and drops the clipboard
func (m *Machine) ClearClipboard() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = Idle
	m.clipboard = nil
	m.notify(LevelInfo, "GPS clipboard cleared")
}

// Select acts on a photo according to the current mode. Exactly one
// notification is sent per call.
func (m *Machine) Select(ctx context.Context, photo *models.Photo) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if photo == nil {
		m.notify(LevelError, "Photo not found")
		return OutcomeFailed, nil
	}

	switch m.mode {
	case CopyArmed:
		return m.copyFrom(ctx, photo)
	case PasteArmed:
		return m.pasteOnto(ctx, photo)
	default:
		return m.show(photo)
	}
}

func (m *Machine) copyFrom(ctx context.Context, photo *models.Photo) (Outcome, error) {
	if photo.HasGPS && photo.GPSData != nil {
		m.hold(photo, *photo.GPSData)
		m.notify(LevelSuccess, fmt.Sprintf("GPS copied from %q", photo.Filename))
		return OutcomeCopied, nil
	}

	if m.deps.Lookup == nil {
		m.notify(LevelError, fmt.Sprintf("%q has no GPS coordinates", photo.Filename))
		return OutcomeNoGPS, nil
	}

	coord, ok, err := m.deps.Lookup.Lookup(ctx, photo.ID)
	if err != nil {
		m.deps.Logger.Warn("GPS lookup failed", zap.String("asset_id", photo.ID), zap.Error(err))
		m.notify(LevelError, fmt.Sprintf("Failed to analyze GPS of %q: %v", photo.Filename, err))
		return OutcomeFailed, err
	}
	if !ok {
		m.notify(LevelError, fmt.Sprintf("%q has no GPS coordinates", photo.Filename))
		return OutcomeNoGPS, nil
	}

	if m.deps.Photos != nil {
		if err := m.deps.Photos.UpdatePhotoGPS(photo, coord); err != nil {
			m.notify(LevelError, fmt.Sprintf("Failed to save GPS of %q: %v", photo.Filename, err))
			return OutcomeFailed, err
		}
	} else {
		photo.SetGPS(coord)
	}

	m.hold(photo, coord)
	m.notify(LevelSuccess, fmt.Sprintf("GPS found and copied from %q", photo.Filename))
	return OutcomeCopied, nil
}

// hold fills the clipboard with a copy of c and arms paste mode
func (m *Machine) hold(photo *models.Photo, c models.GPSCoordinate) {
	m.clipboard = &models.ClipboardEntry{
		Coordinate:     c.Clone(),
		SourcePhotoID:  photo.ID,
		SourceFilename: photo.Filename,
		CapturedAt:     m.deps.Now(),
	}
	m.mode = PasteArmed
}

func (m *Machine) pasteOnto(ctx context.Context, photo *models.Photo) (Outcome, error) {
	if photo.HasGPS {
		m.notify(LevelWarning, fmt.Sprintf("%q already has GPS coordinates", photo.Filename))
		return OutcomeRejected, nil
	}
	if m.clipboard == nil {
		m.notify(LevelError, "No GPS coordinate in the clipboard")
		return OutcomeFailed, nil
	}

	entry := *m.clipboard
	entry.Coordinate = entry.Coordinate.Clone()

	if m.deps.Confirmer != nil {
		confirmed, err := m.deps.Confirmer.ConfirmPaste(ctx, photo, entry)
		if err != nil {
			m.notify(LevelError, fmt.Sprintf("Paste onto %q aborted: %v", photo.Filename, err))
			return OutcomeFailed, err
		}
		if !confirmed {
			m.notify(LevelInfo, fmt.Sprintf("Paste onto %q cancelled", photo.Filename))
			return OutcomeDeclined, nil
		}
	}

	audit := models.AuditEntry{
		ID:             uuid.NewString(),
		Timestamp:      m.deps.Now().UTC(),
		Action:         models.ActionPaste,
		TargetID:       photo.ID,
		TargetFilename: photo.Filename,
		SourceID:       entry.SourcePhotoID,
		SourceFilename: entry.SourceFilename,
		Coordinate:     entry.Coordinate.Clone(),
	}

	if m.deps.Photos != nil {
		if err := m.deps.Photos.PastePhotoGPS(photo, entry.Coordinate, audit); err != nil {
			m.notify(LevelError, fmt.Sprintf("Failed to paste GPS onto %q: %v", photo.Filename, err))
			return OutcomeFailed, err
		}
	} else {
		photo.SetGPS(entry.Coordinate)
	}

	m.deps.Metrics.Pasted()
	m.deps.Logger.Info("GPS pasted",
		zap.String("audit_id", audit.ID),
		zap.String("source_id", audit.SourceID),
		zap.String("target_id", audit.TargetID),
		zap.Float64("latitude", audit.Coordinate.Latitude),
		zap.Float64("longitude", audit.Coordinate.Longitude))
	m.notify(LevelSuccess, fmt.Sprintf("GPS pasted onto %q from %q", photo.Filename, entry.SourceFilename))
	return OutcomePasted, nil
}

func (m *Machine) show(photo *models.Photo) (Outcome, error) {
	if !photo.HasGPS || photo.GPSData == nil {
		m.notify(LevelInfo, fmt.Sprintf("%q has no GPS coordinates", photo.Filename))
		return OutcomeNoGPS, nil
	}

	url := MapsURL(photo.GPSData.Latitude, photo.GPSData.Longitude)
	if m.deps.Maps != nil {
		if err := m.deps.Maps.OpenMap(url); err != nil {
			m.notify(LevelError, fmt.Sprintf("Failed to open map: %v", err))
			return OutcomeFailed, err
		}
	}
	m.notify(LevelInfo, "Opening map: "+url)
	return OutcomeMapOpened, nil
}

func (m *Machine) notify(level Level, msg string) {
	m.deps.Notifier.Notify(level, msg)
}

// Snapshot describes the machine for display
type Snapshot struct {
	Mode         string     `json:"mode"`
	HasClipboard bool       `json:"hasClipboard"`
	SourcePhoto  string     `json:"sourcePhoto,omitempty"`
	Coordinates  string     `json:"coordinates,omitempty"`
	CapturedAt   *time.Time `json:"capturedAt,omitempty"`
}

func (m *Machine) State() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{Mode: m.mode.String(), HasClipboard: m.clipboard != nil}
	if m.clipboard != nil {
		at := m.clipboard.CapturedAt
		s.SourcePhoto = m.clipboard.SourceFilename
		s.Coordinates = FormatCoordinates(m.clipboard.Coordinate.Latitude, m.clipboard.Coordinate.Longitude)
		s.CapturedAt = &at
	}
	return s
}

// MapsURL links to a map view of a coordinate
func MapsURL(lat, lon float64) string {
	return fmt.Sprintf("https://www.google.com/maps?q=%s,%s&z=15", formatFloat(lat), formatFloat(lon))
}

// FormatCoordinates renders "lat, lon"
func FormatCoordinates(lat, lon float64) string {
	return formatFloat(lat) + ", " + formatFloat(lon)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
