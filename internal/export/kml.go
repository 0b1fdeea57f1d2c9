package export

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/jamo/immich-gps/internal/models"
)

const (
	kmlNamespace = "http://www.opengis.net/kml/2.2"
	kmlIcon      = "http://maps.google.com/mapfiles/kml/pal2/icon32.png"
	kmlStyleID   = "photoIcon"
)

type kmlRoot struct {
	XMLName  xml.Name    `xml:"kml"`
	XMLNS    string      `xml:"xmlns,attr"`
	Document kmlDocument `xml:"Document"`
}

type kmlDocument struct {
	Name        string         `xml:"name"`
	Description string         `xml:"description"`
	Style       kmlStyle       `xml:"Style"`
	Placemarks  []kmlPlacemark `xml:"Placemark"`
}

type kmlStyle struct {
	ID   string `xml:"id,attr"`
	Href string `xml:"IconStyle>Icon>href"`
}

type kmlPlacemark struct {
	Name        string   `xml:"name"`
	Description kmlCDATA `xml:"description"`
	StyleURL    string   `xml:"styleUrl"`
	Coordinates string   `xml:"Point>coordinates"`
}

type kmlCDATA struct {
	Text string `xml:",cdata"`
}

// WriteKML writes one Placemark per GPS-bearing photo
func WriteKML(w io.Writer, p *models.Period, photos []models.Photo) (int, error) {
	rows := withGPS(photos)
	if len(rows) == 0 {
		return 0, ErrNoGPSPhotos
	}

	name := unknownPeriod
	if p != nil {
		name = p.String()
	}

	doc := kmlRoot{
		XMLNS: kmlNamespace,
		Document: kmlDocument{
			Name:        "Photos GPS - " + name,
			Description: "GPS coordinates of the Immich photos of " + name,
			Style:       kmlStyle{ID: kmlStyleID, Href: kmlIcon},
			Placemarks:  make([]kmlPlacemark, len(rows)),
		},
	}
	for i, photo := range rows {
		doc.Document.Placemarks[i] = placemark(photo)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return 0, err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return 0, err
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func placemark(photo models.Photo) kmlPlacemark {
	g := photo.GPSData
	altitude := 0.0
	if g.Altitude != nil {
		altitude = *g.Altitude
	}

	var desc strings.Builder
	fmt.Fprintf(&desc, "<b>Date:</b> %s<br>", photo.CreatedAt.Format("2006-01-02"))
	fmt.Fprintf(&desc, "<b>Place:</b> %s - %s<br>", orDefault(g.Country), orDefault(g.City))
	fmt.Fprintf(&desc, "<b>Coordinates:</b> %.6f, %.6f", g.Latitude, g.Longitude)
	if g.Altitude != nil {
		fmt.Fprintf(&desc, "<br><b>Altitude:</b> %s m", formatFloat(*g.Altitude))
	}

	return kmlPlacemark{
		Name:        photo.Filename,
		Description: kmlCDATA{Text: desc.String()},
		StyleURL:    "#" + kmlStyleID,
		Coordinates: fmt.Sprintf("%s,%s,%s", formatFloat(g.Longitude), formatFloat(g.Latitude), formatFloat(altitude)),
	}
}
