package immich

import "encoding/json"

// Asset is a photo as returned by search, timeline and detail endpoints.
// Timestamps are kept as strings because some libraries carry values
// that do not parse; the period resolver decides which one to trust.
type Asset struct {
	ID               string    `json:"id"`
	Type             string    `json:"type"`
	OriginalFileName string    `json:"originalFileName"`
	OriginalPath     string    `json:"originalPath"`
	FileCreatedAt    string    `json:"fileCreatedAt"`
	LocalDateTime    string    `json:"localDateTime"`
	CreatedAt        string    `json:"createdAt"`
	DateTimeOriginal string    `json:"dateTimeOriginal"`
	ExifInfo         *ExifInfo `json:"exifInfo"`

	// Raw is the undecoded JSON object
	Raw json.RawMessage `json:"-"`
}

func (a *Asset) UnmarshalJSON(data []byte) error {
	type plain Asset
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*a = Asset(p)
	a.Raw = append(json.RawMessage(nil), data...)
	return nil
}

type ExifInfo struct {
	Make             string   `json:"make"`
	Model            string   `json:"model"`
	Latitude         *float64 `json:"latitude"`
	Longitude        *float64 `json:"longitude"`
	Altitude         *float64 `json:"altitude"`
	City             string   `json:"city"`
	State            string   `json:"state"`
	Country          string   `json:"country"`
	DateTimeOriginal string   `json:"dateTimeOriginal"`
}

// SearchRequest is the body of POST /search/metadata
type SearchRequest struct {
	Query string
	Type  string
	Size  int
	Page  int
}

// SearchPage is one page of search results
type SearchPage struct {
	Items []Asset
	Total int
	// HasMore is inferred from a full page
	HasMore bool
}
