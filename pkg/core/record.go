// pkg/core/record.go
package core

import "time"

// RGBA is an 8-bit per channel fill color, alpha last.
type RGBA [4]uint8

// Record is one cleaned observation from the source file.
type Record struct {
	ID        string    `json:"id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
	Indicator string    `json:"indicator"`
	Color     RGBA      `json:"color"`

	// Line is the 1-based row in the source file, header excluded.
	Line int `json:"line"`
}

// Dataset is the loader output for one source file.
type Dataset struct {
	Source  string    `json:"source"`
	ModTime time.Time `json:"modTime"`
	Rows    int       `json:"rows"`
	Dropped int       `json:"dropped"`
	Records []Record  `json:"records"`
}

// Span returns the first and last timestamps of the dataset.
// Records must be sorted, which the loader guarantees.
func (d Dataset) Span() (first, last time.Time, ok bool) {
	if len(d.Records) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return d.Records[0].Timestamp, d.Records[len(d.Records)-1].Timestamp, true
}
