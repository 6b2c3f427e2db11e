package manifest

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the fixed-precision UTC layout used for created_at.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Quality is an H.264 CRF value used to build the reference digest.
// Lower values keep more detail and widen the similarity gap between
// clean re-encodes and tampered footage.
type Quality int

const (
	QualityMaximum Quality = 18
	QualityHigh    Quality = 23
	QualityMedium  Quality = 28
	QualityLow     Quality = 32
)

// DefaultQuality is used for digests unless configured otherwise.
const DefaultQuality = QualityHigh

// DefaultDigestWidth is the default digest width in pixels.
const DefaultDigestWidth = 240

// ParseQuality accepts a preset name or a numeric CRF in [0, 51].
func ParseQuality(s string) (Quality, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "maximum", "max":
		return QualityMaximum, nil
	case "high":
		return QualityHigh, nil
	case "medium":
		return QualityMedium, nil
	case "low":
		return QualityLow, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid quality %q: want maximum, high, medium, low or a CRF value", s)
	}
	q := Quality(n)
	if !q.Valid() {
		return 0, fmt.Errorf("quality %d out of range [0, 51]", n)
	}
	return q, nil
}

// Valid reports whether q is a usable CRF value.
func (q Quality) Valid() bool {
	return q >= 0 && q <= 51
}

// DigestParams are the parameters the digest-build collaborator was invoked with.
// Verification must rebuild the candidate digest with exactly these values.
type DigestParams struct {
	Width   int
	Quality Quality
}

// Validate checks the parameters are usable.
func (p DigestParams) Validate() error {
	if p.Width <= 0 {
		return fmt.Errorf("digest width must be positive, got %d", p.Width)
	}
	if p.Width%2 != 0 {
		return fmt.Errorf("digest width must be even, got %d", p.Width)
	}
	if !p.Quality.Valid() {
		return fmt.Errorf("digest quality %d out of range", p.Quality)
	}
	return nil
}

// GPS is a latitude/longitude pair in decimal degrees.
type GPS struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ParseGPS parses "LAT,LON".
func ParseGPS(s string) (*GPS, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid GPS coordinates %q: use 'latitude,longitude'", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid latitude %q: %w", parts[0], err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid longitude %q: %w", parts[1], err)
	}
	g := &GPS{Latitude: lat, Longitude: lon}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Validate checks coordinate ranges.
func (g GPS) Validate() error {
	if math.IsNaN(g.Latitude) || g.Latitude < -90 || g.Latitude > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]", g.Latitude)
	}
	if math.IsNaN(g.Longitude) || g.Longitude < -180 || g.Longitude > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", g.Longitude)
	}
	return nil
}

// Metadata is the capture and authorship context, written once at signing time.
type Metadata struct {
	FormatVersion   int    `json:"format_version"`
	CreatedAt       string `json:"created_at"`
	User            string `json:"user"`
	GPS             *GPS   `json:"gps,omitempty"`
	SourceFilename  string `json:"source_filename"`
	SourceSizeBytes int64  `json:"source_size_bytes"`
	DigestWidth     int    `json:"digest_width"`
	DigestQuality   int    `json:"digest_quality"`
}

// NewMetadata assembles metadata. createdAt is truncated to millisecond precision in UTC.
func NewMetadata(createdAt time.Time, user string, gps *GPS, sourceFilename string, sourceSize int64, params DigestParams) *Metadata {
	var g *GPS
	if gps != nil {
		cp := *gps
		g = &cp
	}
	return &Metadata{
		FormatVersion:   FormatVersion,
		CreatedAt:       FormatTimestamp(createdAt),
		User:            user,
		GPS:             g,
		SourceFilename:  sourceFilename,
		SourceSizeBytes: sourceSize,
		DigestWidth:     params.Width,
		DigestQuality:   int(params.Quality),
	}
}

// FormatTimestamp renders t in the fixed created_at layout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Truncate(time.Millisecond).Format(TimestampLayout)
}

// DigestParams returns the digest-build parameters recorded at signing.
func (m Metadata) DigestParams() DigestParams {
	return DigestParams{Width: m.DigestWidth, Quality: Quality(m.DigestQuality)}
}

// Created parses CreatedAt.
func (m Metadata) Created() (time.Time, error) {
	return time.Parse(TimestampLayout, m.CreatedAt)
}

// Validate checks the metadata against its schema.
func (m *Metadata) Validate() error {
	if m.FormatVersion != FormatVersion {
		return fmt.Errorf("unsupported metadata format_version %d", m.FormatVersion)
	}
	if _, err := m.Created(); err != nil {
		return fmt.Errorf("invalid created_at %q: %w", m.CreatedAt, err)
	}
	if m.SourceFilename == "" {
		return fmt.Errorf("source_filename is required")
	}
	if m.SourceSizeBytes < 0 {
		return fmt.Errorf("source_size_bytes must not be negative")
	}
	if m.GPS != nil {
		if err := m.GPS.Validate(); err != nil {
			return fmt.Errorf("gps: %w", err)
		}
	}
	if err := m.DigestParams().Validate(); err != nil {
		return err
	}
	return nil
}

// ToJSON renders the metadata as it is written into a package.
func (m *Metadata) ToJSON() ([]byte, error) {
	return marshalArtifact(m)
}

// ParseMetadata strictly decodes and validates metadata JSON.
func ParseMetadata(data []byte) (*Metadata, error) {
	var m Metadata
	if err := decodeStrict(data, &m); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
