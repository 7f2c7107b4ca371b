// Package severity maps the heterogeneous classification schemes of the
// supported backends onto one four-tier taxonomy. All tables are process-wide
// immutable constants; the backends guarantee their stability across
// installations, so there is no reload path.
package severity

import "strings"

// Bucket is one tier of the unified taxonomy plus the presentation metadata
// the results UI expects for its severity folders.
type Bucket struct {
	Name    string
	Color   string
	Ordinal int
}

// Unknown is the degraded bucket for classification values outside the
// fixed tables. Mapping to it is recoverable, not an error.
var Unknown = Bucket{Name: "Unknown", Color: "666666", Ordinal: 0}

// The four folder GUIDs of the standard "Security Auditor View" filter set.
// SSC keeps these stable across installations, which is what makes a
// hardcoded table safe.
const (
	GUIDCritical = "b968f72f-cc12-03b5-976e-ad4c13920c21"
	GUIDHigh     = "5b50bb77-071d-08ed-fdba-1213fa90ac5a"
	GUIDMedium   = "d5f55910-5f0e-a775-e91f-191d1f6fb02d"
	GUIDLow      = "bb824e8d-b401-40be-13bd-5d156696a685"
)

var (
	critical = Bucket{Name: "Critical", Color: "d9534f", Ordinal: 1}
	high     = Bucket{Name: "High", Color: "f0ad4e", Ordinal: 2}
	medium   = Bucket{Name: "Medium", Color: "f7e699", Ordinal: 3}
	low      = Bucket{Name: "Low", Color: "5bc0de", Ordinal: 4}

	folderBuckets = map[string]Bucket{
		GUIDCritical: critical,
		GUIDHigh:     high,
		GUIDMedium:   medium,
		GUIDLow:      low,
	}

	nameBuckets = map[string]Bucket{
		"critical": critical,
		"high":     high,
		"medium":   medium,
		"low":      low,
	}
)

// FromFolderGUID resolves an SSC folder GUID to its bucket. Any GUID outside
// the table, including the empty string, resolves to Unknown.
func FromFolderGUID(guid string) Bucket {
	if b, ok := folderBuckets[guid]; ok {
		return b
	}
	return Unknown
}

// FromName resolves a severity string (FoD severityString and friends) to its
// bucket. Matching is case-insensitive and tolerates surrounding whitespace.
func FromName(name string) Bucket {
	if b, ok := nameBuckets[strings.ToLower(strings.TrimSpace(name))]; ok {
		return b
	}
	return Unknown
}

// Likelihood buckets a raw likelihood score. Thresholds are closed at the
// lower bound: exactly 0.7 is Likely, exactly 0.3 is Possible.
func Likelihood(score float64) string {
	switch {
	case score >= 0.7:
		return "Likely"
	case score >= 0.3:
		return "Possible"
	default:
		return "Unlikely"
	}
}

// Confidence buckets a raw confidence score. Thresholds are closed at the
// lower bound: exactly 4.0 is High, exactly 2.5 is Medium.
func Confidence(score float64) string {
	switch {
	case score >= 4.0:
		return "High"
	case score >= 2.5:
		return "Medium"
	default:
		return "Low"
	}
}
