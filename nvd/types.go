package nvd

import (
	"encoding/json"
	"time"

	"github.com/araddon/dateparse"
	"golang.org/x/xerrors"
)

// Page is one response of the CVE API. TotalResults is the number of records
// matching the query on the remote side, not len(Vulnerabilities).
type Page struct {
	ResultsPerPage  int             `json:"resultsPerPage"`
	StartIndex      int             `json:"startIndex"`
	TotalResults    int             `json:"totalResults"`
	Vulnerabilities []Vulnerability `json:"vulnerabilities"`
}

type Vulnerability struct {
	ID               string        `json:"id"`
	SourceIdentifier string        `json:"sourceIdentifier"`
	Published        string        `json:"published"`
	LastModified     string        `json:"lastModified"`
	VulnStatus       string        `json:"vulnStatus"`
	Descriptions     []Description `json:"descriptions"`
	Metrics          Metrics       `json:"metrics"`
}

type Description struct {
	Lang  string `json:"lang"`
	Value string `json:"value"`
}

type CVSSMetricV2 struct {
	Source       string      `json:"source"`
	Type         string      `json:"type"`
	BaseSeverity string      `json:"baseSeverity"`
	CVSSData     *CVSSDataV2 `json:"cvssData,omitempty"`
}

type CVSSDataV2 struct {
	Version      string   `json:"version"`
	VectorString string   `json:"vectorString,omitempty"`
	BaseScore    *float64 `json:"baseScore,omitempty"`
}

type CVSSMetricV31 struct {
	Source   string      `json:"source"`
	Type     string      `json:"type"`
	CVSSData CVSSDataV31 `json:"cvssData"`
}

type CVSSDataV31 struct {
	Version      string   `json:"version"`
	VectorString string   `json:"vectorString,omitempty"`
	BaseScore    *float64 `json:"baseScore,omitempty"`
	BaseSeverity string   `json:"baseSeverity"`
}

// MetricsKind tells which scoring schemas carry at least one entry.
type MetricsKind int

const (
	MetricsNone MetricsKind = iota
	MetricsV2
	MetricsV31
	MetricsBoth
)

func (k MetricsKind) String() string {
	switch k {
	case MetricsV2:
		return "V2"
	case MetricsV31:
		return "V3.1"
	case MetricsBoth:
		return "V3.1+V2"
	default:
		return "none"
	}
}

// Metrics is the union of the CVSS V2 and V3.1 score collections of a record.
// A collection that is present but empty counts as absent.
type Metrics struct {
	kind MetricsKind
	v2   []CVSSMetricV2
	v31  []CVSSMetricV31
}

func NewMetrics(v2 []CVSSMetricV2, v31 []CVSSMetricV31) Metrics {
	m := Metrics{v2: v2, v31: v31}
	switch {
	case len(v31) > 0 && len(v2) > 0:
		m.kind = MetricsBoth
	case len(v31) > 0:
		m.kind = MetricsV31
	case len(v2) > 0:
		m.kind = MetricsV2
	}
	return m
}

func (m Metrics) Kind() MetricsKind    { return m.kind }
func (m Metrics) V2() []CVSSMetricV2   { return m.v2 }
func (m Metrics) V31() []CVSSMetricV31 { return m.v31 }

type metricsJSON struct {
	CVSSMetricV2  []CVSSMetricV2  `json:"cvssMetricV2,omitempty"`
	CVSSMetricV31 []CVSSMetricV31 `json:"cvssMetricV31,omitempty"`
}

func (m Metrics) MarshalJSON() ([]byte, error) {
	return json.Marshal(metricsJSON{CVSSMetricV2: m.v2, CVSSMetricV31: m.v31})
}

func (m *Metrics) UnmarshalJSON(b []byte) error {
	var raw metricsJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*m = NewMetrics(raw.CVSSMetricV2, raw.CVSSMetricV31)
	return nil
}

// Description returns the description in the given language.
func (v Vulnerability) Description(lang string) (string, bool) {
	for _, d := range v.Descriptions {
		if d.Lang == lang {
			return d.Value, true
		}
	}
	return "", false
}

func (v Vulnerability) PublishedAt() (time.Time, error) {
	return parseTime(v.Published)
}

func (v Vulnerability) LastModifiedAt() (time.Time, error) {
	return parseTime(v.LastModified)
}

func parseTime(s string) (time.Time, error) {
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, xerrors.Errorf("unable to parse %q: %w", s, err)
	}
	return t, nil
}

// response mirrors the wire format with pointers so that missing required
// fields can be told apart from zero values.
type response struct {
	ResultsPerPage  int                      `json:"resultsPerPage"`
	StartIndex      int                      `json:"startIndex"`
	TotalResults    *int                     `json:"totalResults"`
	Vulnerabilities *[]vulnerabilityResponse `json:"vulnerabilities"`
}

type vulnerabilityResponse struct {
	CVE *cveResponse `json:"cve"`
}

type cveResponse struct {
	ID               string           `json:"id"`
	SourceIdentifier *string          `json:"sourceIdentifier"`
	Published        *string          `json:"published"`
	LastModified     *string          `json:"lastModified"`
	VulnStatus       *string          `json:"vulnStatus"`
	Descriptions     *[]Description   `json:"descriptions"`
	Metrics          *metricsResponse `json:"metrics"`
}

type metricsResponse struct {
	CVSSMetricV2  []metricV2Response  `json:"cvssMetricV2"`
	CVSSMetricV31 []metricV31Response `json:"cvssMetricV31"`
}

type metricV2Response struct {
	Source       *string     `json:"source"`
	Type         *string     `json:"type"`
	BaseSeverity *string     `json:"baseSeverity"`
	CVSSData     *CVSSDataV2 `json:"cvssData"`
}

type metricV31Response struct {
	Source   *string              `json:"source"`
	Type     *string              `json:"type"`
	CVSSData *cvssDataV31Response `json:"cvssData"`
}

type cvssDataV31Response struct {
	Version      *string  `json:"version"`
	VectorString string   `json:"vectorString"`
	BaseScore    *float64 `json:"baseScore"`
	BaseSeverity *string  `json:"baseSeverity"`
}
