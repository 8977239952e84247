package nvd

import (
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/xerrors"
)

// decode reads a CVE API response body. Any missing required field fails the
// whole page; no partial result is returned.
func decode(r io.Reader) (Page, error) {
	var resp response
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return Page{}, malformed("unable to decode JSON: %v", err)
	}
	if resp.TotalResults == nil {
		return Page{}, malformed("missing totalResults")
	}
	if resp.Vulnerabilities == nil {
		return Page{}, malformed("missing vulnerabilities")
	}

	page := Page{
		ResultsPerPage:  resp.ResultsPerPage,
		StartIndex:      resp.StartIndex,
		TotalResults:    *resp.TotalResults,
		Vulnerabilities: make([]Vulnerability, 0, len(*resp.Vulnerabilities)),
	}
	for i, item := range *resp.Vulnerabilities {
		v, err := item.toVulnerability()
		if err != nil {
			return Page{}, malformed("vulnerabilities[%d]: %v", i, err)
		}
		page.Vulnerabilities = append(page.Vulnerabilities, v)
	}
	return page, nil
}

func malformed(format string, args ...interface{}) error {
	return xerrors.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrMalformedResponse)
}

func (item vulnerabilityResponse) toVulnerability() (Vulnerability, error) {
	c := item.CVE
	switch {
	case c == nil:
		return Vulnerability{}, xerrors.New("missing cve")
	case c.ID == "":
		return Vulnerability{}, xerrors.New("missing id")
	case c.SourceIdentifier == nil:
		return Vulnerability{}, xerrors.Errorf("%s: missing sourceIdentifier", c.ID)
	case c.Published == nil:
		return Vulnerability{}, xerrors.Errorf("%s: missing published", c.ID)
	case c.LastModified == nil:
		return Vulnerability{}, xerrors.Errorf("%s: missing lastModified", c.ID)
	case c.VulnStatus == nil:
		return Vulnerability{}, xerrors.Errorf("%s: missing vulnStatus", c.ID)
	case c.Descriptions == nil:
		return Vulnerability{}, xerrors.Errorf("%s: missing descriptions", c.ID)
	case c.Metrics == nil:
		return Vulnerability{}, xerrors.Errorf("%s: missing metrics", c.ID)
	}

	metrics, err := c.Metrics.toMetrics()
	if err != nil {
		return Vulnerability{}, xerrors.Errorf("%s: %w", c.ID, err)
	}

	return Vulnerability{
		ID:               c.ID,
		SourceIdentifier: *c.SourceIdentifier,
		Published:        *c.Published,
		LastModified:     *c.LastModified,
		VulnStatus:       *c.VulnStatus,
		Descriptions:     *c.Descriptions,
		Metrics:          metrics,
	}, nil
}

func (m metricsResponse) toMetrics() (Metrics, error) {
	var v2 []CVSSMetricV2
	for i, e := range m.CVSSMetricV2 {
		if e.Source == nil || e.Type == nil || e.BaseSeverity == nil {
			return Metrics{}, xerrors.Errorf("cvssMetricV2[%d]: missing source, type or baseSeverity", i)
		}
		v2 = append(v2, CVSSMetricV2{
			Source:       *e.Source,
			Type:         *e.Type,
			BaseSeverity: *e.BaseSeverity,
			CVSSData:     e.CVSSData,
		})
	}

	var v31 []CVSSMetricV31
	for i, e := range m.CVSSMetricV31 {
		if e.Source == nil || e.Type == nil {
			return Metrics{}, xerrors.Errorf("cvssMetricV31[%d]: missing source or type", i)
		}
		d := e.CVSSData
		if d == nil || d.Version == nil || d.BaseSeverity == nil {
			return Metrics{}, xerrors.Errorf("cvssMetricV31[%d]: missing cvssData version or baseSeverity", i)
		}
		v31 = append(v31, CVSSMetricV31{
			Source: *e.Source,
			Type:   *e.Type,
			CVSSData: CVSSDataV31{
				Version:      *d.Version,
				VectorString: d.VectorString,
				BaseScore:    d.BaseScore,
				BaseSeverity: *d.BaseSeverity,
			},
		})
	}

	return NewMetrics(v2, v31), nil
}
