package report

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/exp/slices"

	"github.com/aquasecurity/cve-watch/nvd"
)

const (
	detailURL = "https://nvd.nist.gov/vuln/detail/"
	barWidth  = 40
)

// Summary renders one line per record: ID, severity label and score, or a
// marker when no metric is available.
func Summary(vulns []nvd.Vulnerability) string {
	var b strings.Builder
	for _, v := range vulns {
		sev, ok := v.Severity()
		if !ok {
			fmt.Fprintf(&b, "%s - NO METRIC AVAILABLE\n", v.ID)
			continue
		}
		fmt.Fprintf(&b, "%s - %s - %s\n", v.ID, sev.Label, sev.ScoreString())
	}
	return b.String()
}

// Detail renders a single record with its English description and a link to
// the NVD page.
func Detail(v nvd.Vulnerability) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s :\n\n", v.ID)

	if desc, ok := lo.Find(v.Descriptions, func(d nvd.Description) bool { return d.Lang == "en" }); ok {
		fmt.Fprintf(&b, "Description: %s\n\n", desc.Value)
	}

	fmt.Fprintf(&b, "Status: %s\n", v.VulnStatus)
	if published, err := v.PublishedAt(); err == nil {
		fmt.Fprintf(&b, "Published: %s\n", published.Format("2006-01-02"))
	}
	if modified, err := v.LastModifiedAt(); err == nil {
		fmt.Fprintf(&b, "Last modified: %s\n", modified.Format("2006-01-02"))
	}

	sev, ok := v.Severity()
	if !ok {
		b.WriteString("Severity: None\n")
		b.WriteString("Base score unavailable\n")
	} else {
		fmt.Fprintf(&b, "Severity: %s (CVSS %s)\n", sev.Label, v.Metrics.Kind())
		if sev.HasScore {
			fmt.Fprintf(&b, "Base score: %s\n", sev.ScoreString())
		} else {
			b.WriteString("Base score unavailable\n")
		}
	}

	fmt.Fprintf(&b, "NVD Link: %s%s", detailURL, v.ID)
	return b.String()
}

// Render draws the histogram as text bars scaled to the largest bucket.
func (h Histogram) Render() string {
	rows := lo.Map(nvd.Buckets, func(bucket string, _ int) lo.Tuple2[string, int] {
		return lo.T2(bucket, h.Counts[bucket])
	})
	if h.Other > 0 {
		rows = append(rows, lo.T2("other", h.Other))
	}
	rows = append(rows, lo.T2("unrated", h.Unrated))

	highest := lo.Max(lo.Map(rows, func(r lo.Tuple2[string, int], _ int) int { return r.B }))

	var b strings.Builder
	fmt.Fprintf(&b, "CVSS severity of %d CVEs:\n", h.Total())
	for _, r := range rows {
		width := 0
		if highest > 0 {
			width = r.B * barWidth / highest
		}
		fmt.Fprintf(&b, "%-9s %-*s %d\n", r.A, barWidth, strings.Repeat("#", width), r.B)
	}
	return b.String()
}

// RenderDigest renders the changed CVEs per CPE, newest modification first.
func RenderDigest(entries []DigestEntry, days int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Updated CVEs for the latest %d days:\n", days)
	for _, e := range entries {
		fmt.Fprintf(&b, "%s :\n", e.CPE)
		if e.Err != nil {
			fmt.Fprintf(&b, "Error: %s\n\n", e.Err)
			continue
		}

		vulns := slices.Clone(e.Page.Vulnerabilities)
		slices.SortStableFunc(vulns, func(x, y nvd.Vulnerability) int {
			return strings.Compare(y.LastModified, x.LastModified)
		})
		b.WriteString(Summary(vulns))
		b.WriteString("\n")
	}
	return b.String()
}
