package nvd

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/kylelemons/godebug/pretty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func float(f float64) *float64 {
	return &f
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		metrics Metrics
		want    Severity
		wantOK  bool
	}{
		{
			name: "V3.1 only",
			metrics: NewMetrics(nil, []CVSSMetricV31{
				{Source: "nvd@nist.gov", Type: "Primary", CVSSData: CVSSDataV31{Version: "3.1", BaseSeverity: "HIGH", BaseScore: float(7.5)}},
			}),
			want:   Severity{Label: "HIGH", Score: 7.5, HasScore: true},
			wantOK: true,
		},
		{
			name: "V2 only",
			metrics: NewMetrics([]CVSSMetricV2{
				{Source: "nvd@nist.gov", Type: "Primary", BaseSeverity: "MEDIUM", CVSSData: &CVSSDataV2{Version: "2.0", BaseScore: float(4.3)}},
			}, nil),
			want:   Severity{Label: "MEDIUM", Score: 4.3, HasScore: true},
			wantOK: true,
		},
		{
			name: "both prefers V3.1",
			metrics: NewMetrics(
				[]CVSSMetricV2{{Source: "nvd@nist.gov", Type: "Primary", BaseSeverity: "HIGH"}},
				[]CVSSMetricV31{{Source: "nvd@nist.gov", Type: "Primary", CVSSData: CVSSDataV31{Version: "3.1", BaseSeverity: "Critical", BaseScore: float(10)}}},
			),
			want:   Severity{Label: "Critical", Score: 10, HasScore: true},
			wantOK: true,
		},
		{
			name: "first entry wins",
			metrics: NewMetrics(nil, []CVSSMetricV31{
				{Source: "nvd@nist.gov", Type: "Primary", CVSSData: CVSSDataV31{Version: "3.1", BaseSeverity: "LOW", BaseScore: float(3.1)}},
				{Source: "secalert@redhat.com", Type: "Secondary", CVSSData: CVSSDataV31{Version: "3.1", BaseSeverity: "HIGH", BaseScore: float(8.1)}},
			}),
			want:   Severity{Label: "LOW", Score: 3.1, HasScore: true},
			wantOK: true,
		},
		{
			name:    "empty V3.1 falls back to V2",
			metrics: NewMetrics([]CVSSMetricV2{{Source: "nvd@nist.gov", Type: "Primary", BaseSeverity: "low"}}, []CVSSMetricV31{}),
			want:    Severity{Label: "low"},
			wantOK:  true,
		},
		{
			name:    "neither",
			metrics: NewMetrics(nil, nil),
			wantOK:  false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Resolve(Vulnerability{ID: "CVE-2021-44228", Metrics: tt.metrics})
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSeverity_ScoreString(t *testing.T) {
	assert.Equal(t, "_", Severity{Label: "HIGH"}.ScoreString())
	assert.Equal(t, "0", Severity{Label: "LOW", HasScore: true}.ScoreString())
	assert.Equal(t, "9.8", Severity{Label: "CRITICAL", Score: 9.8, HasScore: true}.ScoreString())
}

func TestBucket(t *testing.T) {
	for _, label := range []string{"low", "LOW", "Low", " low "} {
		assert.Equal(t, BucketLow, Bucket(label), label)
	}
	assert.Equal(t, BucketCritical, Bucket("CRITICAL"))
	assert.Equal(t, "", Bucket("NONE"))
	assert.Equal(t, "", Bucket(""))
}

func TestMetrics_Kind(t *testing.T) {
	tests := []struct {
		input string
		want  MetricsKind
	}{
		{input: `{}`, want: MetricsNone},
		{input: `{"cvssMetricV2": []}`, want: MetricsNone},
		{input: `{"cvssMetricV2": [{"source": "a", "type": "Primary", "baseSeverity": "LOW"}]}`, want: MetricsV2},
		{input: `{"cvssMetricV31": [{"source": "a", "type": "Primary", "cvssData": {"version": "3.1", "baseSeverity": "LOW"}}]}`, want: MetricsV31},
		{input: `{"cvssMetricV2": [{"source": "a", "type": "Primary", "baseSeverity": "LOW"}], "cvssMetricV31": [{"source": "a", "type": "Primary", "cvssData": {"version": "3.1", "baseSeverity": "LOW"}}]}`, want: MetricsBoth},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			var m Metrics
			require.NoError(t, json.Unmarshal([]byte(tt.input), &m))
			assert.Equal(t, tt.want, m.Kind())
		})
	}
}

func TestDecode(t *testing.T) {
	f, err := os.Open("testdata/fixtures/window25.json")
	require.NoError(t, err)
	defer f.Close()

	got, err := decode(f)
	require.NoError(t, err)

	want := Page{
		ResultsPerPage: 3,
		StartIndex:     15,
		TotalResults:   25,
		Vulnerabilities: []Vulnerability{
			{
				ID:               "CVE-2021-44228",
				SourceIdentifier: "security@apache.org",
				Published:        "2021-12-10T10:15:09.143",
				LastModified:     "2023-04-03T20:15:08.007",
				VulnStatus:       "Analyzed",
				Descriptions: []Description{
					{Lang: "en", Value: "Apache Log4j2 JNDI features do not protect against attacker controlled LDAP and other JNDI related endpoints."},
					{Lang: "es", Value: "Las funciones JNDI de Apache Log4j2 no protegen contra LDAP controlado por el atacante."},
				},
				Metrics: NewMetrics(
					[]CVSSMetricV2{{
						Source:       "nvd@nist.gov",
						Type:         "Primary",
						BaseSeverity: "HIGH",
						CVSSData:     &CVSSDataV2{Version: "2.0", VectorString: "AV:N/AC:M/Au:N/C:C/I:C/A:C", BaseScore: float(9.3)},
					}},
					[]CVSSMetricV31{{
						Source: "nvd@nist.gov",
						Type:   "Primary",
						CVSSData: CVSSDataV31{
							Version:      "3.1",
							VectorString: "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:C/C:H/I:H/A:H",
							BaseScore:    float(10),
							BaseSeverity: "CRITICAL",
						},
					}},
				),
			},
			{
				ID:               "CVE-1999-0524",
				SourceIdentifier: "cve@mitre.org",
				Published:        "1997-08-01T04:00:00.000",
				LastModified:     "2019-06-11T20:29:00.263",
				VulnStatus:       "Modified",
				Descriptions: []Description{
					{Lang: "en", Value: "ICMP information such as (1) netmask and (2) timestamp is allowed from arbitrary hosts."},
				},
				Metrics: NewMetrics([]CVSSMetricV2{{
					Source:       "nvd@nist.gov",
					Type:         "Primary",
					BaseSeverity: "Low",
					CVSSData:     &CVSSDataV2{Version: "2.0", VectorString: "AV:L/AC:L/Au:N/C:N/I:N/A:N", BaseScore: float(0)},
				}}, nil),
			},
			{
				ID:               "CVE-2023-99999",
				SourceIdentifier: "cve@mitre.org",
				Published:        "2023-10-01T10:00:00.000",
				LastModified:     "2023-10-02T10:00:00.000",
				VulnStatus:       "Awaiting Analysis",
				Descriptions:     []Description{{Lang: "en", Value: "Not yet analyzed."}},
				Metrics:          NewMetrics(nil, nil),
			},
		},
	}
	if diff := pretty.Compare(want, got); diff != "" {
		t.Errorf("decode() diff: (-want +got)\n%s", diff)
	}
}

func TestVulnerability_Times(t *testing.T) {
	v := Vulnerability{Published: "2021-12-10T10:15:09.143", LastModified: "2023-04-03T20:15:08.007"}

	published, err := v.PublishedAt()
	require.NoError(t, err)
	assert.Equal(t, "2021-12-10", published.Format("2006-01-02"))

	lastModified, err := v.LastModifiedAt()
	require.NoError(t, err)
	assert.True(t, lastModified.After(published))

	_, err = Vulnerability{Published: "yesterday-ish"}.PublishedAt()
	assert.Error(t, err)
}
