package console_test

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/aquasecurity/cve-watch/console"
	"github.com/aquasecurity/cve-watch/nvd"
	"github.com/aquasecurity/cve-watch/report"
)

const log4j = "cpe:2.3:a:apache:log4j:2.14.1:*:*:*:*:*:*:*"

type fakeReporter struct {
	page      nvd.Page
	vuln      nvd.Vulnerability
	found     bool
	histogram report.Histogram
	subs      []string
	entries   []report.DigestEntry
	err       error

	listPage    int
	digestOwner int64
	digestDays  int
	exported    []string
}

func (f *fakeReporter) List(cpe string, page int) (nvd.Page, error) {
	f.listPage = page
	return f.page, f.err
}

func (f *fakeReporter) Detail(cveID string) (nvd.Vulnerability, bool, error) {
	return f.vuln, f.found, f.err
}

func (f *fakeReporter) Severities(cpe string) (report.Histogram, error) {
	return f.histogram, f.err
}

func (f *fakeReporter) Subscribe(ownerID int64, cpe string) error {
	if f.err != nil {
		return f.err
	}
	f.subs = append(f.subs, cpe)
	return nil
}

func (f *fakeReporter) Unsubscribe(ownerID int64, cpe string) (bool, error) {
	for i, c := range f.subs {
		if c == cpe {
			f.subs = append(f.subs[:i], f.subs[i+1:]...)
			return true, nil
		}
	}
	return false, f.err
}

func (f *fakeReporter) Subscriptions(ownerID int64) ([]string, error) {
	return f.subs, f.err
}

func (f *fakeReporter) DigestOwner(ownerID int64, days int, started func(total int), done func()) ([]report.DigestEntry, error) {
	f.digestOwner = ownerID
	f.digestDays = days
	if f.err != nil {
		return nil, f.err
	}
	started(len(f.subs))
	for range f.subs {
		done()
	}
	return f.entries, nil
}

func (f *fakeReporter) Export(cpe, path string) (int, error) {
	f.exported = append(f.exported, path)
	return len(f.page.Vulnerabilities), f.err
}

func (f *fakeReporter) ExportTree(cpe, dir string) (int, error) {
	f.exported = append(f.exported, dir)
	return len(f.page.Vulnerabilities), f.err
}

func newConsole(r console.Reporter) (*console.Console, *bytes.Buffer, *test.Hook) {
	logger, hook := test.NewNullLogger()
	out := &bytes.Buffer{}
	return console.New(r, 1, out, io.Discard, logrus.NewEntry(logger)), out, hook
}

func TestConsole_Handle(t *testing.T) {
	rated := nvd.Vulnerability{
		ID: "CVE-2021-44228",
		Metrics: nvd.NewMetrics(nil, []nvd.CVSSMetricV31{{
			Source:   "nvd@nist.gov",
			Type:     "Primary",
			CVSSData: nvd.CVSSDataV31{Version: "3.1", BaseSeverity: "CRITICAL"},
		}}),
	}

	tests := []struct {
		name      string
		line      string
		reporter  *fakeReporter
		wantValid bool
		wantOut   []string
	}{
		{
			name:      "unknown command",
			line:      "/list",
			reporter:  &fakeReporter{},
			wantValid: false,
			wantOut:   []string{"Invalid command\n"},
		},
		{
			name:      "too few arguments",
			line:      "/list_cves",
			reporter:  &fakeReporter{},
			wantValid: false,
			wantOut:   []string{"Too few arguments. Usage: /list_cves <cpe2.3_string> <OPTIONAL:page_number>\n"},
		},
		{
			name:      "list cves",
			line:      "/list_cves " + log4j + " 2",
			reporter:  &fakeReporter{page: nvd.Page{TotalResults: 25, Vulnerabilities: []nvd.Vulnerability{rated, {ID: "CVE-2023-99999"}}}},
			wantValid: true,
			wantOut: []string{
				"Fetching CVEs for CPE (page 2):\n" + log4j + " ...\n",
				"25 CVEs in total\n",
				"CVE-2021-44228 - CRITICAL - _\n",
				"CVE-2023-99999 - NO METRIC AVAILABLE\n",
			},
		},
		{
			name:      "list cves with bad page",
			line:      "/list_cves " + log4j + " -1",
			reporter:  &fakeReporter{},
			wantValid: true,
			wantOut:   []string{"Invalid page number. Page number has to be 1 or greater.\n"},
		},
		{
			name:      "list cves remote failure",
			line:      "/list_cves " + log4j,
			reporter:  &fakeReporter{err: &nvd.RejectedError{StatusCode: 403}},
			wantValid: true,
			wantOut:   []string{"Failed to retrieve information from NIST. Error: NVD API endpoint refused the request: status code 403\n"},
		},
		{
			name:      "cve detail",
			line:      "/cve_detail CVE-2021-44228",
			reporter:  &fakeReporter{vuln: rated, found: true},
			wantValid: true,
			wantOut:   []string{"CVE-2021-44228 :\n", "Severity: CRITICAL (CVSS V3.1)\n", "NVD Link: https://nvd.nist.gov/vuln/detail/CVE-2021-44228\n"},
		},
		{
			name:      "cve not found",
			line:      "/cve_detail CVE-2021-99999",
			reporter:  &fakeReporter{},
			wantValid: true,
			wantOut:   []string{"CVE-2021-99999 not found\n"},
		},
		{
			name:      "cvss graph",
			line:      "/cvss_graph " + log4j,
			reporter:  &fakeReporter{histogram: report.NewHistogram([]nvd.Vulnerability{rated})},
			wantValid: true,
			wantOut:   []string{"CVSS severity of 1 CVEs:\n"},
		},
		{
			name:      "subscribe",
			line:      "/subscribe " + log4j,
			reporter:  &fakeReporter{},
			wantValid: true,
			wantOut:   []string{"Subscription successfully added!\n"},
		},
		{
			name:      "unsubscribe unknown",
			line:      "/unsubscribe " + log4j,
			reporter:  &fakeReporter{},
			wantValid: true,
			wantOut:   []string{"You are not subscribed to " + log4j + "\n"},
		},
		{
			name:      "subscriptions",
			line:      "/subscriptions",
			reporter:  &fakeReporter{subs: []string{log4j}},
			wantValid: true,
			wantOut:   []string{"Your subscribed CPEs:\n" + log4j + "\n"},
		},
		{
			name: "new cves",
			line: "/new_cves 3",
			reporter: &fakeReporter{
				subs:    []string{log4j},
				entries: []report.DigestEntry{{CPE: log4j, Page: nvd.Page{Vulnerabilities: []nvd.Vulnerability{rated}}}},
			},
			wantValid: true,
			wantOut:   []string{"Updated CVEs for the latest 3 days:\n" + log4j + " :\nCVE-2021-44228 - CRITICAL - _\n"},
		},
		{
			name:      "export",
			line:      "/export " + log4j + " /tmp/log4j.json",
			reporter:  &fakeReporter{page: nvd.Page{Vulnerabilities: []nvd.Vulnerability{rated}}},
			wantValid: true,
			wantOut:   []string{"Exported 1 CVEs to /tmp/log4j.json\n"},
		},
		{
			name:      "export tree",
			line:      "/export_tree " + log4j + " /tmp/log4j",
			reporter:  &fakeReporter{page: nvd.Page{Vulnerabilities: []nvd.Vulnerability{rated}}},
			wantValid: true,
			wantOut:   []string{"Exported 1 CVEs under /tmp/log4j\n"},
		},
		{
			name:      "export tree without dir",
			line:      "/export_tree " + log4j,
			reporter:  &fakeReporter{},
			wantValid: false,
			wantOut:   []string{"Too few arguments. Usage: /export_tree <cpe2.3_string> <dir>\n"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, out, _ := newConsole(tt.reporter)
			assert.Equal(t, tt.wantValid, c.Handle(tt.line))
			for _, want := range tt.wantOut {
				assert.Contains(t, out.String(), want)
			}
		})
	}
}

func TestConsole_NewCVEsDefaultDays(t *testing.T) {
	r := &fakeReporter{}
	c, _, _ := newConsole(r)
	c.Handle("/new_cves week")
	assert.Equal(t, 7, r.digestDays)
	assert.Equal(t, int64(1), r.digestOwner)
}

func TestConsole_NewCVEsProgress(t *testing.T) {
	r := &fakeReporter{subs: []string{log4j, "cpe:2.3:o:linux:linux_kernel:5.10:*:*:*:*:*:*:*"}}
	logger, _ := test.NewNullLogger()
	out, progress := &bytes.Buffer{}, &bytes.Buffer{}
	c := console.New(r, 1, out, progress, logrus.NewEntry(logger))

	assert.True(t, c.Handle("/new_cves 3"))
	assert.Contains(t, out.String(), "Updated CVEs for the latest 3 days:\n")
	assert.NotEmpty(t, progress.String())
}

func TestConsole_NewCVEsSubscriptionsFail(t *testing.T) {
	r := &fakeReporter{err: xerrors.New("database is locked")}
	c, out, hook := newConsole(r)

	assert.True(t, c.Handle("/new_cves 3"))
	assert.Contains(t, out.String(), "Failed to retrieve new CVEs. Error: database is locked\n")
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestConsole_Run(t *testing.T) {
	r := &fakeReporter{}
	c, out, hook := newConsole(r)

	in := strings.NewReader(strings.Join([]string{
		"/subscribe " + log4j,
		"",
		"/bogus",
		"/subscriptions",
		"/quit",
		"/subscriptions",
	}, "\n"))
	require.NoError(t, c.Run(in))

	assert.Equal(t, []string{log4j}, r.subs)
	assert.Equal(t, 5, strings.Count(out.String(), "Enter a command:\n"))
	assert.Equal(t, 1, strings.Count(out.String(), "Your subscribed CPEs:\n"))
	assert.Contains(t, out.String(), "Invalid command\n")

	require.Len(t, hook.AllEntries(), 2)
	assert.Equal(t, "/subscribe", hook.AllEntries()[0].Data["command"])
}

func TestConsole_Help(t *testing.T) {
	c, out, _ := newConsole(&fakeReporter{})
	c.Handle("/help")
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 11)
	assert.Equal(t, "/cve_detail <cve_id>", lines[0])
}
