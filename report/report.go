package report

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/aquasecurity/cve-watch/cpe"
	"github.com/aquasecurity/cve-watch/cve"
	"github.com/aquasecurity/cve-watch/nvd"
	"github.com/aquasecurity/cve-watch/subscription"
	"github.com/aquasecurity/cve-watch/utils"
)

const (
	defaultPageSize    = 10
	defaultConcurrency = 4
)

var (
	ErrInvalidIdentifier = xerrors.New("invalid identifier")
	ErrInvalidPage       = xerrors.New("page number has to be 1 or greater")
	ErrDateArithmetic    = xerrors.New("date arithmetic failure")
)

// Feed is the subset of nvd.Client used here.
type Feed interface {
	FetchAll(cpe string) (nvd.Page, error)
	FetchWindow(cpe string, amount, page int) (nvd.Page, error)
	FetchChangedWithin(cpe string, start, end int64) (nvd.Page, error)
	FetchByID(cveID string) (nvd.Page, error)
}

type Subscriptions interface {
	Add(ownerID int64, cpe string) error
	Remove(ownerID int64, cpe string) (bool, error)
	List(ownerID int64) ([]subscription.Subscription, error)
}

type options struct {
	pageSize    int
	concurrency int
	now         func() time.Time
	logger      *logrus.Entry
}

type Option func(*options)

func WithPageSize(n int) Option {
	return func(opts *options) { opts.pageSize = n }
}

// WithConcurrency bounds the number of CPEs queried at once by Digest.
func WithConcurrency(n int) Option {
	return func(opts *options) { opts.concurrency = n }
}

func WithClock(now func() time.Time) Option {
	return func(opts *options) { opts.now = now }
}

func WithLogger(logger *logrus.Entry) Option {
	return func(opts *options) { opts.logger = logger }
}

// Service validates caller input and turns it into feed queries.
type Service struct {
	*options
	feed Feed
	subs Subscriptions
	fs   utils.Fs
}

func NewService(feed Feed, subs Subscriptions, fs utils.Fs, opts ...Option) *Service {
	o := &options{
		pageSize:    defaultPageSize,
		concurrency: defaultConcurrency,
		now:         time.Now,
		logger:      logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(o)
	}
	return &Service{
		options: o,
		feed:    feed,
		subs:    subs,
		fs:      fs,
	}
}

func validateCPE(s string) error {
	if !cpe.IsValid(s) {
		return xerrors.Errorf("CPE has to follow the CPE 2.3 standard: %q: %w", s, ErrInvalidIdentifier)
	}
	return nil
}

func validateCVE(s string) error {
	if !cve.IsValid(s) {
		return xerrors.Errorf("invalid CVE string %q: %w", s, ErrInvalidIdentifier)
	}
	return nil
}

// List returns page `page` of the newest CVEs for a CPE.
func (s *Service) List(cpeName string, page int) (nvd.Page, error) {
	if err := validateCPE(cpeName); err != nil {
		return nvd.Page{}, err
	}
	if page < 1 {
		return nvd.Page{}, xerrors.Errorf("page %d: %w", page, ErrInvalidPage)
	}

	res, err := s.feed.FetchWindow(cpeName, s.pageSize, page)
	if err != nil {
		return nvd.Page{}, xerrors.Errorf("failed to retrieve CVEs for %s: %w", cpeName, err)
	}
	return res, nil
}

// Detail returns the record of a single CVE, or false when NVD doesn't know it.
func (s *Service) Detail(cveID string) (nvd.Vulnerability, bool, error) {
	if err := validateCVE(cveID); err != nil {
		return nvd.Vulnerability{}, false, err
	}

	res, err := s.feed.FetchByID(cveID)
	if err != nil {
		return nvd.Vulnerability{}, false, xerrors.Errorf("failed to retrieve %s: %w", cveID, err)
	}
	if len(res.Vulnerabilities) == 0 {
		return nvd.Vulnerability{}, false, nil
	}
	return res.Vulnerabilities[0], true, nil
}

// Histogram counts records per severity bucket.
type Histogram struct {
	Counts map[string]int
	// Unrated counts records without any score entry.
	Unrated int
	// Other counts labels outside the known buckets.
	Other int
}

func (h Histogram) Total() int {
	return lo.Sum(lo.Values(h.Counts)) + h.Unrated + h.Other
}

// Severities counts every CVE reported for a CPE by severity bucket.
func (s *Service) Severities(cpeName string) (Histogram, error) {
	if err := validateCPE(cpeName); err != nil {
		return Histogram{}, err
	}

	res, err := s.feed.FetchAll(cpeName)
	if err != nil {
		return Histogram{}, xerrors.Errorf("failed to retrieve CVEs for %s: %w", cpeName, err)
	}
	return NewHistogram(res.Vulnerabilities), nil
}

func NewHistogram(vulns []nvd.Vulnerability) Histogram {
	h := Histogram{Counts: lo.SliceToMap(nvd.Buckets, func(b string) (string, int) { return b, 0 })}
	for _, v := range vulns {
		sev, ok := v.Severity()
		if !ok {
			h.Unrated++
			continue
		}
		if b := nvd.Bucket(sev.Label); b != "" {
			h.Counts[b]++
		} else {
			h.Other++
		}
	}
	return h
}

func (s *Service) Subscribe(ownerID int64, cpeName string) error {
	name, err := cpe.Parse(cpeName)
	if err != nil {
		return xerrors.Errorf("CPE has to follow the CPE 2.3 standard: %q: %w", cpeName, ErrInvalidIdentifier)
	}
	if err = s.subs.Add(ownerID, cpeName); err != nil {
		return xerrors.Errorf("failed to add subscription: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"owner":   ownerID,
		"vendor":  name.Vendor,
		"product": name.Product,
		"version": name.Version,
	}).Info("Subscription added")
	return nil
}

func (s *Service) Unsubscribe(ownerID int64, cpeName string) (bool, error) {
	if err := validateCPE(cpeName); err != nil {
		return false, err
	}
	removed, err := s.subs.Remove(ownerID, cpeName)
	if err != nil {
		return false, xerrors.Errorf("failed to remove subscription: %w", err)
	}
	return removed, nil
}

// Subscriptions returns the CPEs ownerID watches.
func (s *Service) Subscriptions(ownerID int64) ([]string, error) {
	subs, err := s.subs.List(ownerID)
	if err != nil {
		return nil, xerrors.Errorf("failed to retrieve subscriptions: %w", err)
	}
	return lo.Map(subs, func(sub subscription.Subscription, _ int) string { return sub.CPE }), nil
}

// ChangedWindow returns the Unix seconds range covering the last `days` days
// up to now.
func ChangedWindow(now time.Time, days int) (start, end int64, err error) {
	if days < 0 {
		return 0, 0, xerrors.Errorf("negative number of days %d: %w", days, ErrDateArithmetic)
	}
	if int64(days) > math.MaxInt64/int64(24*time.Hour) {
		return 0, 0, xerrors.Errorf("%d days overflows: %w", days, ErrDateArithmetic)
	}
	from := now.Add(-time.Duration(days) * 24 * time.Hour)
	if from.Before(time.Unix(0, 0)) {
		return 0, 0, xerrors.Errorf("%d days before %s is before the Unix epoch: %w", days,
			now.Format(time.RFC3339), ErrDateArithmetic)
	}
	return from.Unix(), now.Unix(), nil
}

// DigestEntry holds the changed CVEs of one CPE. Err is set when that CPE
// alone could not be queried.
type DigestEntry struct {
	CPE  string
	Page nvd.Page
	Err  error
}

// Digest queries every CPE for CVEs modified within the last `days` days.
// Entries keep the order of cpes; done, if not nil, is called once per CPE.
func (s *Service) Digest(cpes []string, days int, done func()) ([]DigestEntry, error) {
	start, end, err := ChangedWindow(s.now(), days)
	if err != nil {
		return nil, err
	}

	entries := make([]DigestEntry, len(cpes))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, c := range cpes {
		g.Go(func() error {
			if done != nil {
				defer done()
			}
			entries[i].CPE = c
			if err := validateCPE(c); err != nil {
				entries[i].Err = err
				return nil
			}
			page, err := s.feed.FetchChangedWithin(c, start, end)
			if err != nil {
				s.logger.WithField("cpe", c).WithError(err).Warn("Unable to retrieve changed CVEs")
				entries[i].Err = xerrors.Errorf("failed to retrieve changed CVEs for %s: %w", c, err)
				return nil
			}
			entries[i].Page = page
			return nil
		})
	}
	_ = g.Wait()
	return entries, nil
}

// DigestOwner runs Digest over the subscriptions of ownerID. started, if not
// nil, receives the number of subscriptions before any of them is queried.
func (s *Service) DigestOwner(ownerID int64, days int, started func(total int), done func()) ([]DigestEntry, error) {
	cpes, err := s.Subscriptions(ownerID)
	if err != nil {
		return nil, err
	}
	if started != nil {
		started(len(cpes))
	}
	return s.Digest(cpes, days, done)
}

// Export writes every CVE reported for a CPE as JSON to path.
func (s *Service) Export(cpeName, path string) (int, error) {
	if err := validateCPE(cpeName); err != nil {
		return 0, err
	}

	res, err := s.feed.FetchAll(cpeName)
	if err != nil {
		return 0, xerrors.Errorf("failed to retrieve CVEs for %s: %w", cpeName, err)
	}
	if err = s.fs.WriteJSON(path, res); err != nil {
		return 0, xerrors.Errorf("failed to export %s: %w", path, err)
	}
	s.logger.WithFields(logrus.Fields{"cpe": cpeName, "path": path, "count": len(res.Vulnerabilities)}).Info("Exported CVEs")
	return len(res.Vulnerabilities), nil
}

// ExportTree writes every CVE reported for a CPE as one JSON file per CVE,
// laid out as <dir>/<year>/<cve-id>.json.
func (s *Service) ExportTree(cpeName, dir string) (int, error) {
	if err := validateCPE(cpeName); err != nil {
		return 0, err
	}

	res, err := s.feed.FetchAll(cpeName)
	if err != nil {
		return 0, xerrors.Errorf("failed to retrieve CVEs for %s: %w", cpeName, err)
	}

	var n int
	for _, v := range res.Vulnerabilities {
		year, err := cve.Year(v.ID)
		if err != nil {
			s.logger.WithField("id", v.ID).Warn("Skipping a CVE with an unexpected ID")
			continue
		}
		filePath := filepath.Join(dir, strconv.Itoa(year), fmt.Sprintf("%s.json", v.ID))
		if err = s.fs.WriteJSON(filePath, v); err != nil {
			return n, xerrors.Errorf("failed to export %s: %w", v.ID, err)
		}
		n++
	}
	s.logger.WithFields(logrus.Fields{"cpe": cpeName, "dir": dir, "count": n}).Info("Exported CVEs")
	return n, nil
}
