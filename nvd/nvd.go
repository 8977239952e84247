package nvd

import (
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

const (
	url20          = "https://services.nvd.nist.gov/rest/json/cves/2.0"
	apiKeyEnvName  = "NVD_API_KEY"
	defaultTimeout = 60 * time.Second

	// The remote side expects an offset; the same literal is sent whatever the
	// zone of the instant is.
	nvdTimeFormat = "2006-01-02T15:04:05.000"
	nvdTimeSuffix = "%2B01:00"
)

type options struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logrus.Entry
}

type Option func(*options)

func WithBaseURL(url string) Option {
	return func(opts *options) {
		opts.baseURL = url
	}
}

func WithAPIKey(apiKey string) Option {
	return func(opts *options) {
		opts.apiKey = apiKey
	}
}

// WithHTTPClient sets the client used for every call. Share one client so that
// connections are pooled.
func WithHTTPClient(c *http.Client) Option {
	return func(opts *options) {
		opts.httpClient = c
	}
}

func WithLogger(logger *logrus.Entry) Option {
	return func(opts *options) {
		opts.logger = logger
	}
}

// Client queries the NVD CVE API 2.0. It holds no mutable state and is safe
// for concurrent use. Identifiers are expected to be validated by the caller.
type Client struct {
	*options
}

func NewClient(opts ...Option) Client {
	o := &options{
		baseURL:    url20,
		apiKey:     os.Getenv(apiKeyEnvName),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logrus.NewEntry(logrus.StandardLogger()),
	}

	for _, opt := range opts {
		opt(o)
	}
	return Client{
		options: o,
	}
}

// FetchAll returns every record the API reports for cpe in a single response.
func (c Client) FetchAll(cpe string) (Page, error) {
	return c.query(param("cpeName", cpe))
}

// FetchWindow returns page `page` (1-indexed) of `amount` records counted
// backwards from the most recently indexed record.
//
// The API only accepts absolute offsets, so a probe with resultsPerPage=1 is
// sent first to learn totalResults, then the window is requested. Records
// indexed or removed between the two calls shift the window by that many
// records; the second response is returned as is.
func (c Client) FetchWindow(cpe string, amount, page int) (Page, error) {
	if amount < 1 || page < 1 {
		return Page{}, xerrors.Errorf("amount=%d page=%d: %w", amount, page, ErrInvalidWindow)
	}

	probe, err := c.query(param("cpeName", cpe), param("resultsPerPage", "1"), param("startIndex", "0"))
	if err != nil {
		return Page{}, xerrors.Errorf("unable to get total results: %w", err)
	}

	offset := WindowOffset(probe.TotalResults, amount, page)
	window, err := c.query(param("cpeName", cpe), param("resultsPerPage", strconv.Itoa(amount)),
		param("startIndex", strconv.Itoa(offset)))
	if err != nil {
		return Page{}, xerrors.Errorf("unable to get window: %w", err)
	}

	if window.TotalResults != probe.TotalResults {
		c.logger.WithFields(logrus.Fields{
			"cpe":    cpe,
			"probe":  probe.TotalResults,
			"window": window.TotalResults,
		}).Warn("Total results changed between probe and window calls")
	}
	return window, nil
}

// WindowOffset computes the startIndex of page `page` of size `amount` counted
// from the end of a result set of `total` records. Windows reaching past the
// oldest record start at 0.
func WindowOffset(total, amount, page int) int {
	if total < 1 || amount < 1 || page < 1 {
		return 0
	}
	// amount*page < total, without overflowing the product
	if page <= (total-1)/amount {
		return total - amount*page
	}
	return 0
}

// FetchChangedWithin returns the records for cpe last modified between start
// and end, both in Unix seconds.
func (c Client) FetchChangedWithin(cpe string, start, end int64) (Page, error) {
	return c.query(
		param("cpeName", cpe),
		rawParam("lastModStartDate", FormatTimestamp(start)),
		rawParam("lastModEndDate", FormatTimestamp(end)),
	)
}

// FetchByID returns the page holding the record with the given CVE ID. The
// page is empty when the ID is unknown.
func (c Client) FetchByID(cveID string) (Page, error) {
	return c.query(param("cveId", cveID))
}

// FormatTimestamp formats Unix seconds as the API expects, with the offset
// already percent-encoded.
func FormatTimestamp(epochSeconds int64) string {
	return time.Unix(epochSeconds, 0).UTC().Format(nvdTimeFormat) + nvdTimeSuffix
}

type queryParam struct {
	key   string
	value string
	raw   bool
}

func param(key, value string) queryParam {
	return queryParam{key: key, value: value}
}

// rawParam is appended verbatim.
func rawParam(key, value string) queryParam {
	return queryParam{key: key, value: value, raw: true}
}

func (c Client) urlWithParams(params ...queryParam) string {
	pairs := make([]string, 0, len(params))
	for _, p := range params {
		v := p.value
		if !p.raw {
			v = url.QueryEscape(v)
		}
		pairs = append(pairs, p.key+"="+v)
	}
	return c.baseURL + "?" + strings.Join(pairs, "&")
}

// query sends a single GET. There are no retries: transport failures, non-2xx
// statuses and undecodable bodies all fail the call.
func (c Client) query(params ...queryParam) (Page, error) {
	u := c.urlWithParams(params...)
	log := c.logger.WithField("url", u)

	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return Page{}, xerrors.Errorf("unable to build request for %q: %w", u, err)
	}
	if c.apiKey != "" {
		req.Header.Set("apiKey", c.apiKey)
	}

	log.Debug("Fetching NVD API")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.WithError(err).Error("NVD API request failed")
		return Page{}, xerrors.Errorf("%v: %w", err, ErrRemoteUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.WithField("status", resp.StatusCode).Error("NVD API refused the request")
		return Page{}, &RejectedError{StatusCode: resp.StatusCode}
	}

	page, err := decode(resp.Body)
	if err != nil {
		log.WithError(err).Error("Unable to decode NVD API response")
		return Page{}, xerrors.Errorf("unable to decode response for %q: %w", u, err)
	}
	log.WithField("total", page.TotalResults).Debug("Fetched NVD API")
	return page, nil
}
