package console

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cheggaaa/pb/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"golang.org/x/xerrors"

	"github.com/aquasecurity/cve-watch/nvd"
	"github.com/aquasecurity/cve-watch/report"
)

const (
	prompt      = "Enter a command:"
	defaultDays = 7
)

// Reporter is implemented by *report.Service.
type Reporter interface {
	List(cpe string, page int) (nvd.Page, error)
	Detail(cveID string) (nvd.Vulnerability, bool, error)
	Severities(cpe string) (report.Histogram, error)
	Subscribe(ownerID int64, cpe string) error
	Unsubscribe(ownerID int64, cpe string) (bool, error)
	Subscriptions(ownerID int64) ([]string, error)
	DigestOwner(ownerID int64, days int, started func(total int), done func()) ([]report.DigestEntry, error)
	Export(cpe, path string) (int, error)
	ExportTree(cpe, dir string) (int, error)
}

type command struct {
	usage   string
	minArgs int
	run     func(args []string)
}

// Console reads one command per line and writes the answers as text. A
// failing command is reported and the loop goes on.
type Console struct {
	reporter Reporter
	ownerID  int64
	out      io.Writer
	progress io.Writer
	logger   *logrus.Entry
	commands map[string]command
}

func New(reporter Reporter, ownerID int64, out, progress io.Writer, logger *logrus.Entry) *Console {
	c := &Console{
		reporter: reporter,
		ownerID:  ownerID,
		out:      out,
		progress: progress,
		logger:   logger,
	}
	c.commands = map[string]command{
		"/start":         {usage: "/start", run: c.start},
		"/help":          {usage: "/help", run: c.help},
		"/list_cves":     {usage: "/list_cves <cpe2.3_string> <OPTIONAL:page_number>", minArgs: 1, run: c.listCVEs},
		"/cve_detail":    {usage: "/cve_detail <cve_id>", minArgs: 1, run: c.cveDetail},
		"/cvss_graph":    {usage: "/cvss_graph <cpe2.3_string>", minArgs: 1, run: c.cvssGraph},
		"/subscribe":     {usage: "/subscribe <cpe2.3_string>", minArgs: 1, run: c.subscribe},
		"/unsubscribe":   {usage: "/unsubscribe <cpe2.3_string>", minArgs: 1, run: c.unsubscribe},
		"/subscriptions": {usage: "/subscriptions", run: c.subscriptions},
		"/new_cves":      {usage: "/new_cves <days_ago>", minArgs: 1, run: c.newCVEs},
		"/export":        {usage: "/export <cpe2.3_string> <path>", minArgs: 2, run: c.export},
		"/export_tree":   {usage: "/export_tree <cpe2.3_string> <dir>", minArgs: 2, run: c.exportTree},
	}
	return c
}

// Run handles lines from in until EOF or /quit.
func (c *Console) Run(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		c.println(prompt)
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "/quit" {
			return nil
		}
		if line == "" {
			continue
		}
		c.Handle(line)
	}
	if err := scanner.Err(); err != nil {
		return xerrors.Errorf("unable to read input: %w", err)
	}
	return nil
}

// Handle runs a single command line and reports whether it was valid.
func (c *Console) Handle(line string) bool {
	args := strings.Fields(line)
	if len(args) == 0 {
		return false
	}
	name, args := args[0], args[1:]

	cmd, ok := c.commands[name]
	if !ok {
		c.println("Invalid command")
		return false
	}
	if len(args) < cmd.minArgs {
		c.printf("Too few arguments. Usage: %s\n", cmd.usage)
		return false
	}

	c.logger.WithField("command", name).Info("Valid command")
	cmd.run(args)
	return true
}

func (c *Console) println(s string) {
	fmt.Fprintln(c.out, s)
}

func (c *Console) printf(format string, args ...interface{}) {
	fmt.Fprintf(c.out, format, args...)
}

func (c *Console) failed(what string, err error) {
	c.logger.WithError(err).Warn(what)
	c.printf("%s. Error: %s\n", what, err)
}

func (c *Console) start(_ []string) {
	c.println("Welcome! Begin typing '/' to see available commands.\n" +
		"To see their usage just enter the command without any parameters.")
}

func (c *Console) help(_ []string) {
	names := maps.Keys(c.commands)
	slices.Sort(names)
	for _, name := range names {
		c.println(c.commands[name].usage)
	}
}

func (c *Console) listCVEs(args []string) {
	cpeName := args[0]
	page := 1
	if len(args) >= 2 {
		if p, err := strconv.Atoi(args[1]); err == nil {
			page = p
		}
	}
	if page < 1 {
		c.println("Invalid page number. Page number has to be 1 or greater.")
		return
	}

	c.printf("Fetching CVEs for CPE (page %d):\n%s ...\n", page, cpeName)
	res, err := c.reporter.List(cpeName, page)
	if err != nil {
		c.failed("Failed to retrieve information from NIST", err)
		return
	}
	c.printf("%d CVEs in total\n", res.TotalResults)
	c.printf("%s", report.Summary(res.Vulnerabilities))
}

func (c *Console) cveDetail(args []string) {
	c.printf("Fetching CVE details for %s ...\n", args[0])
	v, found, err := c.reporter.Detail(args[0])
	switch {
	case err != nil:
		c.failed("Failed to retrieve information from NIST", err)
	case !found:
		c.printf("%s not found\n", args[0])
	default:
		c.println(report.Detail(v))
	}
}

func (c *Console) cvssGraph(args []string) {
	c.printf("Creating CVSS score graph for CPE:\n%s ...\n", args[0])
	h, err := c.reporter.Severities(args[0])
	if err != nil {
		c.failed("Failed to create graph", err)
		return
	}
	c.printf("%s", h.Render())
}

func (c *Console) subscribe(args []string) {
	c.printf("Adding your subscription of CPE=%s ...\n", args[0])
	if err := c.reporter.Subscribe(c.ownerID, args[0]); err != nil {
		c.failed("Failed to insert subscription to DB", err)
		return
	}
	c.println("Subscription successfully added!")
}

func (c *Console) unsubscribe(args []string) {
	removed, err := c.reporter.Unsubscribe(c.ownerID, args[0])
	switch {
	case err != nil:
		c.failed("Failed to remove subscription from DB", err)
	case !removed:
		c.printf("You are not subscribed to %s\n", args[0])
	default:
		c.println("Subscription successfully removed!")
	}
}

func (c *Console) subscriptions(_ []string) {
	c.println("Retrieving your subscribed CPEs ...")
	cpes, err := c.reporter.Subscriptions(c.ownerID)
	if err != nil {
		c.failed("Failed to retrieve subscriptions from DB", err)
		return
	}
	c.println("Your subscribed CPEs:")
	for _, cpeName := range cpes {
		c.println(cpeName)
	}
}

func (c *Console) newCVEs(args []string) {
	days, err := strconv.Atoi(args[0])
	if err != nil {
		days = defaultDays
	}

	c.println("Retrieving new CVEs for your subscribed CPEs ...")
	var bar *pb.ProgressBar
	entries, err := c.reporter.DigestOwner(c.ownerID, days, func(total int) {
		bar = pb.New(total)
		bar.SetWriter(c.progress)
		bar.Start()
	}, func() { bar.Increment() })
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		c.failed("Failed to retrieve new CVEs", err)
		return
	}
	c.printf("%s", report.RenderDigest(entries, days))
}

func (c *Console) export(args []string) {
	c.printf("Exporting CVEs for CPE:\n%s ...\n", args[0])
	n, err := c.reporter.Export(args[0], args[1])
	if err != nil {
		c.failed("Failed to export CVEs", err)
		return
	}
	c.printf("Exported %d CVEs to %s\n", n, args[1])
}

func (c *Console) exportTree(args []string) {
	c.printf("Exporting CVEs for CPE:\n%s ...\n", args[0])
	n, err := c.reporter.ExportTree(args[0], args[1])
	if err != nil {
		c.failed("Failed to export CVEs", err)
		return
	}
	c.printf("Exported %d CVEs under %s\n", n, args[1])
}
