package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/xerrors"

	"github.com/aquasecurity/cve-watch/config"
	"github.com/aquasecurity/cve-watch/console"
	"github.com/aquasecurity/cve-watch/nvd"
	"github.com/aquasecurity/cve-watch/report"
	"github.com/aquasecurity/cve-watch/subscription"
	"github.com/aquasecurity/cve-watch/utils"
)

var (
	configPath = flag.String("config", utils.LookupEnv("CVE_WATCH_CONFIG", ""), "path to a YAML config file")
	dbPath     = flag.String("db", "", "path to the subscription database (overrides db.path)")
	logLevel   = flag.String("log-level", "", "log level (overrides log.level)")
	ownerID    = flag.Int64("owner", 0, "subscription owner id (overrides console.owner_id)")
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	flag.Parse()

	appFs := afero.NewOsFs()
	cfg, err := config.Load(appFs, *configPath)
	if err != nil {
		return xerrors.Errorf("config error: %w", err)
	}
	applyFlags(&cfg)

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}

	if err = os.MkdirAll(filepath.Dir(cfg.DB.Path), 0755); err != nil {
		return xerrors.Errorf("unable to create a database dir: %w", err)
	}
	db, err := subscription.Open(cfg.DB.Path)
	if err != nil {
		return xerrors.Errorf("database error: %w", err)
	}
	defer db.Close()

	store := subscription.NewStore(db)
	if err = store.Init(); err != nil {
		return xerrors.Errorf("database error: %w", err)
	}

	// one pooled client for every NVD call
	httpClient := &http.Client{
		Timeout: cfg.NVD.Timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
		},
	}
	feed := nvd.NewClient(
		nvd.WithBaseURL(cfg.NVD.BaseURL),
		nvd.WithAPIKey(cfg.NVD.APIKey),
		nvd.WithHTTPClient(httpClient),
		nvd.WithLogger(logger.WithField("component", "nvd")),
	)

	svc := report.NewService(feed, store, utils.NewFs(appFs),
		report.WithPageSize(cfg.PageSize),
		report.WithConcurrency(cfg.Digest.Concurrency),
		report.WithLogger(logger.WithField("component", "report")),
	)

	c := console.New(svc, cfg.Console.OwnerID, os.Stdout, os.Stderr, logger.WithField("component", "console"))

	// a command given on the command line runs once
	if flag.NArg() > 0 {
		c.Handle(strings.Join(flag.Args(), " "))
		return nil
	}

	logger.Infof("Console started, subscriptions are stored in %s", cfg.DB.Path)
	return c.Run(os.Stdin)
}

func applyFlags(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "db":
			cfg.DB.Path = *dbPath
		case "log-level":
			cfg.Log.Level = *logLevel
		case "owner":
			cfg.Console.OwnerID = *ownerID
		}
	})
}

func newLogger(cfg config.Log) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, xerrors.Errorf("invalid log level: %w", err)
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(level)
	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}
