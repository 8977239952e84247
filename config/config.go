package config

import (
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"

	"github.com/aquasecurity/cve-watch/utils"
)

const (
	defaultBaseURL     = "https://services.nvd.nist.gov/rest/json/cves/2.0"
	defaultTimeout     = 60 * time.Second
	defaultPageSize    = 10
	defaultConcurrency = 4
	dbFileName         = "db.sqlite3"
)

type Config struct {
	NVD      NVD     `yaml:"nvd"`
	DB       DB      `yaml:"db"`
	Digest   Digest  `yaml:"digest"`
	Console  Console `yaml:"console"`
	Log      Log     `yaml:"log"`
	PageSize int     `yaml:"page_size"`
}

type NVD struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

type DB struct {
	Path string `yaml:"path"`
}

type Digest struct {
	// Concurrency bounds the number of CPEs queried at once.
	Concurrency int `yaml:"concurrency"`
}

type Console struct {
	OwnerID int64 `yaml:"owner_id"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() Config {
	return Config{
		NVD: NVD{
			BaseURL: defaultBaseURL,
			Timeout: defaultTimeout,
		},
		DB: DB{
			Path: filepath.Join(utils.CacheDir(), dbFileName),
		},
		Digest: Digest{
			Concurrency: defaultConcurrency,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		PageSize: defaultPageSize,
	}
}

// Load reads the YAML file at path on top of the defaults and applies
// environment overrides. An empty path skips the file.
func Load(fs afero.Fs, path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := afero.ReadFile(fs, path)
		if err != nil {
			return Config{}, xerrors.Errorf("unable to read config %s: %w", path, err)
		}
		if err = yaml.UnmarshalStrict(b, &cfg); err != nil {
			return Config{}, xerrors.Errorf("unable to parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.NVD.APIKey = utils.LookupEnv("NVD_API_KEY", c.NVD.APIKey)
	c.NVD.BaseURL = utils.LookupEnv("NVD_BASE_URL", c.NVD.BaseURL)
	c.DB.Path = utils.LookupEnv("CVE_WATCH_DB", c.DB.Path)
	c.Log.Level = utils.LookupEnv("CVE_WATCH_LOG_LEVEL", c.Log.Level)

	if s := utils.LookupEnv("CVE_WATCH_OWNER_ID", ""); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return xerrors.Errorf("invalid CVE_WATCH_OWNER_ID %q: %w", s, err)
		}
		c.Console.OwnerID = id
	}
	return nil
}

func (c Config) Validate() error {
	switch {
	case c.NVD.BaseURL == "":
		return xerrors.New("nvd.base_url must not be empty")
	case c.NVD.Timeout <= 0:
		return xerrors.Errorf("nvd.timeout must be positive: %s", c.NVD.Timeout)
	case c.DB.Path == "":
		return xerrors.New("db.path must not be empty")
	case c.Digest.Concurrency < 1:
		return xerrors.Errorf("digest.concurrency must be 1 or greater: %d", c.Digest.Concurrency)
	case c.PageSize < 1:
		return xerrors.Errorf("page_size must be 1 or greater: %d", c.PageSize)
	case c.Log.Format != "text" && c.Log.Format != "json":
		return xerrors.Errorf("log.format must be text or json: %q", c.Log.Format)
	}
	return nil
}
