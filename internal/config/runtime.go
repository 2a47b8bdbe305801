package config

import (
	"log"
	"strings"

	"github.com/ajramos/keycheck/internal/catalog"
	"github.com/ajramos/keycheck/internal/report"
	"github.com/ajramos/keycheck/internal/verify"
)

// LoadCatalog loads catalog.path, or the built-in catalog when it is empty
func (c *Config) LoadCatalog() (*catalog.Catalog, error) {
	if strings.TrimSpace(c.Catalog.Path) == "" {
		return catalog.Builtin(), nil
	}
	return catalog.LoadFile(ResolvePath(c.Catalog.Path))
}

// RunnerOptions turns the runner and target sections into runner options
func (c *Config) RunnerOptions(logger *log.Logger) (verify.Options, error) {
	timeouts, err := c.GetCategoryTimeouts()
	if err != nil {
		return verify.Options{}, err
	}
	return verify.Options{
		DefaultTimeout: c.GetDefaultTimeout(),
		Timeouts:       timeouts,
		Concurrency:    c.Runner.Concurrency,
		Metadata: report.Metadata{
			Application: c.Target.Application,
			URL:         c.Target.URL,
			Platform:    c.Target.Platform,
			Browser:     c.Target.Browser,
		},
		Logger: logger,
	}, nil
}

// GetHistoryPath returns history.path expanded, or the default database path
func (c *Config) GetHistoryPath() string {
	if p := strings.TrimSpace(c.History.Path); p != "" {
		return ResolvePath(p)
	}
	return DefaultHistoryPath()
}
