package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Issue is a single validation finding. Path is the dotted config key.
type Issue struct {
	Path    string
	Message string
}

func (i Issue) Error() string {
	return fmt.Sprintf("config %s: %s", i.Path, i.Message)
}

// Issues lists every problem with c without stopping at the first.
func (c Config) Issues() []Issue {
	var out []Issue
	add := func(path, format string, args ...any) {
		out = append(out, Issue{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Store.DSN) == "" {
			add("store.dsn", "required when store.driver is postgres")
		}
	default:
		add("store.driver", "unknown driver %q (want memory or postgres)", c.Store.Driver)
	}

	if c.Engine.PageSize <= 0 {
		add("engine.page_size", "must be positive, got %d", c.Engine.PageSize)
	}
	if c.Engine.MaxConcurrent <= 0 {
		add("engine.max_concurrent", "must be positive, got %d", c.Engine.MaxConcurrent)
	}
	if c.Engine.ProgressTimeout <= 0 {
		add("engine.progress_timeout", "must be positive")
	}
	if c.Engine.ProbeTimeout <= 0 {
		add("engine.probe_timeout", "must be positive")
	}
	if c.Engine.OpenTimeout <= 0 {
		add("engine.open_timeout", "must be positive")
	}

	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		add("logging.level", "%v", err)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		add("logging.format", "unknown format %q (want text or json)", c.Logging.Format)
	}

	switch c.Metrics.Backend {
	case "", "none":
	case "prompush":
		if c.Metrics.PushgatewayURL == "" {
			add("metrics.pushgateway_url", "required when metrics.backend is prompush")
		}
	case "datadog":
		if c.Metrics.DatadogAddr == "" {
			add("metrics.datadog_addr", "required when metrics.backend is datadog")
		}
	default:
		add("metrics.backend", "unknown backend %q (want none, prompush or datadog)", c.Metrics.Backend)
	}
	return out
}

// Validate joins every Issue into one error, or returns nil.
func (c Config) Validate() error {
	issues := c.Issues()
	if len(issues) == 0 {
		return nil
	}
	errs := make([]error, len(issues))
	for i, iss := range issues {
		errs[i] = iss
	}
	return errors.Join(errs...)
}
