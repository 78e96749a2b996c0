// Package config loads and watches the wrapper configuration. JSON is the
// native format (the original deployment used config.json); YAML is accepted
// by coercing it to JSON first so both formats share one strict decoder.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"closebot/pkg/logx"
)

// Config is the full configuration tree.
type Config struct {
	Jira     JiraConfig     `json:"jira"`
	Runner   RunnerConfig   `json:"runner"`
	Schedule ScheduleConfig `json:"schedule,omitempty"`
	Logging  logx.Config    `json:"logging,omitempty"`
	History  HistoryConfig  `json:"history,omitempty"`
	Notify   NotifyConfig   `json:"notify,omitempty"`
}

// JiraConfig mirrors the original config.json keys plus bot tuning knobs.
type JiraConfig struct {
	URL      string `json:"jira_url"`
	Username string `json:"username"`
	APIToken string `json:"api_token,omitempty" env:"CLOSEBOT_JIRA_TOKEN"`

	StatusName    string `json:"status_name,omitempty"`
	DaysThreshold int    `json:"days_threshold,omitempty"`
	MaxResults    int    `json:"max_results,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	// ErrorProject is the project that receives the Bug ticket a failed
	// bot run files about itself.
	ErrorProject string `json:"error_project,omitempty"`
}

// RunnerConfig selects what the weekday gate invokes.
type RunnerConfig struct {
	// Command is an external bot script, run with no arguments. When empty
	// the built-in Jira auto-close bot runs in-process instead.
	Command string `json:"command,omitempty"`
	// BaseDir anchors the log directory. Empty means next to the binary.
	BaseDir string `json:"base_dir,omitempty"`
	// DryRun makes the built-in bot report candidates without closing.
	DryRun bool `json:"dry_run,omitempty"`
}

// ScheduleConfig controls daemon mode.
type ScheduleConfig struct {
	Enabled  bool   `json:"enabled"`
	Spec     string `json:"spec,omitempty"` // cron expression, default "0 9 * * *"
	Timezone string `json:"timezone,omitempty"`
}

// HistoryConfig controls the sqlite run-history store.
type HistoryConfig struct {
	Enabled     bool   `json:"enabled"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
	Keep        int    `json:"keep,omitempty"`         // rows retained by pruning
}

// NotifyConfig controls optional Telegram notifications.
type NotifyConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token,omitempty" env:"CLOSEBOT_TELEGRAM_TOKEN"`
	ChatID  int64  `json:"chat_id,omitempty"`
	// OnSuccess also notifies completed runs, not only failures.
	OnSuccess bool `json:"on_success,omitempty"`
}

// ApplyDefaults fills zero values in place.
func (c *Config) ApplyDefaults() {
	if c.Jira.StatusName == "" {
		c.Jira.StatusName = "Waiting for customer"
	}
	if c.Jira.DaysThreshold <= 0 {
		c.Jira.DaysThreshold = 5
	}
	if c.Jira.MaxResults <= 0 {
		c.Jira.MaxResults = 1000
	}
	if c.Jira.RatePerSec <= 0 {
		c.Jira.RatePerSec = 5
	}
	if c.Jira.ErrorProject == "" {
		c.Jira.ErrorProject = "DEV"
	}
	if c.Schedule.Spec == "" {
		c.Schedule.Spec = "0 9 * * *"
	}
	if c.History.Keep <= 0 {
		c.History.Keep = 500
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate rejects configurations the wrapper cannot run with.
func (c *Config) Validate() error {
	var errs []string

	// The built-in bot needs credentials; an external command brings its own.
	if strings.TrimSpace(c.Runner.Command) == "" {
		if strings.TrimSpace(c.Jira.URL) == "" {
			errs = append(errs, "jira.jira_url is required")
		}
		if strings.TrimSpace(c.Jira.Username) == "" {
			errs = append(errs, "jira.username is required")
		}
		if strings.TrimSpace(c.Jira.APIToken) == "" {
			errs = append(errs, "jira.api_token is required (or set CLOSEBOT_JIRA_TOKEN)")
		}
	}

	if c.History.Enabled && strings.TrimSpace(c.History.Path) == "" {
		errs = append(errs, "history.path is required when history is enabled")
	}
	if bt := strings.TrimSpace(c.History.BusyTimeout); bt != "" {
		if _, err := time.ParseDuration(bt); err != nil {
			errs = append(errs, fmt.Sprintf("history.busy_timeout: %v", err))
		}
	}

	if c.Notify.Enabled {
		if strings.TrimSpace(c.Notify.Token) == "" {
			errs = append(errs, "notify.token is required when notify is enabled (or set CLOSEBOT_TELEGRAM_TOKEN)")
		}
		if c.Notify.ChatID == 0 {
			errs = append(errs, "notify.chat_id is required when notify is enabled")
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// HistoryBusyTimeout parses the busy timeout, defaulting to 5s.
func (c *Config) HistoryBusyTimeout() time.Duration {
	if bt := strings.TrimSpace(c.History.BusyTimeout); bt != "" {
		if d, err := time.ParseDuration(bt); err == nil {
			return d
		}
	}
	return 5 * time.Second
}
