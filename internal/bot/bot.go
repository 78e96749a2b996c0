// Package bot implements the Jira auto-close pass: find tickets that have
// sat in a waiting status for more than a number of working days, then
// assign, comment, and close each one. All human-readable progress goes to
// the writer handed to Run so the wrapper can stream it into the run log.
package bot

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"
	"time"

	"closebot/internal/jira"
	"closebot/pkg/logx"
)

// API is the slice of the Jira client the bot uses. Tests substitute a fake.
type API interface {
	Myself(ctx context.Context) error
	SearchIssues(ctx context.Context, jql string, maxResults int) ([]jira.Issue, error)
	Changelog(ctx context.Context, key string) (jira.Changelog, error)
	AssignToSelf(ctx context.Context, key string) error
	AddComment(ctx context.Context, key, text string) error
	Transitions(ctx context.Context, key string) ([]jira.Transition, error)
	DoTransition(ctx context.Context, key, transitionID string) error
	CreateIssue(ctx context.Context, in jira.CreateIssueRequest) (string, error)
}

// Config controls one auto-close pass.
type Config struct {
	// StatusName is the status tickets wait in. Default "Waiting for customer".
	StatusName string
	// DaysThreshold is the number of working days a ticket may stay in the
	// status before it is closed. Default 5.
	DaysThreshold int
	// MaxResults caps the JQL search. Default 1000.
	MaxResults int
	// ErrorProject receives the Bug ticket a failed run files about itself.
	// Default "DEV".
	ErrorProject string
	// DryRun reports candidates without closing anything.
	DryRun bool
}

func (c *Config) applyDefaults() {
	if c.StatusName == "" {
		c.StatusName = "Waiting for customer"
	}
	if c.DaysThreshold <= 0 {
		c.DaysThreshold = 5
	}
	if c.MaxResults <= 0 {
		c.MaxResults = 1000
	}
	if c.ErrorProject == "" {
		c.ErrorProject = "DEV"
	}
}

// closeTransitionNames are accepted case-insensitively when picking the
// workflow transition that closes a ticket.
var closeTransitionNames = map[string]bool{
	"close":       true,
	"closed":      true,
	"close issue": true,
	"done":        true,
}

// StaleTicket is a close candidate.
type StaleTicket struct {
	Issue       jira.Issue
	WorkingDays int
	Since       time.Time
}

// Summary is the result of one pass.
type Summary struct {
	Found  int
	Closed int
}

// Bot runs auto-close passes against one Jira instance.
type Bot struct {
	api API
	cfg Config
	log logx.Logger
	now func() time.Time
}

// Option customizes a Bot.
type Option func(*Bot)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option { return func(b *Bot) { b.now = now } }

// New constructs a Bot.
func New(api API, cfg Config, log logx.Logger, opts ...Option) *Bot {
	cfg.applyDefaults()
	b := &Bot{api: api, cfg: cfg, log: log, now: time.Now}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Run performs a full pass, writing progress to out. The returned error is
// reserved for invocation-level problems (credentials, connectivity);
// per-ticket trouble is reported in the output and the pass continues.
func (b *Bot) Run(ctx context.Context, out io.Writer) (Summary, error) {
	mode := "LIVE"
	if b.cfg.DryRun {
		mode = "DRY RUN"
	}
	sep := strings.Repeat("=", 60)
	fmt.Fprintln(out, sep)
	fmt.Fprintln(out, "Jira Auto-Close Bot - Starting...")
	fmt.Fprintf(out, "Date: %s\n", b.now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Threshold: %d working days\n", b.cfg.DaysThreshold)
	fmt.Fprintf(out, "Mode: %s\n", mode)
	fmt.Fprintln(out, sep)

	fmt.Fprintln(out, "Connecting to Jira...")
	if err := b.api.Myself(ctx); err != nil {
		return Summary{}, err
	}
	fmt.Fprintln(out, "Connected successfully")

	stale := b.FindStale(ctx, out)
	if len(stale) == 0 {
		fmt.Fprintln(out, "No tickets found that meet the criteria.")
		return Summary{}, nil
	}

	fmt.Fprintf(out, "Found %d ticket(s) to close:\n", len(stale))
	for _, st := range stale {
		fmt.Fprintf(out, "  - %s: %s\n", st.Issue.Key, st.Issue.Fields.Summary)
		fmt.Fprintf(out, "    Status changed: %s\n", st.Since.Format("2006-01-02"))
		fmt.Fprintf(out, "    Working days: %d\n", st.WorkingDays)
	}

	if b.cfg.DryRun {
		fmt.Fprintln(out, "[DRY RUN] No tickets were closed.")
		b.log.Info("dry run pass finished", logx.Int("candidates", len(stale)))
		return Summary{Found: len(stale)}, nil
	}

	fmt.Fprintln(out, "Closing tickets...")
	closed := 0
	for _, st := range stale {
		if b.CloseTicket(ctx, out, st) {
			closed++
		}
	}

	fmt.Fprintln(out, sep)
	fmt.Fprintf(out, "Summary: Closed %d out of %d ticket(s)\n", closed, len(stale))
	fmt.Fprintln(out, sep)
	b.log.Info("auto-close pass finished",
		logx.Int("found", len(stale)),
		logx.Int("closed", closed),
	)
	return Summary{Found: len(stale), Closed: closed}, nil
}

// FindStale returns tickets whose last transition into the waiting status is
// more than the threshold of working days ago. A failed search returns an
// empty list: the next scheduled run will simply try again. A ticket whose
// changelog cannot be read is skipped.
func (b *Bot) FindStale(ctx context.Context, out io.Writer) []StaleTicket {
	jql := fmt.Sprintf("status = %q", b.cfg.StatusName)
	fmt.Fprintf(out, "Searching for tickets with status: %s\n", b.cfg.StatusName)

	issues, err := b.api.SearchIssues(ctx, jql, b.cfg.MaxResults)
	if err != nil {
		fmt.Fprintf(out, "Error searching for tickets: %v\n", err)
		fmt.Fprintln(out, "  Returning empty list and will retry on next run")
		b.log.Warn("jql search failed", logx.Err(err), logx.String("jql", jql))
		return nil
	}

	now := b.now()
	var stale []StaleTicket
	for _, issue := range issues {
		cl, err := b.api.Changelog(ctx, issue.Key)
		if err != nil {
			fmt.Fprintf(out, "Error processing ticket %s: %v\n", issue.Key, err)
			fmt.Fprintln(out, "  Skipping this ticket and continuing with others...")
			b.log.Warn("changelog fetch failed", logx.Err(err), logx.String("key", issue.Key))
			continue
		}

		since, ok, err := lastStatusChange(cl, b.cfg.StatusName)
		if err != nil {
			fmt.Fprintf(out, "Error processing ticket %s: %v\n", issue.Key, err)
			fmt.Fprintln(out, "  Skipping this ticket and continuing with others...")
			b.log.Warn("changelog timestamp unreadable", logx.Err(err), logx.String("key", issue.Key))
			continue
		}
		if !ok {
			continue
		}

		days := WorkingDaysBetween(since, now)
		fmt.Fprintf(out, "Ticket %s: %d working days in %s\n", issue.Key, days, b.cfg.StatusName)
		if days > b.cfg.DaysThreshold {
			stale = append(stale, StaleTicket{Issue: issue, WorkingDays: days, Since: since})
		}
	}
	return stale
}

// lastStatusChange scans the changelog newest-first for the most recent
// transition INTO statusName. An unparseable timestamp on that entry is an
// error, not a silent miss.
func lastStatusChange(cl jira.Changelog, statusName string) (time.Time, bool, error) {
	for i := len(cl.Histories) - 1; i >= 0; i-- {
		h := cl.Histories[i]
		for _, item := range h.Items {
			if item.Field != "status" || item.ToString != statusName {
				continue
			}
			t, err := h.CreatedTime()
			if err != nil {
				return time.Time{}, false, fmt.Errorf("changelog timestamp %q: %w", h.Created, err)
			}
			return t, true, nil
		}
	}
	return time.Time{}, false, nil
}

// CloseTicket assigns the ticket to the bot account, leaves an explanatory
// comment, and executes the close transition. Assignment and comment
// failures are warnings; the close still proceeds. Returns true when the
// ticket actually transitioned.
func (b *Bot) CloseTicket(ctx context.Context, out io.Writer, st StaleTicket) bool {
	key := st.Issue.Key
	fmt.Fprintf(out, "Processing %s...\n", key)

	fmt.Fprintln(out, "  Assigning to bot account...")
	if err := b.api.AssignToSelf(ctx, key); err != nil {
		fmt.Fprintf(out, "  Warning: Could not assign ticket: %v\n", err)
		fmt.Fprintln(out, "  Continuing with close operation...")
		b.log.Warn("assign failed", logx.Err(err), logx.String("key", key))
	}

	fmt.Fprintln(out, "  Adding comment...")
	if err := b.api.AddComment(ctx, key, b.closeComment(st)); err != nil {
		fmt.Fprintf(out, "  Warning: Could not add comment: %v\n", err)
		fmt.Fprintln(out, "  Continuing with close operation...")
		b.log.Warn("comment failed", logx.Err(err), logx.String("key", key))
	}

	transitions, err := b.api.Transitions(ctx, key)
	if err != nil {
		fmt.Fprintf(out, "Error closing ticket %s: %v\n", key, err)
		b.log.Warn("transition list failed", logx.Err(err), logx.String("key", key))
		return false
	}

	var closeID string
	for _, tr := range transitions {
		if closeTransitionNames[strings.ToLower(tr.Name)] {
			closeID = tr.ID
			break
		}
	}
	if closeID == "" {
		names := make([]string, 0, len(transitions))
		for _, tr := range transitions {
			names = append(names, tr.Name)
		}
		fmt.Fprintf(out, "Could not find close transition for %s\n", key)
		fmt.Fprintf(out, "  Available transitions: %s\n", strings.Join(names, ", "))
		return false
	}

	fmt.Fprintln(out, "  Closing ticket...")
	if err := b.api.DoTransition(ctx, key, closeID); err != nil {
		fmt.Fprintf(out, "Error transitioning %s: %v\n", key, err)
		b.log.Warn("transition failed", logx.Err(err), logx.String("key", key))
		return false
	}
	fmt.Fprintf(out, "Ticket %s closed successfully\n", key)
	return true
}

// ReportFailure writes the failure banner to out and files a Bug ticket about
// the failed run so the problem is visible inside Jira itself. Ticket
// creation is best-effort and skipped in dry-run mode.
func (b *Bot) ReportFailure(ctx context.Context, out io.Writer, runErr error) {
	sep := strings.Repeat("=", 60)
	fmt.Fprintln(out, sep)
	fmt.Fprintln(out, "ERROR: Bot execution failed")
	fmt.Fprintln(out, sep)
	fmt.Fprintf(out, "Error message: %v\n", runErr)

	if b.cfg.DryRun {
		fmt.Fprintln(out, "[DRY RUN] Would create error ticket in Jira")
		fmt.Fprintln(out, "Bot will retry on next scheduled run")
		return
	}

	key, err := b.api.CreateIssue(ctx, jira.CreateIssueRequest{
		Project:     b.cfg.ErrorProject,
		Summary:     "Auto-Close Bot Error",
		Description: b.errorDescription(runErr),
		IssueType:   "Bug",
		Priority:    "High",
		Labels:      []string{"auto-bot", "error"},
		Environment: fmt.Sprintf("Go: %s\nOS: %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH),
	})
	if err != nil {
		fmt.Fprintf(out, "Warning: Could not create error ticket: %v\n", err)
		b.log.Warn("error ticket creation failed", logx.Err(err))
	} else {
		fmt.Fprintf(out, "Error ticket created: %s\n", key)
		b.log.Info("error ticket created", logx.String("key", key))
	}
	fmt.Fprintln(out, "Bot will retry on next scheduled run")
}

func (b *Bot) errorDescription(runErr error) string {
	return fmt.Sprintf(
		"The Jira Auto-Close Bot encountered an error during execution.\n\n"+
			"Error message: %v\n"+
			"Timestamp: %s\n\n"+
			"Configuration:\n"+
			"- Days threshold: %d\n"+
			"- Dry run: %t\n\n"+
			"Please investigate and fix the issue.",
		runErr, b.now().Format("2006-01-02 15:04:05"), b.cfg.DaysThreshold, b.cfg.DryRun,
	)
}

func (b *Bot) closeComment(st StaleTicket) string {
	return fmt.Sprintf(
		"This ticket has been automatically closed because it has been "+
			"in '%s' status for more than %d working days "+
			"(%d working days since %s).\n\n"+
			"If you still need assistance, please open a new ticket.",
		b.cfg.StatusName, b.cfg.DaysThreshold, st.WorkingDays, st.Since.Format("2006-01-02"),
	)
}
