// Package notify sends short run reports to a Telegram chat. It is strictly
// best-effort: a failed notification is a logged warning, never a run
// failure.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"closebot/internal/runner"
	"closebot/pkg/logx"
)

// Config controls the notifier.
type Config struct {
	Token  string
	ChatID int64
	// OnSuccess also reports completed runs, not only failures.
	OnSuccess bool
}

// Notifier posts run outcomes to Telegram. A nil *Notifier is a no-op.
type Notifier struct {
	cfg Config
	bot *tele.Bot
	log logx.Logger
}

// New builds the notifier and validates the token offline.
func New(cfg Config, log logx.Logger) (*Notifier, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is empty")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Offline: true, // send-only; no getMe roundtrip, no poller
	})
	if err != nil {
		return nil, err
	}
	return &Notifier{cfg: cfg, bot: b, log: log}, nil
}

// RunFinished reports one wrapper run, honoring the OnSuccess setting.
func (n *Notifier) RunFinished(ctx context.Context, res runner.Result) {
	if n == nil {
		return
	}
	if res.Outcome != runner.OutcomeFailure && !n.cfg.OnSuccess {
		return
	}
	n.send(ctx, formatRun(res))
}

func (n *Notifier) send(ctx context.Context, text string) {
	done := make(chan error, 1)
	go func() {
		_, err := n.bot.Send(tele.ChatID(n.cfg.ChatID), text)
		done <- err
	}()
	select {
	case <-ctx.Done():
		n.log.Warn("notification abandoned", logx.Err(ctx.Err()))
	case err := <-done:
		if err != nil {
			n.log.Warn("notification send failed", logx.Err(err), logx.Int64("chat_id", n.cfg.ChatID))
		} else {
			n.log.Debug("notification sent", logx.Int64("chat_id", n.cfg.ChatID))
		}
	}
}

func formatRun(res runner.Result) string {
	var b strings.Builder
	switch res.Outcome {
	case runner.OutcomeFailure:
		b.WriteString("🚨 closebot run failed\n")
	case runner.OutcomeSkipped:
		b.WriteString("ℹ️ closebot run skipped\n")
	default:
		b.WriteString("✅ closebot run completed\n")
	}
	if res.Detail != "" {
		b.WriteString(res.Detail)
		b.WriteString("\n")
	}
	if res.ChildExit > 0 {
		fmt.Fprintf(&b, "bot exit status: %d\n", res.ChildExit)
	}
	if !res.Started.IsZero() && !res.Finished.IsZero() {
		fmt.Fprintf(&b, "took %s", res.Finished.Sub(res.Started).Round(time.Millisecond))
	}
	return strings.TrimSpace(b.String())
}
