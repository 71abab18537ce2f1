package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/agentworkforce/homepage/internal/content"
	"github.com/agentworkforce/homepage/internal/contentsync"
	"github.com/agentworkforce/homepage/internal/countdown"
	"github.com/agentworkforce/homepage/internal/temporal"
	"github.com/spf13/cobra"
)

// countdownField locates the countdown inputs inside a section.
type countdownField struct {
	deadline string
	active   string
	closed   string
}

var countdownFields = map[string]countdownField{
	content.Hero.Name: {
		deadline: "registrationDeadline",
		active:   "isCountdownActive",
	},
	content.Conversion.Name: {
		deadline: "urgencyStrip.deadline",
		active:   "urgencyStrip.isCountdownActive",
		closed:   "urgencyStrip.closedMessage",
	},
}

// lineWriter serializes output from the poller and ticker goroutines.
type lineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lineWriter) printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, format+"\n", args...)
}

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var (
		interval time.Duration
		jitter   float64
		live     bool
		duration time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch <section>",
		Short: "Follow a section and its countdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := opts.session()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}
			return watchSection(ctx, session, args[0], contentsync.PollOptions{
				Interval: interval,
				Jitter:   jitter,
				Live:     live,
			}, &lineWriter{w: cmd.OutOrStdout()})
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", durationEnv("HOMEPAGE_WATCH_INTERVAL", contentsync.DefaultPollInterval), "reload interval")
	cmd.Flags().Float64Var(&jitter, "interval-jitter", floatEnv("HOMEPAGE_WATCH_INTERVAL_JITTER", 0.2), "reload interval jitter ratio (0.0-1.0)")
	cmd.Flags().BoolVar(&live, "live", true, "reload as soon as the store reports a change")
	cmd.Flags().DurationVar(&duration, "for", 0, "stop after this long (0 runs until interrupted)")
	return cmd
}

func watchSection(ctx context.Context, session *contentsync.Session, name string, pollOpts contentsync.PollOptions, out *lineWriter) error {
	field, hasCountdown := countdownFields[name]
	n := session.Normalizer()

	var (
		tickerMu sync.Mutex
		ticker   *countdown.Ticker
	)
	onTick := func(closed string) func(countdown.State) {
		return func(s countdown.State) {
			out.printf("countdown %s", countdown.Render(true, s, closed))
		}
	}
	pollOpts.OnUpdate = func(doc content.Document) {
		out.printf("%s updated: %s", name, summarize(doc))
		if !hasCountdown {
			return
		}
		deadline, active, closed := countdownInputs(doc, field, n)
		if !active {
			out.printf("countdown %s", countdown.Render(false, countdown.State{}, closed))
		}
		tickerMu.Lock()
		defer tickerMu.Unlock()
		if ticker == nil {
			ticker = countdown.Start(ctx, countdown.TickerOptions{
				Deadline: deadline,
				Active:   active,
				Interval: time.Second,
				OnTick:   onTick(closed),
			})
			return
		}
		ticker.Reset(deadline, active)
	}

	poller, err := session.Poll(ctx, name, pollOpts)
	if err != nil {
		return err
	}
	<-ctx.Done()
	poller.Stop()
	tickerMu.Lock()
	if ticker != nil {
		ticker.Stop()
	}
	tickerMu.Unlock()
	return nil
}

func countdownInputs(doc content.Document, field countdownField, n temporal.Normalizer) (time.Time, bool, string) {
	deadline := n.Time(doc.String(field.deadline), time.Time{})
	active := doc.Bool(field.active) && !deadline.IsZero()
	closed := "closed"
	if field.closed != "" {
		if msg := strings.TrimSpace(doc.String(field.closed)); msg != "" {
			closed = msg
		}
	}
	return deadline, active, closed
}

func summarize(doc content.Document) string {
	for _, key := range []string{"headline", "title", "name"} {
		if v := strings.TrimSpace(doc.String(key)); v != "" {
			return fmt.Sprintf("%s=%q", key, v)
		}
	}
	return fmt.Sprintf("%d fields", len(doc))
}

func newCountdownCmd(opts *rootOptions) *cobra.Command {
	var (
		deadline string
		now      string
		inactive bool
		closed   string
	)
	cmd := &cobra.Command{
		Use:   "countdown",
		Short: "Print the time left until a deadline",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := opts.normalizer()
			if err != nil {
				return err
			}
			if strings.TrimSpace(deadline) == "" {
				return fmt.Errorf("--deadline is required")
			}
			if !n.Valid(deadline) {
				return fmt.Errorf("unreadable deadline %q", deadline)
			}
			if strings.TrimSpace(now) == "" {
				now = time.Now().UTC().Format(time.RFC3339)
			}
			state := countdown.DeriveValues(deadline, now, n)
			view := countdown.Render(!inactive, state, closed)
			_, err = fmt.Fprintln(cmd.OutOrStdout(), view)
			return err
		},
	}
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline in wire, ISO or local-input form")
	cmd.Flags().StringVar(&now, "now", "", "reference time (defaults to the current time)")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "render the countdown as switched off")
	cmd.Flags().StringVar(&closed, "closed-message", "Registration is closed.", "message shown when the countdown is off")
	return cmd
}
