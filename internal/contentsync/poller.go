package contentsync

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/agentworkforce/homepage/internal/content"
	"go.uber.org/zap"
)

const DefaultPollInterval = 30 * time.Second

type PollOptions struct {
	Interval time.Duration
	// Jitter spreads reloads by up to this ratio of Interval (0.0-1.0).
	Jitter float64
	// Live subscribes to store change events when the client supports them,
	// reloading as soon as the section changes.
	Live bool
	// OnUpdate runs on the poller goroutine whenever the loaded document
	// differs from the previous one.
	OnUpdate func(content.Document)
}

// Poller keeps one section fresh. Failed reloads are logged and the last good
// document stays current.
type Poller struct {
	session *Session
	section string
	opts    PollOptions

	mu      sync.Mutex
	current content.Document
	hash    string

	trigger chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	once    sync.Once
}

// Poll loads section immediately and then on every interval until ctx is done
// or Stop is called.
func (s *Session) Poll(ctx context.Context, section string, opts PollOptions) (*Poller, error) {
	if _, err := s.document(section, "poll"); err != nil {
		return nil, err
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}
	opts.Jitter = clampJitterRatio(opts.Jitter)
	ctx, cancel := context.WithCancel(ctx)
	p := &Poller{
		session: s,
		section: section,
		opts:    opts,
		trigger: make(chan struct{}, 1),
		cancel:  cancel,
	}
	p.wg.Add(1)
	go p.run(ctx)
	if opts.Live {
		if source, ok := s.client.(EventSource); ok {
			p.wg.Add(1)
			go p.listen(ctx, source)
		}
	}
	return p, nil
}

// Current returns the last successfully loaded document.
func (p *Poller) Current() (content.Document, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil, false
	}
	return content.Clone(p.current), true
}

// Refresh asks for a reload ahead of the next interval.
func (p *Poller) Refresh() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Stop ends polling and waits for background work to exit.
func (p *Poller) Stop() {
	p.once.Do(p.cancel)
	p.wg.Wait()
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	p.reload(ctx)
	timer := time.NewTimer(jitteredIntervalWithSample(p.opts.Interval, p.opts.Jitter, rng.Float64()))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.trigger:
			p.reload(ctx)
		case <-timer.C:
			p.reload(ctx)
			timer.Reset(jitteredIntervalWithSample(p.opts.Interval, p.opts.Jitter, rng.Float64()))
		}
	}
}

func (p *Poller) reload(ctx context.Context) {
	doc, err := p.session.Load(ctx, p.section)
	if err != nil {
		if ctx.Err() == nil {
			p.session.logger.Debug("poll reload failed, keeping last document",
				zap.String("section", p.section),
				zap.Error(err),
			)
		}
		return
	}
	hash := documentHash(doc)
	p.mu.Lock()
	changed := hash != p.hash
	if changed {
		p.current = doc
		p.hash = hash
	}
	p.mu.Unlock()
	if changed && p.opts.OnUpdate != nil {
		p.opts.OnUpdate(content.Clone(doc))
	}
}

func (p *Poller) listen(ctx context.Context, source EventSource) {
	defer p.wg.Done()
	for {
		err := source.Subscribe(ctx, func(ev SectionEvent) {
			if ev.Section == p.section {
				p.Refresh()
			}
		})
		if ctx.Err() != nil {
			return
		}
		p.session.logger.Debug("event stream closed, resubscribing",
			zap.String("section", p.section),
			zap.Error(err),
		)
		if waitErr := waitWithContext(ctx, p.opts.Interval); waitErr != nil {
			return
		}
	}
}

func documentHash(doc content.Document) string {
	data, err := json.Marshal(map[string]any(doc))
	if err != nil {
		return ""
	}
	return hashBytes(data)
}

func clampJitterRatio(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}

func jitteredIntervalWithSample(base time.Duration, jitterRatio, sample float64) time.Duration {
	if base <= 0 {
		return 0
	}
	jitterRatio = clampJitterRatio(jitterRatio)
	if jitterRatio == 0 {
		return base
	}
	if sample < 0 {
		sample = 0
	} else if sample > 1 {
		sample = 1
	}
	factor := 1 + ((sample*2)-1)*jitterRatio
	if factor < 0 {
		factor = 0
	}
	delay := time.Duration(float64(base) * factor)
	if delay < time.Millisecond {
		return time.Millisecond
	}
	return delay
}
