package maintenance

import (
	"context"
	"log"
	"sync"
	"time"

	"cuecast/internal/store"
)

const DefaultKeep = 1000

// Pruner trims the transfer history archive so the database does not
// grow without bound on long-lived installs. It runs once at startup
// and then daily at 3 AM local time.
type Pruner struct {
	store *store.Store
	keep  int

	startOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

type Option func(*Pruner)

// WithKeep sets how many archived transfers survive each prune.
func WithKeep(n int) Option {
	return func(p *Pruner) {
		if n > 0 {
			p.keep = n
		}
	}
}

func New(s *store.Store, opts ...Option) *Pruner {
	p := &Pruner{
		store: s,
		keep:  DefaultKeep,
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pruner) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		ctx, p.cancel = context.WithCancel(ctx)
		go p.run(ctx)
	})
}

func (p *Pruner) Stop() {
	if p.cancel != nil {
		p.cancel()
		<-p.done
	}
}

func (p *Pruner) run(ctx context.Context) {
	defer close(p.done)

	if err := p.PruneNow(); err != nil {
		log.Printf("maintenance: startup prune failed: %v", err)
	}

	ticker := time.NewTicker(durationUntil3AM(time.Now()))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.PruneNow(); err != nil {
				log.Printf("maintenance: daily prune failed: %v", err)
			}
			// Recalculate to handle DST transitions
			ticker.Reset(durationUntil3AM(time.Now()))
		}
	}
}

func (p *Pruner) PruneNow() error {
	removed, err := p.store.PruneTransferHistory(p.keep)
	if err != nil {
		return err
	}
	if removed > 0 {
		log.Printf("maintenance: pruned %d archived transfers (keeping %d)", removed, p.keep)
	}
	return nil
}

// durationUntil3AM uses local time so the job runs at 3 AM in the server's timezone.
func durationUntil3AM(now time.Time) time.Duration {
	next3AM := time.Date(now.Year(), now.Month(), now.Day(), 3, 0, 0, 0, now.Location())

	if !now.Before(next3AM) {
		next3AM = next3AM.Add(24 * time.Hour)
	}

	return next3AM.Sub(now)
}
