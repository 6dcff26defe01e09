package livefeed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/axiom-client/pkg/series"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// MinPollInterval is the smallest supported poll interval.
const MinPollInterval = time.Second

// Handler receives the result of every poll. It runs on the poll goroutine
// and must not call Poller.Stop, which waits for that goroutine; a handler
// ends polling by cancelling the context given to Start.
type Handler func(ds series.Dataset, err error)

// Poller polls a Feed on a fixed schedule. Overlapping polls are skipped.
type Poller struct {
	feed     *Feed
	interval time.Duration
	handler  Handler
	logger   zerolog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

// NewPoller creates a poller for feed.
func NewPoller(feed *Feed, interval time.Duration, handler Handler) (*Poller, error) {
	if interval < MinPollInterval {
		return nil, fmt.Errorf("poll interval must be >= %s (got %s)", MinPollInterval, interval)
	}
	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}

	return &Poller{
		feed:     feed,
		interval: interval,
		handler:  handler,
		logger:   feed.logger.With().Str("subcomponent", "poller").Logger(),
	}, nil
}

// Start begins polling until Stop is called or ctx is done.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("poller already running")
	}

	logger := cronLogger{logger: p.logger}
	p.cron = cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	p.cron.Schedule(cron.Every(p.interval), cron.FuncJob(p.poll))

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.cron.Start()
	p.running = true

	go func(done <-chan struct{}) {
		<-done
		p.Stop()
	}(p.ctx.Done())

	p.logger.Info().Dur("interval", p.interval).Msg("Live feed polling started")
	return nil
}

// Stop halts polling and waits for a running poll to finish. It must not be
// called from a Handler.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	c := p.cron
	p.mu.Unlock()

	<-c.Stop().Done()
	p.logger.Info().Msg("Live feed polling stopped")
}

func (p *Poller) poll() {
	p.mu.Lock()
	ctx := p.ctx
	p.mu.Unlock()

	if ctx.Err() != nil {
		return
	}

	ds, err := p.feed.Poll(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Live feed poll failed")
	}
	p.handler(ds, err)
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
