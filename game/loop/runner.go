package loop

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sirupsen/logrus"

	"github.com/wricardo/minimetro/game/engine"
	"github.com/wricardo/minimetro/game/service"
)

var log = logrus.WithField("module", "loop")

var ErrAlreadyRunning = errors.New("session loop already running")

// DefaultFrame matches a 60Hz display
const DefaultFrame = 16 * time.Millisecond

// Ticker advances one session by a wall-clock delta
type Ticker interface {
	Tick(ctx context.Context, sessionID string, dt time.Duration) (*service.TickResult, error)
}

// Broadcaster receives the snapshot produced by every frame
type Broadcaster interface {
	BroadcastSnapshot(sessionID string, snap engine.Snapshot)
}

type handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Runner drives sessions in real time, one goroutine per running session.
type Runner struct {
	ticker  Ticker
	out     Broadcaster
	frame   time.Duration
	running *xsync.MapOf[string, *handle]
	wg      sync.WaitGroup
}

// NewRunner creates a runner. A nil broadcaster drops snapshots and a
// non-positive frame uses DefaultFrame.
func NewRunner(ticker Ticker, out Broadcaster, frame time.Duration) *Runner {
	if frame <= 0 {
		frame = DefaultFrame
	}
	return &Runner{
		ticker:  ticker,
		out:     out,
		frame:   frame,
		running: xsync.NewMapOf[string, *handle](),
	}
}

// Frame returns the tick period
func (r *Runner) Frame() time.Duration {
	return r.frame
}

// Start begins ticking a session until Stop, game over, a tick error or ctx
// cancellation.
func (r *Runner) Start(ctx context.Context, sessionID string) error {
	loopCtx, cancel := context.WithCancel(ctx)
	h := &handle{cancel: cancel, done: make(chan struct{})}
	if _, loaded := r.running.LoadOrStore(sessionID, h); loaded {
		cancel()
		return ErrAlreadyRunning
	}

	r.wg.Add(1)
	go r.run(loopCtx, sessionID, h)
	log.WithFields(logrus.Fields{"session": sessionID, "frame": r.frame}).Info("session loop started")
	return nil
}

// Stop cancels a running session and waits for its goroutine to exit.
// It reports whether the session was running.
func (r *Runner) Stop(sessionID string) bool {
	h, ok := r.running.LoadAndDelete(sessionID)
	if !ok {
		return false
	}
	h.cancel()
	<-h.done
	return true
}

// Running reports whether a session is being ticked
func (r *Runner) Running(sessionID string) bool {
	_, ok := r.running.Load(sessionID)
	return ok
}

// Sessions returns the ids of all running sessions, sorted
func (r *Runner) Sessions() []string {
	ids := make([]string, 0, r.running.Size())
	r.running.Range(func(id string, _ *handle) bool {
		ids = append(ids, id)
		return true
	})
	sort.Strings(ids)
	return ids
}

// StopAll cancels every loop and waits for all of them
func (r *Runner) StopAll() {
	r.running.Range(func(id string, h *handle) bool {
		h.cancel()
		return true
	})
	r.wg.Wait()
	r.running.Clear()
}

func (r *Runner) run(ctx context.Context, sessionID string, h *handle) {
	defer r.wg.Done()
	defer close(h.done)
	defer r.release(sessionID, h)

	logger := log.WithField("session", sessionID)
	t := time.NewTicker(r.frame)
	defer t.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			logger.Debug("session loop cancelled")
			return
		case now := <-t.C:
			dt := now.Sub(last)
			last = now

			res, err := r.ticker.Tick(ctx, sessionID, dt)
			if err != nil {
				logger.WithError(err).Warn("session loop stopped on tick error")
				return
			}
			if r.out != nil {
				r.out.BroadcastSnapshot(sessionID, res.Snapshot)
			}
			if res.Snapshot.GameOver {
				logger.WithFields(logrus.Fields{
					"score": res.Snapshot.Score,
					"week":  res.Snapshot.Week,
				}).Info("session loop finished: game over")
				return
			}
		}
	}
}

// release drops the map entry only if it still belongs to this loop, so a
// Stop followed by a fresh Start is not undone by the old goroutine.
func (r *Runner) release(sessionID string, h *handle) {
	r.running.Compute(sessionID, func(old *handle, loaded bool) (*handle, bool) {
		return old, !loaded || old == h
	})
}
