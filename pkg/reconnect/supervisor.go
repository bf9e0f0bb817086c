// Package reconnect drives the connection state machine: it schedules
// geometric backoff, shares a single in-flight connection attempt across
// concurrent callers, and notifies the owning façade when a channel is
// established or lost so handles can be re-established and pending commands
// drained.
package reconnect

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/owtaylor/organized/pkg/channel"
	"github.com/owtaylor/organized/pkg/fserr"
)

// Dialer opens one new channel. Returning an error means the attempt failed;
// the Supervisor decides whether to enter RECONNECT_WAIT or DISCONNECTED.
type Dialer func(ctx context.Context) (*channel.Channel, error)

// HasOpenHandlesFunc reports whether the owning façade currently has at
// least one OpenFile, which decides RECONNECT_WAIT vs DISCONNECTED on loss.
type HasOpenHandlesFunc func() bool

// Hooks are invoked by the Supervisor at the points where the façade must
// act: re-establish handles on a fresh channel, and drain pending commands
// when one is lost. Both are called synchronously from Supervisor-owned
// goroutines, never while any Supervisor lock is held.
type Hooks struct {
	OnConnected func(ch *channel.Channel)
	OnLost      func(ch *channel.Channel, err error)
}

// BackoffConfig configures the geometric reconnection schedule: initial
// delay, doubled on each consecutive failure, capped, reset to initial on
// any successful CONNECTED transition.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultBackoffConfig is the documented default schedule: 5s initial,
// 300s cap, doubling multiplier.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{Initial: 5 * time.Second, Max: 300 * time.Second, Multiplier: 2}
}

// connectFuture lets concurrent callers await one shared connection attempt.
type connectFuture struct {
	done chan struct{}
	err  error
	once sync.Once
}

func newConnectFuture() *connectFuture {
	return &connectFuture{done: make(chan struct{})}
}

func (f *connectFuture) resolve(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

func (f *connectFuture) wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Supervisor owns the connection-state machine: DISCONNECTED, CONNECTING,
// CONNECTED, and RECONNECT_WAIT, with the transitions between them driven by
// dial outcomes, channel loss, and explicit caller requests.
type Supervisor struct {
	bus            *StateBus
	dial           Dialer
	hooks          Hooks
	hasOpenHandles HasOpenHandlesFunc
	backoffPolicy  *backoff.ExponentialBackOff

	mu         sync.Mutex
	channel    *channel.Channel
	inFlight   *connectFuture
	retryTimer *time.Timer
	// generation is bumped by Disconnect so that an attempt or retry timer
	// started before the disconnect discards its result instead of
	// clobbering the caller's explicit teardown. Mirrors the per-channel
	// generation counter idiom used to resolve LISTEN/UNLISTEN races against
	// reconnects in the notification-listener component this is grounded on.
	generation uint64
}

// New returns a Supervisor in the DISCONNECTED state.
func New(dial Dialer, hasOpenHandles HasOpenHandlesFunc, hooks Hooks, bo BackoffConfig) *Supervisor {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = bo.Initial
	policy.MaxInterval = bo.Max
	policy.Multiplier = bo.Multiplier
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0 // the supervisor itself controls indefinite retry, not the backoff library
	// NewExponentialBackOff already reset the current interval to the
	// library's own default; reset again so the first delay is bo.Initial.
	policy.Reset()

	return &Supervisor{
		bus:            NewStateBus(),
		dial:           dial,
		hooks:          hooks,
		hasOpenHandles: hasOpenHandles,
		backoffPolicy:  policy,
	}
}

// Bus exposes the connection-state broadcaster.
func (s *Supervisor) Bus() *StateBus { return s.bus }

// State returns the current connection state.
func (s *Supervisor) State() State { return s.bus.State() }

// Send auto-connects if necessary, then writes frame through the current
// channel. Any façade operation that needs the channel goes through Send so
// it auto-connects rather than failing outright while disconnected.
func (s *Supervisor) Send(ctx context.Context, frame []byte) error {
	if err := s.ConnectNow(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	ch := s.channel
	s.mu.Unlock()
	if ch == nil {
		return fserr.ErrConnectionClosed
	}
	return ch.Send(ctx, frame)
}

// ConnectNow resolves once CONNECTED, or rejects if the single shared
// attempt fails. If a reconnect-wait timer is pending, it is bypassed in
// favor of an immediate attempt; if an attempt is already in flight,
// ConnectNow awaits that same attempt rather than starting a second one.
func (s *Supervisor) ConnectNow(ctx context.Context) error {
	s.mu.Lock()
	if s.bus.State() == Connected {
		s.mu.Unlock()
		return nil
	}
	var f *connectFuture
	if s.inFlight != nil {
		f = s.inFlight
		s.mu.Unlock()
	} else {
		gen := s.generation
		f = s.startAttemptLocked()
		s.mu.Unlock()
		s.bus.Publish(Connecting)
		go s.attempt(f, gen)
	}
	return f.wait(ctx)
}

// startAttemptLocked cancels any pending retry timer and installs a fresh
// in-flight future. Caller must hold s.mu.
func (s *Supervisor) startAttemptLocked() *connectFuture {
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	f := newConnectFuture()
	s.inFlight = f
	return f
}

// attempt performs one dial and applies its outcome, unless gen has since
// been superseded by a Disconnect.
func (s *Supervisor) attempt(f *connectFuture, gen uint64) {
	ch, err := s.dial(context.Background())

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		if err == nil {
			_ = ch.Close()
		}
		return
	}

	if err != nil {
		s.inFlight = nil
		next := s.afterLossLocked()
		s.mu.Unlock()
		slog.Warn("reconnect: dial failed", "action", Classify(err).String(), "next_state", next.String(), "error", err)
		s.bus.Publish(next)
		f.resolve(err)
		return
	}

	s.channel = ch
	s.backoffPolicy.Reset()
	s.inFlight = nil
	s.mu.Unlock()

	// Publish before invoking the hook: re-establishment sends commands
	// through Send, which auto-connects by checking the published state.
	// Publishing first lets it see CONNECTED and use the channel just set
	// above instead of racing a second dial attempt.
	s.bus.Publish(Connected)
	if s.hooks.OnConnected != nil {
		s.hooks.OnConnected(ch)
	}
	f.resolve(nil)

	go s.watch(ch, gen)
}

// afterLossLocked decides RECONNECT_WAIT vs DISCONNECTED based on whether
// any handle is still open, scheduling a retry timer in the former case.
// Caller must hold s.mu.
func (s *Supervisor) afterLossLocked() State {
	if !s.hasOpenHandles() {
		return Disconnected
	}
	delay := s.backoffPolicy.NextBackOff()
	gen := s.generation
	s.retryTimer = time.AfterFunc(delay, func() { s.retryFire(gen) })
	return ReconnectWait
}

// retryFire is the retry timer's callback: it starts a fresh attempt unless
// superseded by a Disconnect or an attempt already in flight.
func (s *Supervisor) retryFire(gen uint64) {
	s.mu.Lock()
	if gen != s.generation || s.inFlight != nil {
		s.mu.Unlock()
		return
	}
	f := s.startAttemptLocked()
	s.mu.Unlock()

	s.bus.Publish(Connecting)
	go s.attempt(f, gen)
}

// watch blocks until ch closes or errors, then applies the loss transition —
// unless a newer channel or a Disconnect has already superseded ch.
func (s *Supervisor) watch(ch *channel.Channel, gen uint64) {
	<-ch.Done()

	s.mu.Lock()
	if gen != s.generation || s.channel != ch {
		s.mu.Unlock()
		return
	}
	s.channel = nil
	err := ch.Err()
	next := s.afterLossLocked()
	s.mu.Unlock()

	slog.Warn("reconnect: channel lost", "action", Classify(err).String(), "next_state", next.String(), "error", err)

	if s.hooks.OnLost != nil {
		s.hooks.OnLost(ch, err)
	}
	s.bus.Publish(next)
}

// Disconnect cancels timers, closes the channel, and forces a transition to
// DISCONNECTED regardless of open handles. Any in-flight or subsequently
// completing attempt from before this call is discarded. A later ConnectNow
// may bring the Supervisor back up normally.
func (s *Supervisor) Disconnect() {
	s.mu.Lock()
	s.generation++
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	ch := s.channel
	s.channel = nil
	f := s.inFlight
	s.inFlight = nil
	s.mu.Unlock()

	if f != nil {
		f.resolve(fserr.ErrConnectionClosed)
	}
	if ch != nil {
		_ = ch.Close()
	}
	s.bus.Publish(Disconnected)
}
