package signer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/wallet-custody-backend/interfaces"
)

const (
	DefaultSettleDelay = 300 * time.Millisecond
	DefaultSignTimeout = 10 * time.Minute
)

// Sign outcomes reported to the observer.
const (
	OutcomeApproved  = "approved"
	OutcomeRejected  = "rejected"
	OutcomeTimeout   = "timeout"
	OutcomeCancelled = "cancelled"
	OutcomeClosed    = "closed"
	OutcomeFailed    = "failed"
)

// SignCancelledError is the rejection produced from a plain reason, usually a user decline.
type SignCancelledError struct {
	Message string
}

func (e *SignCancelledError) Error() string {
	return "sign request cancelled: " + e.Message
}

// QueueObserver receives queue depth changes and settled outcomes.
type QueueObserver interface {
	QueueDepth(n int)
	SignSettled(outcome string)
}

// QueueConfig configures a Queue. Start from DefaultQueueConfig.
type QueueConfig struct {
	Navigator interfaces.Navigator
	// SettleDelay is the pause between settling a request and presenting the next one.
	SettleDelay time.Duration
	// SignTimeout rejects a presented request left unanswered. Zero disables it.
	SignTimeout time.Duration
	Observer    QueueObserver
	Log         *slog.Logger
}

// DefaultQueueConfig returns the default delays for navigator.
func DefaultQueueConfig(navigator interfaces.Navigator, log *slog.Logger) QueueConfig {
	return QueueConfig{
		Navigator:   navigator,
		SettleDelay: DefaultSettleDelay,
		SignTimeout: DefaultSignTimeout,
		Log:         log,
	}
}

type result struct {
	address string
	err     error
}

type entry struct {
	id      string
	params  interfaces.SignParams
	ctx     context.Context
	done    chan result
	settled chan struct{}

	// guarded by Queue.mu
	isSettled bool
}

// Queue presents sign requests to the user one at a time, in arrival order.
//
// AwaitForSignature blocks until the request is approved or rejected. Only the request
// currently presented can be settled, through Resolve, Reject, Fail or Emit.
type Queue struct {
	navigator   interfaces.Navigator
	settleDelay time.Duration
	signTimeout time.Duration
	observer    QueueObserver
	log         *slog.Logger

	mu      sync.Mutex
	waiting []*entry
	current *entry
	entries map[string]*entry
	closed  bool

	wake    chan struct{}
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// NewQueue creates a queue and starts its presentation loop.
func NewQueue(cfg QueueConfig) (*Queue, error) {
	if cfg.Navigator == nil {
		return nil, errors.New("navigator is required")
	}
	if cfg.SettleDelay < 0 || cfg.SignTimeout < 0 {
		return nil, errors.New("delays must not be negative")
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	q := &Queue{
		navigator:   cfg.Navigator,
		settleDelay: cfg.SettleDelay,
		signTimeout: cfg.SignTimeout,
		observer:    cfg.Observer,
		log:         cfg.Log,
		entries:     make(map[string]*entry),
		wake:        make(chan struct{}, 1),
		closeCh:     make(chan struct{}),
	}

	q.wg.Add(1)
	go q.run()
	return q, nil
}

// AwaitForSignature queues params and blocks until the request is settled.
// A missing RequestID is generated. Cancelling ctx settles the request with ctx.Err().
func (q *Queue) AwaitForSignature(ctx context.Context, params interfaces.SignParams) (string, error) {
	if params.RequestID == "" {
		params.RequestID = uuid.NewString()
	}

	e := &entry{
		id:      params.RequestID,
		params:  params,
		ctx:     ctx,
		done:    make(chan result, 1),
		settled: make(chan struct{}),
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return "", interfaces.ErrQueueClosed
	}
	if _, exists := q.entries[e.id]; exists {
		q.mu.Unlock()
		return "", fmt.Errorf("duplicate sign request id %s", e.id)
	}
	q.entries[e.id] = e
	q.waiting = append(q.waiting, e)
	depth := len(q.entries)
	q.mu.Unlock()

	q.reportDepth(depth)
	q.log.Debug("Sign request queued", slog.String("request_id", e.id), slog.String("method", params.Request.Method))

	select {
	case q.wake <- struct{}{}:
	default:
	}

	select {
	case r := <-e.done:
		return r.address, r.err
	case <-ctx.Done():
		q.settle(e, result{err: ctx.Err()})
		r := <-e.done
		return r.address, r.err
	}
}

// Resolve approves the in-flight request id with the signing account address.
func (q *Queue) Resolve(id, address string) bool {
	return q.settleCurrent(id, result{address: address})
}

// Reject declines the in-flight request id with a SignCancelledError.
func (q *Queue) Reject(id, reason string) bool {
	if reason == "" {
		reason = "rejected by user"
	}
	return q.settleCurrent(id, result{err: &SignCancelledError{Message: reason}})
}

// Fail declines the in-flight request id with err.
func (q *Queue) Fail(id string, err error) bool {
	if err == nil {
		return q.Reject(id, "")
	}
	return q.settleCurrent(id, result{err: err})
}

// Emit settles the in-flight request from a sign UI event.
// A success payload is the address; a reject payload is a reason string, an error or nil.
func (q *Queue) Emit(event string, payload any) bool {
	current, ok := q.Pending()
	if !ok {
		q.log.Debug("Sign event without pending request", slog.String("event", event))
		return false
	}
	id := current.RequestID

	switch event {
	case interfaces.EventSignSuccess:
		address, ok := payload.(string)
		if !ok {
			return q.Fail(id, fmt.Errorf("unexpected sign result %T", payload))
		}
		return q.Resolve(id, address)
	case interfaces.EventSignReject:
		switch reason := payload.(type) {
		case nil:
			return q.Reject(id, "")
		case string:
			return q.Reject(id, reason)
		case error:
			return q.Fail(id, reason)
		default:
			return q.Reject(id, fmt.Sprint(reason))
		}
	default:
		q.log.Warn("Unknown sign event", slog.String("event", event))
		return false
	}
}

// Pending returns the request currently presented to the user.
func (q *Queue) Pending() (interfaces.SignParams, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current == nil || q.current.isSettled {
		return interfaces.SignParams{}, false
	}
	return q.current.params, true
}

// Len returns the number of unsettled requests, including the one presented.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Close stops the queue and rejects every unsettled request with ErrQueueClosed.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	pending := append([]*entry(nil), q.waiting...)
	if q.current != nil {
		pending = append(pending, q.current)
	}
	q.mu.Unlock()

	close(q.closeCh)
	for _, e := range pending {
		q.settle(e, result{err: interfaces.ErrQueueClosed})
	}
	q.wg.Wait()
}

func (q *Queue) settleCurrent(id string, r result) bool {
	q.mu.Lock()
	e := q.current
	q.mu.Unlock()

	if e == nil || e.id != id {
		q.log.Debug("Ignoring settle of request not in flight", slog.String("request_id", id))
		return false
	}
	return q.settle(e, r)
}

// settle completes e once; later calls report false.
func (q *Queue) settle(e *entry, r result) bool {
	q.mu.Lock()
	if e.isSettled {
		q.mu.Unlock()
		return false
	}
	e.isSettled = true
	delete(q.entries, e.id)
	depth := len(q.entries)
	close(e.settled)
	q.mu.Unlock()

	e.done <- r

	q.reportDepth(depth)
	outcome := outcomeOf(r.err)
	if q.observer != nil {
		q.observer.SignSettled(outcome)
	}
	q.log.Debug("Sign request settled", slog.String("request_id", e.id), slog.String("outcome", outcome))
	return true
}

func (q *Queue) run() {
	defer q.wg.Done()
	for {
		e, ok := q.next()
		if !ok {
			return
		}
		q.present(e)

		q.mu.Lock()
		q.current = nil
		q.mu.Unlock()

		select {
		case <-time.After(q.settleDelay):
		case <-q.closeCh:
			return
		}
	}
}

// next blocks until an unsettled request is waiting and marks it in flight.
func (q *Queue) next() (*entry, bool) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, false
		}
		for len(q.waiting) > 0 {
			e := q.waiting[0]
			q.waiting[0] = nil
			q.waiting = q.waiting[1:]
			if e.isSettled {
				continue
			}
			q.current = e
			q.mu.Unlock()
			return e, true
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-q.closeCh:
		}
	}
}

func (q *Queue) present(e *entry) {
	log := q.log.With(slog.String("request_id", e.id))

	if dismisser, ok := q.navigator.(interfaces.KeyboardDismisser); ok {
		dismisser.DismissKeyboard()
	}

	if err := q.navigator.Navigate(e.ctx, interfaces.RouteJSONRPCSign, e.params); err != nil {
		log.Warn("Failed to present sign request", "err", err)
		q.settle(e, result{err: fmt.Errorf("failed to present sign request: %w", err)})
		return
	}

	var timeout <-chan time.Time
	if q.signTimeout > 0 {
		timer := time.NewTimer(q.signTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-e.settled:
	case <-timeout:
		log.Info("Sign request timed out", slog.Duration("timeout", q.signTimeout))
		q.settle(e, result{err: interfaces.ErrSignTimeout})
	case <-q.closeCh:
	}
}

func (q *Queue) reportDepth(n int) {
	if q.observer != nil {
		q.observer.QueueDepth(n)
	}
}

func outcomeOf(err error) string {
	var cancelled *SignCancelledError
	switch {
	case err == nil:
		return OutcomeApproved
	case errors.As(err, &cancelled):
		return OutcomeRejected
	case errors.Is(err, interfaces.ErrSignTimeout):
		return OutcomeTimeout
	case errors.Is(err, interfaces.ErrQueueClosed):
		return OutcomeClosed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCancelled
	default:
		return OutcomeFailed
	}
}
