package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Outcome is how a settlement was handled.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	// OutcomeStale: dropped because a newer request for the domain was issued.
	OutcomeStale Outcome = "stale"
	// OutcomeCancelled: the caller's context was done before settlement.
	OutcomeCancelled Outcome = "cancelled"
)

// Settlement describes one settled envelope.
type Settlement struct {
	Operation string
	Domain    Domain
	Seq       uint64
	Outcome   Outcome
	Duration  time.Duration
	Err       *DomainError
	InFlight  int
}

// ticket identifies an issued envelope.
type ticket struct {
	op      string
	domain  Domain
	seq     uint64
	started time.Time
	span    trace.Span
}

// begin marks the domain loading and clears its error.
func (s *Store) begin(ctx context.Context, op string, d Domain, kind string) (context.Context, ticket) {
	ctx, span := s.tracer.Start(ctx, "store."+op,
		trace.WithAttributes(
			attribute.String("store.domain", string(d)),
			attribute.String("store.rule", kind),
			attribute.String("store.policy", s.policy.String()),
		),
	)

	s.mu.Lock()
	st := s.status[d]
	st.inflight++
	st.issued++
	st.phase = PhasePending
	st.err = nil
	t := ticket{op: op, domain: d, seq: st.issued, started: s.now(), span: span}
	s.mu.Unlock()

	span.SetAttributes(attribute.Int64("store.seq", int64(t.seq)))
	for _, o := range s.observers {
		o.Issued(op, d)
	}
	return ctx, t
}

// settle applies the result of a unit of work to the store according to the
// policy and the caller's cancellation state.
func settle[T any](ctx context.Context, s *Store, t ticket, rule Rule[T], v T, workErr error) Settlement {
	s.mu.Lock()
	st := s.status[t.domain]
	st.inflight--

	var out Settlement
	switch {
	case ctx.Err() != nil:
		out.Outcome = OutcomeCancelled
	case s.policy == PolicyLatestIssuedWins && t.seq < st.issued:
		out.Outcome = OutcomeStale
	case workErr != nil:
		out.Outcome = OutcomeFailed
		out.Err = NormalizeError(workErr)
		st.err = out.Err
		st.phase = PhaseFailed
	default:
		out.Outcome = OutcomeSucceeded
		rule.apply(s, v)
		st.err = nil
		st.phase = PhaseSucceeded
		st.loaded = true
		st.version++
		st.updatedAt = s.now()
	}
	if st.inflight > 0 {
		st.phase = PhasePending
	} else if st.phase == PhasePending {
		// Only discarded settlements ran; nothing new to report.
		st.phase = settledPhase(st)
	}
	out.Operation = t.op
	out.Domain = t.domain
	out.Seq = t.seq
	out.InFlight = st.inflight
	out.Duration = s.now().Sub(t.started)
	s.mu.Unlock()

	s.record(t, out)
	return out
}

func settledPhase(st *domainStatus) Phase {
	switch {
	case st.err != nil:
		return PhaseFailed
	case st.loaded:
		return PhaseSucceeded
	default:
		return PhaseIdle
	}
}

func (s *Store) record(t ticket, out Settlement) {
	t.span.SetAttributes(attribute.String("store.outcome", string(out.Outcome)))
	fields := []zap.Field{
		zap.String("operation", out.Operation),
		zap.String("domain", string(out.Domain)),
		zap.Uint64("seq", out.Seq),
		zap.Duration("duration", out.Duration),
	}
	switch out.Outcome {
	case OutcomeFailed:
		t.span.RecordError(out.Err)
		t.span.SetStatus(codes.Error, out.Err.Message)
		s.logger.Warn("operation failed", append(fields, zap.String("kind", string(out.Err.Kind)), zap.String("error", out.Err.Message))...)
	case OutcomeStale, OutcomeCancelled:
		s.logger.Info("settlement discarded", append(fields, zap.String("outcome", string(out.Outcome)))...)
	default:
		t.span.SetStatus(codes.Ok, "")
		s.logger.Debug("operation settled", fields...)
	}
	t.span.End()

	for _, o := range s.observers {
		o.Settled(out)
	}
}

// invoke runs work exactly once and turns a panic into an error.
func invoke[T any](ctx context.Context, work func(context.Context) (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrWorkPanicked, r)
		}
	}()
	return work(ctx)
}

// resultError is what Run and Pending report back to the caller.
func resultError(out Settlement, workErr error) error {
	switch out.Outcome {
	case OutcomeStale, OutcomeCancelled:
		if workErr != nil {
			return fmt.Errorf("%w (%s): %w", ErrDiscarded, out.Outcome, workErr)
		}
		return fmt.Errorf("%w (%s)", ErrDiscarded, out.Outcome)
	}
	return workErr
}

// Run wraps one unit of work in an envelope and blocks until it settles:
// the rule's domain is marked loading, work runs once, and its result is
// applied through rule (on success) or recorded as the domain's error.
//
// The returned error is the work's error, or ErrDiscarded when the result was
// not applied because ctx was done or a newer request superseded it.
func Run[T any](ctx context.Context, s *Store, op string, rule Rule[T], work func(context.Context) (T, error)) (T, error) {
	ctx, t := s.begin(ctx, op, rule.Domain(), rule.Kind())
	v, err := invoke(ctx, work)
	out := settle(ctx, s, t, rule, v, err)
	return v, resultError(out, err)
}

// Pending is an envelope whose unit of work runs on its own goroutine.
type Pending[T any] struct {
	done    chan struct{}
	value   T
	err     error
	outcome Settlement
}

// Done is closed once the envelope has settled.
func (p *Pending[T]) Done() <-chan struct{} { return p.done }

// Wait blocks until settlement or until ctx is done. Giving up on the wait
// does not cancel the work.
func (p *Pending[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Settlement returns how the envelope settled. It is only meaningful after Done.
func (p *Pending[T]) Settlement() Settlement {
	<-p.done
	return p.outcome
}

// Dispatch is the non-blocking form of Run. The domain is marked loading
// before Dispatch returns; work and settlement happen on a new goroutine.
// Cancelling ctx keeps the result out of the store.
func Dispatch[T any](ctx context.Context, s *Store, op string, rule Rule[T], work func(context.Context) (T, error)) *Pending[T] {
	ctx, t := s.begin(ctx, op, rule.Domain(), rule.Kind())
	p := &Pending[T]{done: make(chan struct{})}
	go func() {
		defer close(p.done)
		v, err := invoke(ctx, work)
		p.outcome = settle(ctx, s, t, rule, v, err)
		p.value, p.err = v, resultError(p.outcome, err)
	}()
	return p
}

// IsDiscarded reports whether err means a settlement was not applied.
func IsDiscarded(err error) bool { return errors.Is(err, ErrDiscarded) }
