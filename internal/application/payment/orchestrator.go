package payment

import (
	"context"
	"errors"
	"sync"
	"time"

	domorder "github.com/Zhima-Mochi/snackshop/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/snackshop/internal/domain/outbox"
	dompay "github.com/Zhima-Mochi/snackshop/internal/domain/payment"
	"github.com/Zhima-Mochi/snackshop/internal/observability"
	"github.com/Zhima-Mochi/snackshop/internal/observability/logctx"
	"github.com/Zhima-Mochi/snackshop/internal/pkg/apperr"
	"github.com/google/uuid"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	paymentService       = "payment-service"
	useCasePaymentStart  = "payment.start_session"
	useCasePaymentSettle = "payment.settle"
	spanPrefix           = "UC."
	publishPeer          = "outbox"
	publishTimeout       = 300 * time.Millisecond

	DefaultCardSettleDelay = 2 * time.Second

	declinedFallback  = "payment declined"
	expiredFallback   = "payment expired"
	methodRequiredMsg = "choose a payment method"
)

var (
	// ErrSessionActive is returned when a session for some order is still in flight.
	ErrSessionActive = errors.New("payment: a session is already in progress")
	// ErrOrderPaid is returned when the order already reached a paid state.
	ErrOrderPaid = errors.New("payment: order already paid")
	// ErrSessionDismissed is returned when the session was dismissed while its submission was in flight.
	ErrSessionDismissed = errors.New("payment: session dismissed")
)

type Options struct {
	// CardSettleDelay is the pause between a card approval and its settlement notification.
	CardSettleDelay time.Duration
}

// Orchestrator drives at most one payment session at a time through the payment state machine.
// All transitions are applied under one lock; asynchronous results carry the session token and
// are dropped when the token is no longer current.
type Orchestrator struct {
	gateway   Gateway
	confirm   ConfirmationChannel
	publisher domoutbox.Publisher
	settleIn  time.Duration
	tracer    observability.Tracer

	log          observability.Logger
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
	transitions  observability.Counter   // payment_session_transitions_total{method,from,to}

	mu       sync.Mutex
	session  *dompay.Session
	order    domorder.Order
	cancel   func()
	paid     map[string]struct{}
	watchers map[*watcher]struct{}
}

func NewOrchestrator(
	gateway Gateway,
	confirm ConfirmationChannel,
	publisher domoutbox.Publisher,
	opts Options,
	tel observability.Observability,
) *Orchestrator {
	if opts.CardSettleDelay <= 0 {
		opts.CardSettleDelay = DefaultCardSettleDelay
	}
	log, tracer, metrics := observability.Resolve(tel)
	return &Orchestrator{
		gateway:      gateway,
		confirm:      confirm,
		publisher:    publisher,
		settleIn:     opts.CardSettleDelay,
		tracer:       tracer,
		log:          log.With(observability.F("service", paymentService)),
		reqCounter:   metrics.Counter(observability.MUsecaseRequests),
		durHistogram: metrics.Histogram(observability.MUsecaseDuration),
		extCounter:   metrics.Counter(observability.MExternalRequests),
		extHistogram: metrics.Histogram(observability.MExternalRequestDuration),
		transitions:  metrics.Counter(observability.MPaymentTransitions),
		paid:         make(map[string]struct{}),
		watchers:     make(map[*watcher]struct{}),
	}
}

// StartSession opens a session for o and submits it. Card payments resolve synchronously to
// approved or declined; instant transfers return in pix_pending and resolve through the
// confirmation channel. On a submission failure the returned session is back in
// selecting_method and the error is returned alongside it.
func (o *Orchestrator) StartSession(ctx context.Context, ord domorder.Order, method dompay.Method, card *dompay.CardData) (_ dompay.Session, err error) {
	logger := logctx.FromOr(ctx, o.log).With(
		observability.F("use_case", useCasePaymentStart),
		observability.F("order_id", ord.ID),
		observability.F("method", string(method)),
	)

	ctx, span := o.tracer.Start(ctx, spanPrefix+"StartPaymentSession",
		attribute.String("use_case", useCasePaymentStart),
		attribute.String("order.id", ord.ID),
		attribute.String("payment.method", string(method)),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"
	var session dompay.Session

	defer func() {
		lat := time.Since(start).Seconds()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, statusText)
		} else {
			span.SetStatus(codes.Ok, statusText)
		}
		span.End()

		o.reqCounter.Add(1,
			observability.L("use_case", useCasePaymentStart),
			observability.L("outcome", outcome),
		)
		o.durHistogram.Observe(lat, observability.L("use_case", useCasePaymentStart))

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", lat),
		}
		fields = append(fields, observability.TraceFields(ctx)...)
		if session.Token != "" {
			fields = append(fields,
				observability.F("session", session.Token),
				observability.F("state", string(session.State)),
			)
		}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}
		logger.Info("use_case_done", fields...)
	}()

	if !method.Valid() {
		outcome, statusText = "error", "METHOD_REQUIRED"
		return dompay.Session{}, apperr.Validation(methodRequiredMsg)
	}
	if method == dompay.MethodCard {
		if card == nil {
			outcome, statusText = "error", "CARD_INCOMPLETE"
			return dompay.Session{}, apperr.Validation(dompay.ErrCardIncomplete.Error())
		}
		if verr := card.Validate(); verr != nil {
			outcome, statusText = "error", "CARD_INCOMPLETE"
			return dompay.Session{}, apperr.Validation(verr.Error())
		}
	}

	o.mu.Lock()
	if _, done := o.paid[ord.ID]; done {
		o.mu.Unlock()
		outcome, statusText = "error", "ORDER_PAID"
		return dompay.Session{}, ErrOrderPaid
	}
	// A pending settlement notification also keeps the session open.
	if o.session != nil && (o.session.Active() || o.cancel != nil) {
		o.mu.Unlock()
		outcome, statusText = "error", "SESSION_ACTIVE"
		return dompay.Session{}, ErrSessionActive
	}
	o.stopPendingLocked()
	s := dompay.NewSession(uuid.NewString(), ord.ID, method)
	o.session = &s
	o.order = *ord.Clone()
	o.applyLocked(dompay.Event{Kind: dompay.EventSubmit})
	token := s.Token
	o.mu.Unlock()

	span.SetAttributes(attribute.String("payment.session", token))

	req := dompay.InitiateRequest{OrderID: ord.ID, Method: method, Card: card}
	payload, gerr := o.gateway.Initiate(ctx, req)
	if gerr == nil && payload == nil {
		gerr = errors.New("payment: empty initiation response")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.currentLocked(token) {
		outcome, statusText = "error", "SESSION_DISMISSED"
		return s, ErrSessionDismissed
	}

	if gerr != nil {
		if apperr.KindOf(gerr) == "" {
			gerr = apperr.Connectivity(gerr)
		}
		outcome, statusText = "error", "PAYMENT_INITIATION_FAILED"
		o.applyLocked(dompay.Event{Kind: dompay.EventSubmitFailed, Message: apperr.UserMessage(gerr)})
		session = *o.session
		return session, gerr
	}

	switch method {
	case dompay.MethodInstantTransfer:
		o.applyLocked(dompay.Event{Kind: dompay.EventPixIssued, Payload: payload})
		waitCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		o.cancel = cancel
		go o.awaitConfirmation(waitCtx, *o.session)
	case dompay.MethodCard:
		o.applyLocked(dompay.Event{Kind: dompay.EventCardProcessing, Payload: payload})
		if payload.Approved() {
			o.applyLocked(dompay.Event{Kind: dompay.EventCardApproved})
			o.paid[ord.ID] = struct{}{}
			o.scheduleSettlementLocked(ctx, token)
		} else {
			msg := payload.Message
			if msg == "" {
				msg = declinedFallback
			}
			statusText = "CARD_DECLINED"
			o.applyLocked(dompay.Event{Kind: dompay.EventCardDeclined, Message: msg})
		}
	}

	session = *o.session
	span.SetAttributes(attribute.String("payment.state", string(session.State)))
	return session, nil
}

// Current returns a snapshot of the session, if any.
func (o *Orchestrator) Current() (dompay.Session, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return dompay.Session{}, false
	}
	return *o.session, true
}

// Dismiss discards the session. A pending confirmation wait or settlement timer is cancelled,
// so nothing further is emitted or published for it.
func (o *Orchestrator) Dismiss() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session == nil {
		return
	}
	o.log.Debug("payment_session_dismissed",
		observability.F("session", o.session.Token),
		observability.F("state", string(o.session.State)),
	)
	o.stopPendingLocked()
	o.session = nil
	o.order = domorder.Order{}
}

// Observe streams every state the session passes through, in order, starting with the current
// one when a session exists. The channel is closed once ctx ends.
func (o *Orchestrator) Observe(ctx context.Context) <-chan dompay.Session {
	w := newWatcher()
	out := make(chan dompay.Session, 8)

	o.mu.Lock()
	o.watchers[w] = struct{}{}
	if o.session != nil {
		w.push(*o.session)
	}
	o.mu.Unlock()

	go func() {
		w.pump(ctx, out)
		o.mu.Lock()
		delete(o.watchers, w)
		o.mu.Unlock()
	}()
	return out
}

func (o *Orchestrator) awaitConfirmation(ctx context.Context, s dompay.Session) {
	logger := logctx.FromOr(ctx, o.log).With(
		observability.F("session", s.Token),
		observability.F("order_id", s.OrderID),
	)

	res, err := o.confirm.Await(ctx, s)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("payment_confirmation_failed", observability.F("error", err.Error()))
		}
		return
	}

	o.mu.Lock()
	if !o.currentLocked(s.Token) {
		o.mu.Unlock()
		logger.Debug("payment_confirmation_stale")
		return
	}
	o.cancel = nil

	switch res {
	case dompay.ConfirmationSettled:
		o.applyLocked(dompay.Event{Kind: dompay.EventConfirmed})
		o.paid[s.OrderID] = struct{}{}
		settled, ord := *o.session, o.order
		o.mu.Unlock()
		o.publishSettled(ctx, settled, ord)
	default:
		o.applyLocked(dompay.Event{Kind: dompay.EventExpired, Message: expiredFallback})
		o.mu.Unlock()
	}
}

func (o *Orchestrator) scheduleSettlementLocked(ctx context.Context, token string) {
	base := context.WithoutCancel(ctx)
	timer := time.AfterFunc(o.settleIn, func() {
		o.mu.Lock()
		if !o.currentLocked(token) || o.session.State != dompay.StateApproved {
			o.mu.Unlock()
			return
		}
		o.cancel = nil
		settled, ord := *o.session, o.order
		o.mu.Unlock()

		o.publishSettled(base, settled, ord)
	})
	o.cancel = func() { timer.Stop() }
}

func (o *Orchestrator) publishSettled(ctx context.Context, s dompay.Session, ord domorder.Order) {
	logger := logctx.FromOr(ctx, o.log).With(
		observability.F("use_case", useCasePaymentSettle),
		observability.F("session", s.Token),
		observability.F("order_id", ord.ID),
	)
	if o.publisher == nil {
		return
	}

	ctx, span := o.tracer.Start(ctx, spanPrefix+"PublishSettlement",
		attribute.String("use_case", useCasePaymentSettle),
		attribute.String("order.id", ord.ID),
	)
	defer span.End()

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	evt := dompay.NewSessionSettledEvent(s, ord)
	start := time.Now()
	pubOutcome := "success"
	if err := o.publisher.Publish(pubCtx, evt); err != nil {
		pubOutcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, "EVENT_PUBLISH_FAILED")
		logger.Error("event_publish_failed",
			observability.F("event", evt.EventName()),
			observability.F("error", err.Error()),
		)
	} else {
		span.AddEvent(evt.EventName(), trace.WithAttributes(attribute.String("order.id", ord.ID)))
	}

	o.extCounter.Add(1,
		observability.L("peer", publishPeer),
		observability.L("endpoint", evt.EventName()),
		observability.L("outcome", pubOutcome),
	)
	o.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", publishPeer),
		observability.L("endpoint", evt.EventName()),
	)
}

// applyLocked moves the current session along e and fans the new state out to watchers.
// Callers only send events that are legal from the current state.
func (o *Orchestrator) applyLocked(e dompay.Event) {
	from, err := o.session.Apply(e)
	if err != nil {
		o.log.Error("payment_transition_rejected",
			observability.F("session", o.session.Token),
			observability.F("error", err.Error()),
		)
		return
	}
	o.transitions.Add(1,
		observability.L("method", string(o.session.Method)),
		observability.L("from", string(from)),
		observability.L("to", string(o.session.State)),
	)
	for w := range o.watchers {
		w.push(*o.session)
	}
}

func (o *Orchestrator) currentLocked(token string) bool {
	return o.session != nil && o.session.Token == token
}

func (o *Orchestrator) stopPendingLocked() {
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
}

// watcher queues states for one observer so slow readers never block transitions.
type watcher struct {
	mu    sync.Mutex
	queue []dompay.Session
	wake  chan struct{}
}

func newWatcher() *watcher {
	return &watcher{wake: make(chan struct{}, 1)}
}

func (w *watcher) push(s dompay.Session) {
	w.mu.Lock()
	w.queue = append(w.queue, s)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *watcher) pump(ctx context.Context, out chan<- dompay.Session) {
	defer close(out)
	for {
		w.mu.Lock()
		pending := w.queue
		w.queue = nil
		w.mu.Unlock()

		for _, s := range pending {
			select {
			case out <- s:
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-w.wake:
		case <-ctx.Done():
			return
		}
	}
}
