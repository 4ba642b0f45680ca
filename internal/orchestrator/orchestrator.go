package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	ordermodel "github.com/gardenfresh/order-payments/internal/core/datamodel/order"
	"github.com/gardenfresh/order-payments/internal/device"
	"github.com/gardenfresh/order-payments/internal/payment"
	"github.com/gardenfresh/order-payments/internal/realtime"
)

type State int32

const (
	StateIdle State = iota
	StateCreatingQR
	StateAwaitingPayment
	StateExpiredPrompt
	StateDone
)

type Destination int

const (
	DestReceipt Destination = iota
	DestHome
	DestCart
)

// IntentAPI creates checkout artifacts for the screen.
type IntentAPI interface {
	CreateIntent(ctx context.Context, req *payment.CreateIntentRequest) (*payment.IntentResult, error)
}

// StatusFetcher reads the authoritative payment status (the polling leg).
type StatusFetcher interface {
	Status(ctx context.Context, orderID int64) (*payment.StatusResult, error)
}

// Canceler aborts an in-flight order on screen exit.
type Canceler interface {
	Cancel(ctx context.Context, orderID int64) error
}

// CODConfirmer settles an order as cash-on-delivery.
type CODConfirmer interface {
	ConfirmCashOnDelivery(ctx context.Context, orderID int64) error
}

// PushSubscriber streams live status updates (the push leg).
type PushSubscriber interface {
	Subscribe(ctx context.Context, orderID int64) (<-chan realtime.StatusUpdate, error)
}

// Navigator performs screen transitions. Called at most once per
// orchestrator lifetime.
type Navigator interface {
	Navigate(dest Destination, orderID int64)
}

type Config struct {
	OrderID      int64
	Amount       int64
	Description  string
	QRTTL        time.Duration
	PollInterval time.Duration
}

// Orchestrator drives the client payment screen. Push updates, interval
// polls and foreground-resume checks all fan into one status channel; a
// single consumer applies the navigation latch, so the three observers can
// never double-fire a transition.
type Orchestrator struct {
	cfg     Config
	intents IntentAPI
	status  StatusFetcher
	cancels Canceler
	cod     CODConfirmer
	push    PushSubscriber
	nav     Navigator
	store   device.Store
	logger  *slog.Logger

	state     atomic.Int32
	created   atomic.Bool
	navigated atomic.Bool
	unlocked  atomic.Bool

	statusCh chan string
	nudgeCh  chan struct{}

	mu        sync.Mutex
	current   *payment.IntentResult
	expiresAt time.Time

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

func New(cfg Config, intents IntentAPI, status StatusFetcher, cancels Canceler, cod CODConfirmer, push PushSubscriber, nav Navigator, store device.Store, logger *slog.Logger) *Orchestrator {
	if cfg.QRTTL <= 0 {
		cfg.QRTTL = 15 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	return &Orchestrator{
		cfg:      cfg,
		intents:  intents,
		status:   status,
		cancels:  cancels,
		cod:      cod,
		push:     push,
		nav:      nav,
		store:    store,
		logger:   logger,
		statusCh: make(chan string, 8),
		nudgeCh:  make(chan struct{}, 1),
	}
}

// Start enters the payment screen: reuse a cached unexpired QR if the
// device holds one for this order, otherwise request an intent exactly
// once, then begin observing status.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.cfg.Amount <= 0 {
		return fmt.Errorf("cannot start payment with amount %d", o.cfg.Amount)
	}
	if !o.created.CompareAndSwap(false, true) {
		return nil
	}

	o.state.Store(int32(StateCreatingQR))

	now := time.Now()
	if cached, ok := o.store.ActiveOrder(); ok && cached.OrderID == o.cfg.OrderID && !cached.Expired(now) {
		o.logger.Info("reusing cached checkout artifact",
			"order_id", cached.OrderID, "expires_at", cached.ExpiresAt)
		o.setCurrent(&payment.IntentResult{
			CheckoutURL:     cached.CheckoutURL,
			QRCode:          cached.QRCode,
			PaymentLinkID:   cached.PaymentLinkID,
			EffectiveAmount: cached.EffectiveAmount,
			OriginalAmount:  cached.OriginalAmount,
		}, cached.ExpiresAt)
	} else {
		if err := o.createIntent(ctx, false); err != nil {
			o.state.Store(int32(StateIdle))
			o.created.Store(false)
			return err
		}
	}

	o.store.SetLastOrderID(o.cfg.OrderID)
	o.runCtx, o.runCancel = context.WithCancel(context.Background())
	o.startObservers()
	o.state.Store(int32(StateAwaitingPayment))
	return nil
}

func (o *Orchestrator) createIntent(ctx context.Context, forceNew bool) error {
	result, err := o.intents.CreateIntent(ctx, &payment.CreateIntentRequest{
		OrderID:     o.cfg.OrderID,
		Amount:      o.cfg.Amount,
		Description: o.cfg.Description,
		ForceNew:    forceNew,
	})
	if err != nil {
		o.logger.Error("intent creation failed", "error", err, "order_id", o.cfg.OrderID)
		return err
	}

	expiresAt := time.Now().Add(o.cfg.QRTTL)
	o.setCurrent(result, expiresAt)
	o.store.SaveActiveOrder(device.ActiveOrder{
		OrderID:         o.cfg.OrderID,
		OrderCode:       ordermodel.CodeForID(o.cfg.OrderID),
		QRCode:          result.QRCode,
		CheckoutURL:     result.CheckoutURL,
		PaymentLinkID:   result.PaymentLinkID,
		ExpiresAt:       expiresAt,
		EffectiveAmount: result.EffectiveAmount,
		OriginalAmount:  result.OriginalAmount,
	})
	return nil
}

func (o *Orchestrator) setCurrent(result *payment.IntentResult, expiresAt time.Time) {
	o.mu.Lock()
	o.current = result
	o.expiresAt = expiresAt
	o.mu.Unlock()
}

func (o *Orchestrator) startObservers() {
	// push leg
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if o.push == nil {
			return
		}
		updates, err := o.push.Subscribe(o.runCtx, o.cfg.OrderID)
		if err != nil {
			o.logger.Warn("push subscription unavailable, relying on polling",
				"error", err, "order_id", o.cfg.OrderID)
			return
		}
		for {
			select {
			case <-o.runCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				o.offer(update.NewStatus)
			}
		}
	}()

	// poll leg, also serves foreground-resume nudges
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(o.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-o.runCtx.Done():
				return
			case <-ticker.C:
				o.pollOnce()
			case <-o.nudgeCh:
				o.pollOnce()
			}
		}
	}()

	o.watchExpiry()

	// single consumer applying the navigation latch
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		for {
			select {
			case <-o.runCtx.Done():
				return
			case status := <-o.statusCh:
				o.route(status)
			}
		}
	}()
}

// watchExpiry flips the screen into the expired prompt when the current
// artifact's window closes. Re-armed on regeneration.
func (o *Orchestrator) watchExpiry() {
	o.mu.Lock()
	expiresAt := o.expiresAt
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		timer := time.NewTimer(time.Until(expiresAt))
		defer timer.Stop()
		select {
		case <-o.runCtx.Done():
		case <-timer.C:
			if State(o.state.Load()) == StateAwaitingPayment {
				o.state.Store(int32(StateExpiredPrompt))
				o.logger.Info("checkout artifact expired", "order_id", o.cfg.OrderID)
			}
		}
	}()
}

func (o *Orchestrator) pollOnce() {
	ctx, cancel := context.WithTimeout(o.runCtx, 10*time.Second)
	defer cancel()
	result, err := o.status.Status(ctx, o.cfg.OrderID)
	if err != nil {
		o.logger.Warn("status poll failed", "error", err, "order_id", o.cfg.OrderID)
		return
	}
	o.offer(result.PaymentStatus)
}

func (o *Orchestrator) offer(status string) {
	select {
	case o.statusCh <- status:
	default:
		// channel full, a pending observation will carry the same news
	}
}

func (o *Orchestrator) route(status string) {
	switch status {
	case ordermodel.StatusPaid, ordermodel.StatusPaidDemo:
		o.navigate(DestReceipt)
	case ordermodel.StatusCanceled:
		o.navigate(DestHome)
	case ordermodel.StatusExpired, ordermodel.StatusFailed:
		o.navigate(DestCart)
	}
}

// navigate fires at most once per orchestrator. Any terminal navigation
// unlocks the exit path so leaving the screen no longer cancels the order.
func (o *Orchestrator) navigate(dest Destination) {
	if !o.navigated.CompareAndSwap(false, true) {
		return
	}
	o.unlocked.Store(true)
	o.state.Store(int32(StateDone))
	o.store.ClearActiveOrder()
	if dest == DestReceipt {
		o.store.SetLastOrderID(o.cfg.OrderID)
	} else {
		o.store.ClearLastOrderID()
	}
	o.logger.Info("navigating from payment screen",
		"order_id", o.cfg.OrderID, "destination", int(dest))
	o.nav.Navigate(dest, o.cfg.OrderID)
	if o.runCancel != nil {
		o.runCancel()
	}
}

// ForegroundResume nudges an immediate status check after the app returns
// to the foreground.
func (o *Orchestrator) ForegroundResume() {
	select {
	case o.nudgeCh <- struct{}{}:
	default:
	}
}

// Regenerate clears the cached artifact and mints a fresh one with a new
// variant code. Offered to the user after expiry.
func (o *Orchestrator) Regenerate(ctx context.Context) error {
	if o.navigated.Load() {
		return fmt.Errorf("payment already settled")
	}
	o.store.ClearActiveOrder()
	if err := o.createIntent(ctx, true); err != nil {
		return err
	}
	o.state.Store(int32(StateAwaitingPayment))
	if o.runCtx != nil {
		o.watchExpiry()
	}
	return nil
}

// ConfirmCOD settles without the gateway: consume stock server-side, then
// treat it as a terminal paid transition. Failure surfaces to the caller
// and mutates nothing locally.
func (o *Orchestrator) ConfirmCOD(ctx context.Context) error {
	if err := o.cod.ConfirmCashOnDelivery(ctx, o.cfg.OrderID); err != nil {
		return err
	}
	o.navigate(DestReceipt)
	return nil
}

// Leave is the screen teardown path. Unless a terminal transition already
// unlocked the exit, it best-effort cancels the in-flight order, clears
// the device pointers and sends the user back to the cart.
func (o *Orchestrator) Leave(ctx context.Context) {
	defer o.Stop()
	if o.unlocked.Load() {
		return
	}
	if !o.navigated.CompareAndSwap(false, true) {
		return
	}

	if err := o.cancels.Cancel(ctx, o.cfg.OrderID); err != nil {
		// best effort; never trap the user on the screen
		o.logger.Warn("cancel on exit failed", "error", err, "order_id", o.cfg.OrderID)
	}
	o.store.ClearActiveOrder()
	o.store.ClearLastOrderID()
	o.state.Store(int32(StateDone))
	o.nav.Navigate(DestCart, o.cfg.OrderID)
}

// Stop tears down the observer goroutines.
func (o *Orchestrator) Stop() {
	if o.runCancel != nil {
		o.runCancel()
	}
	o.wg.Wait()
}

func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Expired reports whether the current artifact is past its window.
func (o *Orchestrator) Expired() bool {
	if State(o.state.Load()) == StateExpiredPrompt {
		return true
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return !o.expiresAt.IsZero() && time.Now().After(o.expiresAt)
}

// Remaining is the time left on the QR countdown.
func (o *Orchestrator) Remaining() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.expiresAt.IsZero() {
		return 0
	}
	d := time.Until(o.expiresAt)
	if d < 0 {
		return 0
	}
	return d
}

// Current returns the checkout artifact being displayed.
func (o *Orchestrator) Current() (*payment.IntentResult, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil {
		return nil, false
	}
	result := *o.current
	return &result, true
}
