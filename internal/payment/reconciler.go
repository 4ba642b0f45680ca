package payment

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	errors "github.com/gardenfresh/order-payments/internal"
	ordermodel "github.com/gardenfresh/order-payments/internal/core/datamodel/order"
	paymentmodel "github.com/gardenfresh/order-payments/internal/core/datamodel/payment"
	"github.com/gardenfresh/order-payments/internal/core/events"
)

// Policy tunes the relaxed acceptance paths. Both TestAmount full-acceptance
// and the DemoCeiling band are dead when TestMode is false, so a partial
// payment can never settle an order in production.
type Policy struct {
	TestMode    bool
	TestAmount  int64
	DemoCeiling int64
}

// Outcome labels written to the payment log.
const (
	OutcomeApplied    = "applied"
	OutcomeDuplicate  = "duplicate"
	OutcomeMismatch   = "mismatch"
	OutcomeAmbiguous  = "ambiguous"
	OutcomeSuppressed = "suppressed"
)

// Outcome describes what one reconciliation attempt did to an order.
type Outcome struct {
	OrderID        int64
	PreviousStatus string
	NewStatus      string
	Changed        bool
	Result         string
}

// Reconciler decides, idempotently, how each gateway notification moves an
// order's payment status. Correctness under concurrent duplicate deliveries
// rests on the status guards here, not on locking: applying the same
// notification twice converges on the same terminal state.
type Reconciler struct {
	orders    OrderRepository
	payments  PaymentRepository
	inventory InventoryAPI
	bus       *events.EventBus
	policy    Policy
	logger    *slog.Logger
}

func NewReconciler(orders OrderRepository, payments PaymentRepository, inventory InventoryAPI, bus *events.EventBus, policy Policy, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		orders:    orders,
		payments:  payments,
		inventory: inventory,
		bus:       bus,
		policy:    policy,
		logger:    logger,
	}
}

// loadOrder keeps the typed not-found error intact and classifies every
// other repository failure as internal. The webhook path must refuse on
// those so the gateway redelivers instead of dropping the notification.
func loadOrder(repo OrderRepository, orderID int64) (*ordermodel.Order, error) {
	ord, err := repo.GetByID(orderID)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeOrderNotFound) {
			return nil, err
		}
		return nil, errors.NewInternalError("failed to load order", err)
	}
	if ord == nil {
		return nil, errors.ErrOrderNotFound
	}
	return ord, nil
}

// Reconcile applies one notification to the order it was resolved to. The
// raw payload is preserved in the audit log on every call, including
// duplicates and mismatches that change nothing.
func (r *Reconciler) Reconcile(ctx context.Context, orderID int64, n *Notification, raw json.RawMessage) (*Outcome, error) {
	ord, err := loadOrder(r.orders, orderID)
	if err != nil {
		return nil, err
	}

	sig := n.Signal()
	outcome := &Outcome{
		OrderID:        orderID,
		PreviousStatus: ord.PaymentStatus,
		NewStatus:      ord.PaymentStatus,
	}

	defer func() {
		r.appendLog(orderID, n, sig, outcome.Result, raw)
	}()

	// Terminal paid is authoritative; everything after it is audit noise.
	if ord.PaymentStatus == ordermodel.StatusPaid {
		outcome.Result = OutcomeDuplicate
		r.logger.Info("notification for already paid order recorded",
			"order_id", orderID, "amount", n.Amount)
		return outcome, nil
	}

	if sig != SignalPaid {
		return r.reconcileUnpaid(ctx, ord, n, sig, outcome)
	}
	return r.reconcilePaid(ctx, ord, n, outcome)
}

func (r *Reconciler) reconcileUnpaid(ctx context.Context, ord *ordermodel.Order, n *Notification, sig Signal, outcome *Outcome) (*Outcome, error) {
	var target string
	switch sig {
	case SignalCanceled:
		target = ordermodel.StatusCanceled
	case SignalExpired:
		target = ordermodel.StatusExpired
	default:
		// Ambiguous vocabulary must not silently alter financial state:
		// mark the attempt failed in the slot, leave the order alone.
		outcome.Result = OutcomeAmbiguous
		if err := r.payments.UpdateOnNotification(ord.ID, paymentmodel.StatusFailed, n.PaymentLinkID, n.Amount, nil); err != nil {
			r.logger.Error("failed to record ambiguous attempt", "error", err, "order_id", ord.ID)
		}
		return outcome, nil
	}

	if ord.PaymentStatus == target {
		outcome.Result = OutcomeDuplicate
		return outcome, nil
	}
	if ordermodel.IsTerminal(ord.PaymentStatus) {
		outcome.Result = OutcomeSuppressed
		return outcome, nil
	}

	return r.applyTransition(ctx, ord, n, target, nil, outcome)
}

func (r *Reconciler) reconcilePaid(ctx context.Context, ord *ordermodel.Order, n *Notification, outcome *Outcome) (*Outcome, error) {
	expected := ord.TotalAmount

	fullMatch := expected > 0 && n.Amount == expected
	testFullPaid := r.policy.TestMode && r.policy.TestAmount > 0 && n.Amount == r.policy.TestAmount
	smallDemo := !fullMatch && !testFullPaid &&
		r.policy.TestMode && n.Amount > 0 && n.Amount <= r.policy.DemoCeiling

	var target string
	switch {
	case fullMatch || testFullPaid:
		target = ordermodel.StatusPaid
	case smallDemo:
		target = ordermodel.StatusPaidDemo
	default:
		outcome.Result = OutcomeMismatch
		r.logger.Warn("paid notification amount matches no acceptance policy",
			"order_id", ord.ID,
			"notified_amount", n.Amount,
			"expected_total", expected)
		if err := r.payments.UpdateOnNotification(ord.ID, paymentmodel.StatusMismatch, n.PaymentLinkID, n.Amount, nil); err != nil {
			r.logger.Error("failed to record mismatch attempt", "error", err, "order_id", ord.ID)
		}
		return outcome, nil
	}

	// Redelivery of the notification that produced the current status is a
	// duplicate; checked before the terminal guard so a repeated demo amount
	// on paid_demo is not mislabeled suppressed.
	if ord.PaymentStatus == target {
		outcome.Result = OutcomeDuplicate
		return outcome, nil
	}

	switch {
	case ord.PaymentStatus == ordermodel.StatusPaidDemo && target == ordermodel.StatusPaid:
		// the only allowed cross-terminal transition
	case ordermodel.IsTerminal(ord.PaymentStatus):
		outcome.Result = OutcomeSuppressed
		return outcome, nil
	}

	now := time.Now()
	return r.applyTransition(ctx, ord, n, target, &now, outcome)
}

func (r *Reconciler) applyTransition(ctx context.Context, ord *ordermodel.Order, n *Notification, target string, paidAt *time.Time, outcome *Outcome) (*Outcome, error) {
	prev := ord.PaymentStatus

	if err := r.orders.UpdatePaymentStatus(ord.ID, target, ord.PaymentMethod, paidAt); err != nil {
		r.logger.Error("failed to update order payment status",
			"error", err, "order_id", ord.ID, "target", target)
		return nil, errors.NewInternalError("failed to update order status", err)
	}

	slotStatus := slotStatusFor(target)
	if err := r.payments.UpdateOnNotification(ord.ID, slotStatus, n.PaymentLinkID, n.Amount, paidAt); err != nil {
		r.logger.Error("failed to update payment record", "error", err, "order_id", ord.ID)
	}

	outcome.NewStatus = target
	outcome.Changed = true
	outcome.Result = OutcomeApplied

	r.logger.Info("order payment status changed",
		"order_id", ord.ID,
		"previous", prev,
		"new", target)

	if target == ordermodel.StatusPaid {
		// Payment truth is authoritative over inventory accounting: a stock
		// consumption failure is logged, never rolled back into the status.
		if err := r.inventory.ConsumeForOrder(ctx, ord.ID); err != nil {
			r.logger.Error("stock consumption failed after payment",
				"error", err, "order_id", ord.ID)
		}
	}

	r.bus.Publish(ctx, events.NewOrderStatusChangedEvent(ord.ID, ord.Code, prev, target, paidAt))
	return outcome, nil
}

func slotStatusFor(orderStatus string) string {
	switch orderStatus {
	case ordermodel.StatusPaid, ordermodel.StatusPaidDemo:
		return paymentmodel.StatusPaid
	case ordermodel.StatusCanceled:
		return paymentmodel.StatusCanceled
	case ordermodel.StatusExpired:
		return paymentmodel.StatusExpired
	default:
		return paymentmodel.StatusFailed
	}
}

func (r *Reconciler) appendLog(orderID int64, n *Notification, sig Signal, result string, raw json.RawMessage) {
	entry := &paymentmodel.PaymentLog{
		OrderID:     orderID,
		GatewayCode: n.OrderCode,
		ExternalRef: n.PaymentLinkID,
		Amount:      n.Amount,
		RawStatus:   rawStatus(n),
		Signal:      string(sig),
		Outcome:     result,
		Payload:     raw,
	}
	if err := r.payments.AppendLog(entry); err != nil {
		r.logger.Error("failed to append payment log", "error", err, "order_id", orderID)
	}
}

func rawStatus(n *Notification) string {
	if n.Status != "" {
		return n.Status
	}
	return n.Code
}

// ConfirmCashOnDelivery settles an order without a gateway round-trip. Stock
// is consumed first; if that fails nothing is mutated.
func (r *Reconciler) ConfirmCashOnDelivery(ctx context.Context, orderID int64) error {
	ord, err := loadOrder(r.orders, orderID)
	if err != nil {
		return err
	}
	if ordermodel.IsSettled(ord.PaymentStatus) {
		return errors.ErrOrderAlreadyPaid
	}
	if ordermodel.IsTerminal(ord.PaymentStatus) {
		return errors.ErrCannotCancel
	}

	if err := r.inventory.ConsumeForOrder(ctx, orderID); err != nil {
		r.logger.Error("stock consumption failed for cod confirmation",
			"error", err, "order_id", orderID)
		return err
	}

	now := time.Now()
	method := ordermodel.MethodCOD
	if err := r.orders.UpdatePaymentStatus(orderID, ordermodel.StatusPaid, &method, &now); err != nil {
		return errors.NewInternalError("failed to mark order paid", err)
	}

	if err := r.payments.Upsert(&paymentmodel.Payment{
		OrderID: orderID,
		Amount:  ord.TotalAmount,
		Method:  ordermodel.MethodCOD,
		Status:  paymentmodel.StatusPaid,
		Gateway: "cod",
		PaidAt:  &now,
	}); err != nil {
		r.logger.Error("failed to upsert cod payment record", "error", err, "order_id", orderID)
	}

	r.bus.Publish(ctx, events.NewOrderStatusChangedEvent(orderID, ord.Code, ord.PaymentStatus, ordermodel.StatusPaid, &now))
	r.logger.Info("cod payment confirmed", "order_id", orderID)
	return nil
}

// Cancel aborts an in-flight order, typically when the client leaves the
// payment screen. Settled orders cannot be canceled; canceling an already
// canceled order is a no-op.
func (r *Reconciler) Cancel(ctx context.Context, orderID int64) error {
	ord, err := loadOrder(r.orders, orderID)
	if err != nil {
		return err
	}
	if ordermodel.IsSettled(ord.PaymentStatus) {
		return errors.ErrCannotCancel
	}
	if ord.PaymentStatus == ordermodel.StatusCanceled {
		return nil
	}

	if err := r.orders.UpdatePaymentStatus(orderID, ordermodel.StatusCanceled, ord.PaymentMethod, nil); err != nil {
		return errors.NewInternalError("failed to cancel order", err)
	}
	if err := r.payments.UpdateOnNotification(orderID, paymentmodel.StatusCanceled, "", 0, nil); err != nil {
		r.logger.Error("failed to update payment record on cancel", "error", err, "order_id", orderID)
	}

	r.bus.Publish(ctx, events.NewOrderStatusChangedEvent(orderID, ord.Code, ord.PaymentStatus, ordermodel.StatusCanceled, nil))
	r.logger.Info("order canceled", "order_id", orderID)
	return nil
}

// Status reads the current payment state for polling clients.
func (r *Reconciler) Status(ctx context.Context, orderID int64) (*StatusResult, error) {
	ord, err := loadOrder(r.orders, orderID)
	if err != nil {
		return nil, err
	}

	result := &StatusResult{
		OrderID:       ord.ID,
		OrderCode:     ord.Code,
		PaymentStatus: ord.PaymentStatus,
	}
	if ord.PaymentMethod != nil {
		result.PaymentMethod = *ord.PaymentMethod
	}
	if ord.PaidAt != nil {
		result.PaidAt = ord.PaidAt.UTC().Format(time.RFC3339)
	}
	return result, nil
}

// ExpireStale sweeps pending payments older than the checkout window and
// marks their orders expired. Run periodically by the worker command.
func (r *Reconciler) ExpireStale(ctx context.Context, ttl time.Duration, limit int) (int, error) {
	stale, err := r.payments.ListStalePending(time.Now().Add(-ttl), limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, p := range stale {
		ord, err := r.orders.GetByID(p.OrderID)
		if err != nil || ord == nil {
			continue
		}
		if ordermodel.IsTerminal(ord.PaymentStatus) {
			continue
		}

		if err := r.orders.UpdatePaymentStatus(ord.ID, ordermodel.StatusExpired, ord.PaymentMethod, nil); err != nil {
			r.logger.Error("failed to expire order", "error", err, "order_id", ord.ID)
			continue
		}
		if err := r.payments.UpdateOnNotification(ord.ID, paymentmodel.StatusExpired, "", 0, nil); err != nil {
			r.logger.Error("failed to expire payment record", "error", err, "order_id", ord.ID)
		}
		r.bus.Publish(ctx, events.NewOrderStatusChangedEvent(ord.ID, ord.Code, ord.PaymentStatus, ordermodel.StatusExpired, nil))
		expired++
	}

	if expired > 0 {
		r.logger.Info("expired stale pending payments", "count", expired)
	}
	return expired, nil
}
