package payment_test

import (
	"context"
	"encoding/json"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/gardenfresh/order-payments/internal"
	ordermodel "github.com/gardenfresh/order-payments/internal/core/datamodel/order"
	paymentmodel "github.com/gardenfresh/order-payments/internal/core/datamodel/payment"
	"github.com/gardenfresh/order-payments/internal/core/events"
	"github.com/gardenfresh/order-payments/internal/payment"
)

var _ = Describe("Reconciler", func() {
	var (
		orders     *mockOrderRepository
		payments   *mockPaymentRepository
		inventory  *mockInventory
		bus        *events.EventBus
		policy     payment.Policy
		reconciler *payment.Reconciler
		ctx        context.Context
		raw        json.RawMessage
	)

	newReconciler := func() *payment.Reconciler {
		return payment.NewReconciler(orders, payments, inventory, bus, policy, testLogger())
	}

	BeforeEach(func() {
		ctx = context.Background()
		orders = newMockOrderRepository()
		payments = newMockPaymentRepository()
		inventory = newMockInventory()
		bus = events.NewEventBus(testLogger())
		policy = payment.Policy{}
		raw = json.RawMessage(`{"orderCode":45,"amount":250000,"code":"00"}`)

		orders.add(&ordermodel.Order{
			ID:            45,
			PaymentStatus: ordermodel.StatusPendingConfirm,
			TotalAmount:   250000,
		})
		reconciler = newReconciler()
	})

	paidNotification := func(amount int64) *payment.Notification {
		return &payment.Notification{OrderCode: 45, Amount: amount, Code: "00"}
	}

	Describe("full amount match", func() {
		It("marks the order paid and consumes stock once", func() {
			outcome, err := reconciler.Reconcile(ctx, 45, paidNotification(250000), raw)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Changed).To(BeTrue())
			Expect(outcome.Result).To(Equal(payment.OutcomeApplied))
			Expect(outcome.NewStatus).To(Equal(ordermodel.StatusPaid))

			ord := orders.get(45)
			Expect(ord.PaymentStatus).To(Equal(ordermodel.StatusPaid))
			Expect(ord.PaidAt).NotTo(BeNil())
			Expect(inventory.consumedCount(45)).To(Equal(1))
		})

		It("updates the payment slot to paid", func() {
			_, err := reconciler.Reconcile(ctx, 45, paidNotification(250000), raw)
			Expect(err).NotTo(HaveOccurred())
			Expect(payments.slot(45).Status).To(Equal(paymentmodel.StatusPaid))
		})

		It("appends an audit log entry with the applied outcome", func() {
			_, err := reconciler.Reconcile(ctx, 45, paidNotification(250000), raw)
			Expect(err).NotTo(HaveOccurred())

			entries := payments.logEntries()
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].OrderID).To(Equal(int64(45)))
			Expect(entries[0].Outcome).To(Equal(payment.OutcomeApplied))
			Expect(entries[0].Payload).To(Equal(raw))
		})
	})

	Describe("duplicate deliveries", func() {
		It("converges on the same state without consuming stock twice", func() {
			for i := 0; i < 3; i++ {
				outcome, err := reconciler.Reconcile(ctx, 45, paidNotification(250000), raw)
				Expect(err).NotTo(HaveOccurred())
				if i == 0 {
					Expect(outcome.Result).To(Equal(payment.OutcomeApplied))
				} else {
					Expect(outcome.Result).To(Equal(payment.OutcomeDuplicate))
					Expect(outcome.Changed).To(BeFalse())
				}
			}

			Expect(orders.get(45).PaymentStatus).To(Equal(ordermodel.StatusPaid))
			Expect(inventory.consumedCount(45)).To(Equal(1))
			Expect(payments.logEntries()).To(HaveLen(3))
		})
	})

	Describe("amount policies", func() {
		It("rejects a partial amount in production mode without touching the order", func() {
			outcome, err := reconciler.Reconcile(ctx, 45, paidNotification(5000), raw)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Result).To(Equal(payment.OutcomeMismatch))
			Expect(outcome.Changed).To(BeFalse())

			Expect(orders.get(45).PaymentStatus).To(Equal(ordermodel.StatusPendingConfirm))
			Expect(payments.slot(45).Status).To(Equal(paymentmodel.StatusMismatch))
			Expect(inventory.consumedCount(45)).To(BeZero())
		})

		It("accepts the configured test amount as full payment in test mode", func() {
			policy = payment.Policy{TestMode: true, TestAmount: 2000, DemoCeiling: 10000}
			reconciler = newReconciler()

			outcome, err := reconciler.Reconcile(ctx, 45, paidNotification(2000), raw)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.NewStatus).To(Equal(ordermodel.StatusPaid))
			Expect(inventory.consumedCount(45)).To(Equal(1))
		})

		It("accepts a small amount as demo payment in test mode without consuming stock", func() {
			policy = payment.Policy{TestMode: true, TestAmount: 2000, DemoCeiling: 10000}
			reconciler = newReconciler()

			outcome, err := reconciler.Reconcile(ctx, 45, &payment.Notification{
				OrderCode: 45, Amount: 5000, Code: "00", PaymentLinkID: "pl-demo",
			}, raw)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.NewStatus).To(Equal(ordermodel.StatusPaidDemo))
			Expect(inventory.consumedCount(45)).To(BeZero())

			slot := payments.slot(45)
			Expect(slot.Amount).To(Equal(int64(5000)))
			Expect(slot.ExternalRef).To(Equal("pl-demo"))
		})

		It("never applies the demo band when test mode is off", func() {
			policy = payment.Policy{TestMode: false, TestAmount: 2000, DemoCeiling: 10000}
			reconciler = newReconciler()

			outcome, err := reconciler.Reconcile(ctx, 45, paidNotification(5000), raw)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Result).To(Equal(payment.OutcomeMismatch))
			Expect(orders.get(45).PaymentStatus).To(Equal(ordermodel.StatusPendingConfirm))
		})
	})

	Describe("demo upgrade", func() {
		BeforeEach(func() {
			policy = payment.Policy{TestMode: true, TestAmount: 2000, DemoCeiling: 10000}
			reconciler = newReconciler()
		})

		It("upgrades paid_demo to paid on a full amount notification", func() {
			_, err := reconciler.Reconcile(ctx, 45, paidNotification(5000), raw)
			Expect(err).NotTo(HaveOccurred())
			Expect(orders.get(45).PaymentStatus).To(Equal(ordermodel.StatusPaidDemo))

			outcome, err := reconciler.Reconcile(ctx, 45, paidNotification(250000), raw)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Result).To(Equal(payment.OutcomeApplied))
			Expect(outcome.NewStatus).To(Equal(ordermodel.StatusPaid))
			Expect(inventory.consumedCount(45)).To(Equal(1))
		})

		It("treats a repeated demo amount on paid_demo as a duplicate", func() {
			_, err := reconciler.Reconcile(ctx, 45, paidNotification(5000), raw)
			Expect(err).NotTo(HaveOccurred())

			outcome, err := reconciler.Reconcile(ctx, 45, paidNotification(5000), raw)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Result).To(Equal(payment.OutcomeDuplicate))
		})
	})

	Describe("terminal guards", func() {
		It("suppresses a paid notification for a canceled order", func() {
			Expect(reconciler.Cancel(ctx, 45)).To(Succeed())

			outcome, err := reconciler.Reconcile(ctx, 45, paidNotification(250000), raw)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Result).To(Equal(payment.OutcomeSuppressed))
			Expect(orders.get(45).PaymentStatus).To(Equal(ordermodel.StatusCanceled))
		})

		It("suppresses a cancel notification for an expired order", func() {
			orders.get(45).PaymentStatus = ordermodel.StatusExpired

			outcome, err := reconciler.Reconcile(ctx, 45, &payment.Notification{
				OrderCode: 45, Status: "cancelled",
			}, raw)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Result).To(Equal(payment.OutcomeSuppressed))
		})

		It("records a redelivered cancel on a canceled order as a duplicate", func() {
			orders.get(45).PaymentStatus = ordermodel.StatusCanceled

			outcome, err := reconciler.Reconcile(ctx, 45, &payment.Notification{
				OrderCode: 45, Status: "cancelled",
			}, raw)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Result).To(Equal(payment.OutcomeDuplicate))
		})

		It("records a cancel notification on a paid order as a duplicate", func() {
			_, err := reconciler.Reconcile(ctx, 45, paidNotification(250000), raw)
			Expect(err).NotTo(HaveOccurred())

			outcome, err := reconciler.Reconcile(ctx, 45, &payment.Notification{
				OrderCode: 45, Status: "cancelled",
			}, raw)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Result).To(Equal(payment.OutcomeDuplicate))
			Expect(orders.get(45).PaymentStatus).To(Equal(ordermodel.StatusPaid))
		})
	})

	Describe("non-paid signals", func() {
		It("applies a cancel notification to a pending order", func() {
			outcome, err := reconciler.Reconcile(ctx, 45, &payment.Notification{
				OrderCode: 45, Status: "CANCELLED",
			}, raw)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.NewStatus).To(Equal(ordermodel.StatusCanceled))
			Expect(payments.slot(45).Status).To(Equal(paymentmodel.StatusCanceled))
		})

		It("applies an expire notification to a pending order", func() {
			outcome, err := reconciler.Reconcile(ctx, 45, &payment.Notification{
				OrderCode: 45, Status: "expired",
			}, raw)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.NewStatus).To(Equal(ordermodel.StatusExpired))
		})

		It("records an ambiguous notification without touching the order", func() {
			outcome, err := reconciler.Reconcile(ctx, 45, &payment.Notification{
				OrderCode: 45, Status: "processing",
			}, raw)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Result).To(Equal(payment.OutcomeAmbiguous))
			Expect(outcome.Changed).To(BeFalse())

			Expect(orders.get(45).PaymentStatus).To(Equal(ordermodel.StatusPendingConfirm))
			Expect(payments.slot(45).Status).To(Equal(paymentmodel.StatusFailed))
		})
	})

	Describe("unknown orders", func() {
		It("returns the typed not-found error", func() {
			_, err := reconciler.Reconcile(ctx, 999, paidNotification(250000), raw)
			Expect(internal.IsCode(err, internal.ErrCodeOrderNotFound)).To(BeTrue())
		})

		It("surfaces a repository failure as internal, not as not-found", func() {
			orders.getError = errors.New("connection refused")

			_, err := reconciler.Reconcile(ctx, 45, paidNotification(250000), raw)
			Expect(err).To(HaveOccurred())
			Expect(internal.IsCode(err, internal.ErrCodeOrderNotFound)).To(BeFalse())
		})
	})

	Describe("ConfirmCashOnDelivery", func() {
		It("consumes stock and marks the order paid with the cod method", func() {
			Expect(reconciler.ConfirmCashOnDelivery(ctx, 45)).To(Succeed())

			ord := orders.get(45)
			Expect(ord.PaymentStatus).To(Equal(ordermodel.StatusPaid))
			Expect(ord.PaymentMethod).NotTo(BeNil())
			Expect(*ord.PaymentMethod).To(Equal(ordermodel.MethodCOD))
			Expect(inventory.consumedCount(45)).To(Equal(1))

			slot := payments.slot(45)
			Expect(slot.Gateway).To(Equal("cod"))
			Expect(slot.Status).To(Equal(paymentmodel.StatusPaid))
		})

		It("rejects an already settled order", func() {
			_, err := reconciler.Reconcile(ctx, 45, paidNotification(250000), raw)
			Expect(err).NotTo(HaveOccurred())

			err = reconciler.ConfirmCashOnDelivery(ctx, 45)
			Expect(internal.IsCode(err, internal.ErrCodeOrderAlreadyPaid)).To(BeTrue())
		})

		It("mutates nothing when stock consumption fails", func() {
			inventory.consumeError = internal.NewConflictError("out of stock", internal.ErrCodeStockInsufficient)

			err := reconciler.ConfirmCashOnDelivery(ctx, 45)
			Expect(err).To(HaveOccurred())
			Expect(orders.get(45).PaymentStatus).To(Equal(ordermodel.StatusPendingConfirm))
		})
	})

	Describe("Cancel", func() {
		It("cancels a pending order", func() {
			Expect(reconciler.Cancel(ctx, 45)).To(Succeed())
			Expect(orders.get(45).PaymentStatus).To(Equal(ordermodel.StatusCanceled))
		})

		It("refuses to cancel a settled order", func() {
			_, err := reconciler.Reconcile(ctx, 45, paidNotification(250000), raw)
			Expect(err).NotTo(HaveOccurred())

			err = reconciler.Cancel(ctx, 45)
			Expect(internal.IsCode(err, internal.ErrCodeCannotCancelOrder)).To(BeTrue())
		})

		It("is a no-op on an already canceled order", func() {
			Expect(reconciler.Cancel(ctx, 45)).To(Succeed())
			Expect(reconciler.Cancel(ctx, 45)).To(Succeed())
		})
	})

	Describe("ExpireStale", func() {
		It("expires orders with stale pending payments and skips terminal ones", func() {
			orders.add(&ordermodel.Order{ID: 46, PaymentStatus: ordermodel.StatusPendingConfirm, TotalAmount: 1000})
			orders.add(&ordermodel.Order{ID: 47, PaymentStatus: ordermodel.StatusPaid, TotalAmount: 1000})
			payments.stale = []*paymentmodel.Payment{
				{OrderID: 46, Status: paymentmodel.StatusPending},
				{OrderID: 47, Status: paymentmodel.StatusPending},
			}

			expired, err := reconciler.ExpireStale(ctx, 0, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(expired).To(Equal(1))
			Expect(orders.get(46).PaymentStatus).To(Equal(ordermodel.StatusExpired))
			Expect(orders.get(47).PaymentStatus).To(Equal(ordermodel.StatusPaid))
		})
	})

	Describe("Status", func() {
		It("reports the current payment state", func() {
			_, err := reconciler.Reconcile(ctx, 45, paidNotification(250000), raw)
			Expect(err).NotTo(HaveOccurred())

			status, err := reconciler.Status(ctx, 45)
			Expect(err).NotTo(HaveOccurred())
			Expect(status.OrderID).To(Equal(int64(45)))
			Expect(status.OrderCode).To(Equal("GDN-000045"))
			Expect(status.PaymentStatus).To(Equal(ordermodel.StatusPaid))
			Expect(status.PaidAt).NotTo(BeEmpty())
		})
	})
})
