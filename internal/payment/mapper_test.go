package payment_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/gardenfresh/order-payments/internal"
	paymentmodel "github.com/gardenfresh/order-payments/internal/core/datamodel/payment"
	"github.com/gardenfresh/order-payments/internal/payment"
)

var _ = Describe("Mapper", func() {
	var (
		payments *mockPaymentRepository
		mapper   *payment.Mapper
	)

	BeforeEach(func() {
		payments = newMockPaymentRepository()
		mapper = payment.NewMapper(payments, testLogger())
	})

	It("resolves via the stored payment link id first", func() {
		Expect(payments.Upsert(&paymentmodel.Payment{
			OrderID:     45,
			GatewayCode: 45123,
			ExternalRef: "pl-45",
		})).To(Succeed())

		orderID, err := mapper.ResolveOrderID(&payment.Notification{
			PaymentLinkID: "pl-45",
			OrderCode:     999999999,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(orderID).To(Equal(int64(45)))
	})

	It("resolves via the stored gateway code when no link id matches", func() {
		Expect(payments.Upsert(&paymentmodel.Payment{
			OrderID:     45,
			GatewayCode: 45123,
		})).To(Succeed())

		orderID, err := mapper.ResolveOrderID(&payment.Notification{OrderCode: 45123})
		Expect(err).NotTo(HaveOccurred())
		Expect(orderID).To(Equal(int64(45)))
	})

	It("derives the base id from an unstored variant code", func() {
		orderID, err := mapper.ResolveOrderID(&payment.Notification{OrderCode: 4512042})
		Expect(err).NotTo(HaveOccurred())
		Expect(orderID).To(Equal(int64(4512)))
	})

	It("uses a small order code as the id directly", func() {
		orderID, err := mapper.ResolveOrderID(&payment.Notification{OrderCode: 45})
		Expect(err).NotTo(HaveOccurred())
		Expect(orderID).To(Equal(int64(45)))
	})

	It("falls back to the display code embedded in the description", func() {
		orderID, err := mapper.ResolveOrderID(&payment.Notification{
			Description: "Thanh toan GDN-000045 xin cam on",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(orderID).To(Equal(int64(45)))
	})

	It("matches the description pattern case-insensitively with underscore", func() {
		orderID, err := mapper.ResolveOrderID(&payment.Notification{
			Description: "gdn_000108",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(orderID).To(Equal(int64(108)))
	})

	It("fails with a typed error when nothing resolves", func() {
		_, err := mapper.ResolveOrderID(&payment.Notification{Description: "no code here"})
		Expect(internal.IsCode(err, internal.ErrCodeOrderNotResolved)).To(BeTrue())
	})
})
