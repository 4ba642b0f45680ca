package postgres

import (
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/gardenfresh/order-payments/internal"
	ordermodel "github.com/gardenfresh/order-payments/internal/core/datamodel/order"
)

// OrderSQLite mirrors the orders schema with a text note column for SQLite.
type OrderSQLite struct {
	ID              int64      `gorm:"primaryKey"`
	Code            string     `gorm:"column:code;not null;uniqueIndex"`
	PaymentStatus   string     `gorm:"column:payment_status"`
	PaymentMethod   *string    `gorm:"column:payment_method"`
	TotalAmount     int64      `gorm:"column:total_amount;not null"`
	PaidAt          *time.Time `gorm:"column:paid_at"`
	StockConsumedAt *time.Time `gorm:"column:stock_consumed_at"`
	Note            string     `gorm:"column:note;type:text"`
	CreatedAt       time.Time  `gorm:"column:created_at"`
	UpdatedAt       time.Time  `gorm:"column:updated_at"`
}

func (OrderSQLite) TableName() string {
	return "orders"
}

var _ = ginkgo.Describe("OrderRepository", func() {
	var (
		db   *gorm.DB
		repo *OrderRepository
	)

	ginkgo.BeforeEach(func() {
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(db.AutoMigrate(&OrderSQLite{})).To(gomega.Succeed())

		gomega.Expect(db.Create(&OrderSQLite{
			ID:            45,
			Code:          ordermodel.CodeForID(45),
			PaymentStatus: ordermodel.StatusPendingConfirm,
			TotalAmount:   250000,
			Note:          `{"total_amount":250000}`,
		}).Error).To(gomega.Succeed())

		repo = &OrderRepository{db: db}
	})

	ginkgo.It("loads an order by id", func() {
		ord, err := repo.GetByID(45)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(ord.Code).To(gomega.Equal("GDN-000045"))
		gomega.Expect(ord.PaymentStatus).To(gomega.Equal(ordermodel.StatusPendingConfirm))
		gomega.Expect(string(ord.Note)).To(gomega.Equal(`{"total_amount":250000}`))
	})

	ginkgo.It("returns the typed not-found error for a missing order", func() {
		_, err := repo.GetByID(999)
		gomega.Expect(internal.IsCode(err, internal.ErrCodeOrderNotFound)).To(gomega.BeTrue())
	})

	ginkgo.It("updates the payment status with method and paid time", func() {
		method := ordermodel.MethodCOD
		paidAt := time.Now().UTC()
		err := repo.UpdatePaymentStatus(45, ordermodel.StatusPaid, &method, &paidAt)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		ord, err := repo.GetByID(45)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(ord.PaymentStatus).To(gomega.Equal(ordermodel.StatusPaid))
		gomega.Expect(ord.PaymentMethod).ToNot(gomega.BeNil())
		gomega.Expect(*ord.PaymentMethod).To(gomega.Equal(ordermodel.MethodCOD))
		gomega.Expect(ord.PaidAt).ToNot(gomega.BeNil())
	})

	ginkgo.It("leaves method and paid time untouched when absent", func() {
		err := repo.UpdatePaymentStatus(45, ordermodel.StatusCanceled, nil, nil)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		ord, err := repo.GetByID(45)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(ord.PaymentStatus).To(gomega.Equal(ordermodel.StatusCanceled))
		gomega.Expect(ord.PaymentMethod).To(gomega.BeNil())
		gomega.Expect(ord.PaidAt).To(gomega.BeNil())
	})
})
