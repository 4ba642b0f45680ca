package cart_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/gardenfresh/order-payments/internal/cart"
)

var _ = Describe("LineKey", func() {
	It("is insensitive to addon order", func() {
		Expect(cart.LineKey(1, 50000, []int64{3, 7})).To(Equal(cart.LineKey(1, 50000, []int64{7, 3})))
	})

	It("distinguishes different addon sets", func() {
		Expect(cart.LineKey(1, 50000, []int64{3})).NotTo(Equal(cart.LineKey(1, 50000, []int64{3, 7})))
	})

	It("distinguishes the same dish at different prices", func() {
		Expect(cart.LineKey(1, 50000, nil)).NotTo(Equal(cart.LineKey(1, 45000, nil)))
	})
})

var _ = Describe("Store", func() {
	var store *cart.Store

	BeforeEach(func() {
		store = cart.NewStore()
	})

	It("merges identical additions into one line", func() {
		store.Add(1, "Pho Bo", 50000, []int64{3, 7})
		store.Add(1, "Pho Bo", 50000, []int64{7, 3})

		lines := store.Lines()
		Expect(lines).To(HaveLen(1))
		Expect(lines[0].Quantity).To(Equal(2))
		Expect(store.Total()).To(Equal(int64(100000)))
	})

	It("keeps different customizations on separate lines", func() {
		store.Add(1, "Pho Bo", 50000, []int64{3})
		store.Add(1, "Pho Bo", 50000, []int64{3, 7})

		Expect(store.Lines()).To(HaveLen(2))
	})

	It("removes a line when its quantity drops to zero", func() {
		store.Add(1, "Pho Bo", 50000, nil)
		key := store.Lines()[0].Key

		store.Increment(key, -1)
		Expect(store.Lines()).To(BeEmpty())
	})

	It("increments and decrements quantity by key", func() {
		store.Add(1, "Pho Bo", 50000, nil)
		key := store.Lines()[0].Key

		store.Increment(key, 2)
		Expect(store.Lines()[0].Quantity).To(Equal(3))

		store.Increment(key, -1)
		Expect(store.Lines()[0].Quantity).To(Equal(2))
	})

	It("removes a line outright", func() {
		store.Add(1, "Pho Bo", 50000, nil)
		store.Add(2, "Bun Cha", 45000, nil)
		key := store.Lines()[0].Key

		store.Remove(key)
		lines := store.Lines()
		Expect(lines).To(HaveLen(1))
		Expect(lines[0].DishID).To(Equal(int64(2)))
	})

	It("clears everything", func() {
		store.Add(1, "Pho Bo", 50000, nil)
		store.Clear()
		Expect(store.Lines()).To(BeEmpty())
		Expect(store.Total()).To(BeZero())
	})

	It("notifies subscribers with a snapshot on every change", func() {
		var notified [][]cart.Line
		store.Subscribe(func(lines []cart.Line) {
			notified = append(notified, lines)
		})

		store.Add(1, "Pho Bo", 50000, nil)
		store.Add(1, "Pho Bo", 50000, nil)

		Expect(notified).To(HaveLen(2))
		Expect(notified[0][0].Quantity).To(Equal(1))
		Expect(notified[1][0].Quantity).To(Equal(2))
	})
})
