package receipt

import (
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("BoltDB", func() {
	var (
		tmpDir string
		dbPath string
		db     *BoltDB
	)

	newReceipt := func(id, owner string) *Receipt {
		return &Receipt{
			ID:           id,
			OwnerID:      owner,
			Date:         dayPtr(2024, 1, 15),
			LocationName: "Corner Cafe",
			Amount:       "25.99",
			FileName:     "test.jpg",
			ImageBucket:  owner + "/" + id + "_test.jpg",
			ContentType:  "image/jpeg",
			CreatedAt:    time.Now(),
			UpdatedAt:    time.Now(),
		}
	}

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		dbPath = filepath.Join(tmpDir, "test.db")
		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("SaveReceipt", func() {
		var err error

		JustBeforeEach(func() {
			err = db.SaveReceipt(newReceipt("test-id", "user-1"))
		})

		When("saving succeeds", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should save the receipt to the database", func() {
				saved, getErr := db.GetReceipt("test-id")
				Expect(getErr).NotTo(HaveOccurred())
				Expect(saved.ID).To(Equal("test-id"))
			})
		})

		When("the receipt already exists", func() {
			BeforeEach(func() {
				r := newReceipt("test-id", "user-1")
				r.LocationName = "Old Name"
				Expect(db.SaveReceipt(r)).To(Succeed())
			})

			It("replaces it", func() {
				saved, getErr := db.GetReceipt("test-id")
				Expect(getErr).NotTo(HaveOccurred())
				Expect(saved.LocationName).To(Equal("Corner Cafe"))
			})
		})
	})

	Describe("GetReceipt", func() {
		var (
			receiptID string
			receipt   *Receipt
			err       error
		)

		JustBeforeEach(func() {
			receipt, err = db.GetReceipt(receiptID)
		})

		When("receipt exists", func() {
			BeforeEach(func() {
				receiptID = "test-id"
				Expect(db.SaveReceipt(newReceipt("test-id", "user-1"))).To(Succeed())
			})

			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should round trip the fields", func() {
				Expect(receipt.OwnerID).To(Equal("user-1"))
				Expect(receipt.Amount).To(Equal("25.99"))
				Expect(receipt.Date.Equal(*dayPtr(2024, 1, 15))).To(BeTrue())
			})
		})

		When("receipt does not exist", func() {
			BeforeEach(func() {
				receiptID = "nonexistent"
			})

			It("returns ErrNotFound", func() {
				Expect(err).To(MatchError(ErrNotFound))
				Expect(err.Error()).To(ContainSubstring("nonexistent"))
			})
		})
	})

	Describe("ListReceipts", func() {
		var (
			receipts []*Receipt
			err      error
		)

		JustBeforeEach(func() {
			receipts, err = db.ListReceipts("user-1")
		})

		When("receipts exist for several owners", func() {
			BeforeEach(func() {
				Expect(db.SaveReceipt(newReceipt("id1", "user-1"))).To(Succeed())
				Expect(db.SaveReceipt(newReceipt("id2", "user-1"))).To(Succeed())
				Expect(db.SaveReceipt(newReceipt("id3", "user-2"))).To(Succeed())
			})

			It("returns only the owner's receipts", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(receipts).To(HaveLen(2))
			})
		})

		When("no receipts exist", func() {
			It("returns an empty list", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(receipts).NotTo(BeNil())
				Expect(receipts).To(BeEmpty())
			})
		})
	})

	Describe("DeleteReceipt", func() {
		BeforeEach(func() {
			Expect(db.SaveReceipt(newReceipt("test-id", "user-1"))).To(Succeed())
		})

		It("removes the receipt", func() {
			Expect(db.DeleteReceipt("test-id")).To(Succeed())
			_, err := db.GetReceipt("test-id")
			Expect(err).To(MatchError(ErrNotFound))
		})
	})

	Describe("reopening the database", func() {
		It("keeps saved receipts", func() {
			Expect(db.SaveReceipt(newReceipt("test-id", "user-1"))).To(Succeed())
			Expect(db.Close()).To(Succeed())

			var err error
			db, err = NewBoltDB(dbPath)
			Expect(err).NotTo(HaveOccurred())

			saved, err := db.GetReceipt("test-id")
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.LocationName).To(Equal("Corner Cafe"))
		})
	})
})
