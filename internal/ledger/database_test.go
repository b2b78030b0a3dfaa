package ledger

import (
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/expense-tracker/internal/expense"
)

var _ = Describe("BoltDB", func() {
	var (
		tmpDir string
		dbPath string
		db     *BoltDB
	)

	newExpense := func(user, id string, date time.Time) *Expense {
		return &Expense{
			ID:     id,
			UserID: user,
			Title:  "Coffee",
			Date:   date,
			Total:  decimal.RequireFromString("4.50"),
			Items: []expense.LineItem{
				{Amount: decimal.RequireFromString("4.50"), Title: "Coffee", Category: expense.CategoryFood},
			},
			Source:    SourceEmail,
			CreatedAt: date,
			UpdatedAt: date,
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

	Describe("SaveExpense", func() {
		var (
			e   *Expense
			err error
		)

		BeforeEach(func() {
			e = newExpense("alice", "exp-1", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
		})

		JustBeforeEach(func() {
			err = db.SaveExpense(e)
		})

		When("saving succeeds", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should round-trip decimals and items", func() {
				saved, getErr := db.GetExpense("alice", "exp-1")
				Expect(getErr).NotTo(HaveOccurred())
				Expect(saved.Total.String()).To(Equal("4.5"))
				Expect(saved.Items).To(HaveLen(1))
				Expect(saved.Items[0].Category).To(Equal(expense.CategoryFood))
			})

			It("should keep users apart", func() {
				_, getErr := db.GetExpense("bob", "exp-1")
				Expect(getErr).To(MatchError(ErrNotFound))
			})
		})

		When("the expense has no user", func() {
			BeforeEach(func() {
				e.UserID = ""
			})

			It("returns an error", func() {
				Expect(err).To(HaveOccurred())
			})
		})

		When("another expense already holds the message ID", func() {
			BeforeEach(func() {
				first := newExpense("alice", "exp-0", time.Now())
				first.MessageID = "m-1"
				Expect(db.SaveExpense(first)).To(Succeed())
				e.MessageID = "m-1"
			})

			It("returns ErrDuplicateMessage", func() {
				Expect(err).To(MatchError(ErrDuplicateMessage))
			})
		})

		When("the same expense is saved again", func() {
			BeforeEach(func() {
				e.MessageID = "m-1"
				Expect(db.SaveExpense(e)).To(Succeed())
			})

			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})
		})
	})

	Describe("ListExpenses", func() {
		var (
			expenses []*Expense
			err      error
		)

		JustBeforeEach(func() {
			expenses, err = db.ListExpenses("alice")
		})

		When("expenses exist", func() {
			BeforeEach(func() {
				Expect(db.SaveExpense(newExpense("alice", "old", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))).To(Succeed())
				Expect(db.SaveExpense(newExpense("alice", "new", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))).To(Succeed())
				Expect(db.SaveExpense(newExpense("bob", "other", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))).To(Succeed())
			})

			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return only the user's expenses, newest first", func() {
				Expect(expenses).To(HaveLen(2))
				Expect(expenses[0].ID).To(Equal("new"))
				Expect(expenses[1].ID).To(Equal("old"))
			})
		})

		When("the user has no expenses", func() {
			It("should return an empty list", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(expenses).To(BeEmpty())
			})
		})
	})

	Describe("DeleteExpense", func() {
		var (
			id  string
			err error
		)

		JustBeforeEach(func() {
			err = db.DeleteExpense("alice", id)
		})

		When("the expense exists", func() {
			BeforeEach(func() {
				id = "exp-1"
				e := newExpense("alice", id, time.Now())
				e.MessageID = "m-1"
				Expect(db.SaveExpense(e)).To(Succeed())
			})

			It("should remove the expense", func() {
				Expect(err).NotTo(HaveOccurred())
				_, getErr := db.GetExpense("alice", id)
				Expect(getErr).To(MatchError(ErrNotFound))
			})

			It("should drop the message index entry", func() {
				_, findErr := db.FindByMessageID("alice", "m-1")
				Expect(findErr).To(MatchError(ErrNotFound))
			})
		})

		When("the expense does not exist", func() {
			BeforeEach(func() {
				id = "nonexistent"
			})

			It("returns ErrNotFound", func() {
				Expect(err).To(MatchError(ErrNotFound))
			})
		})
	})

	Describe("FindByMessageID", func() {
		var (
			found *Expense
			err   error
		)

		BeforeEach(func() {
			e := newExpense("alice", "exp-1", time.Now())
			e.MessageID = "m-1"
			Expect(db.SaveExpense(e)).To(Succeed())
		})

		It("should find the expense for a recorded message", func() {
			found, err = db.FindByMessageID("alice", "m-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(found.ID).To(Equal("exp-1"))
		})

		It("should not find messages recorded for other users", func() {
			_, err = db.FindByMessageID("bob", "m-1")
			Expect(err).To(MatchError(ErrNotFound))
		})
	})

	Describe("Close", func() {
		It("should not return an error", func() {
			err := db.Close()
			Expect(err).NotTo(HaveOccurred())
			db = nil
		})
	})
})
