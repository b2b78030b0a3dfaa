package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

const (
	expensesBucket     = "expenses"
	messageIndexBucket = "message_index"
)

var (
	// ErrNotFound is returned when a user has no record with the requested key
	ErrNotFound = errors.New("not found")

	// ErrDuplicateMessage is returned when saving an email expense whose
	// message was already recorded for the user
	ErrDuplicateMessage = errors.New("message already recorded")
)

// DB defines the interface for database operations. Records are scoped to a user.
type DB interface {
	// SaveExpense creates or replaces an expense
	SaveExpense(e *Expense) error

	// GetExpense retrieves one of a user's expenses by ID
	GetExpense(userID, id string) (*Expense, error)

	// ListExpenses returns a user's expenses, newest first
	ListExpenses(userID string) ([]*Expense, error)

	// DeleteExpense removes an expense and its message index entry
	DeleteExpense(userID, id string) error

	// FindByMessageID returns the expense recorded for an email idempotency key
	FindByMessageID(userID, messageID string) (*Expense, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB. Each top-level bucket
// holds one nested bucket per user.
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{expensesBucket, messageIndexBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// userBucket returns the user's nested bucket, or nil if the user has none yet
func userBucket(tx *bbolt.Tx, name, userID string) *bbolt.Bucket {
	return tx.Bucket([]byte(name)).Bucket([]byte(userID))
}

// SaveExpense saves an expense. Email expenses are indexed by message ID in
// the same transaction; a second expense for the same message is rejected.
func (b *BoltDB) SaveExpense(e *Expense) error {
	if e.UserID == "" || e.ID == "" {
		return fmt.Errorf("expense needs a user and an id")
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling expense: %w", err)
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		if e.MessageID != "" {
			index, err := tx.Bucket([]byte(messageIndexBucket)).CreateBucketIfNotExists([]byte(e.UserID))
			if err != nil {
				return fmt.Errorf("creating message index: %w", err)
			}
			if existing := index.Get([]byte(e.MessageID)); existing != nil && !bytes.Equal(existing, []byte(e.ID)) {
				return fmt.Errorf("%w: %s", ErrDuplicateMessage, e.MessageID)
			}
			if err := index.Put([]byte(e.MessageID), []byte(e.ID)); err != nil {
				return err
			}
		}

		bucket, err := tx.Bucket([]byte(expensesBucket)).CreateBucketIfNotExists([]byte(e.UserID))
		if err != nil {
			return fmt.Errorf("creating user bucket: %w", err)
		}
		return bucket.Put([]byte(e.ID), data)
	})
}

func getExpense(tx *bbolt.Tx, userID, id string) (*Expense, error) {
	bucket := userBucket(tx, expensesBucket, userID)
	if bucket == nil {
		return nil, fmt.Errorf("expense %s: %w", id, ErrNotFound)
	}
	data := bucket.Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("expense %s: %w", id, ErrNotFound)
	}
	var e Expense
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unmarshaling expense: %w", err)
	}
	return &e, nil
}

// GetExpense retrieves an expense by ID
func (b *BoltDB) GetExpense(userID, id string) (*Expense, error) {
	var e *Expense
	err := b.db.View(func(tx *bbolt.Tx) error {
		var err error
		e, err = getExpense(tx, userID, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListExpenses returns all of a user's expenses ordered by date, newest first
func (b *BoltDB) ListExpenses(userID string) ([]*Expense, error) {
	expenses := make([]*Expense, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := userBucket(tx, expensesBucket, userID)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var e Expense
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("unmarshaling expense: %w", err)
			}
			expenses = append(expenses, &e)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(expenses, func(i, j int) bool {
		if expenses[i].Date.Equal(expenses[j].Date) {
			return expenses[i].CreatedAt.After(expenses[j].CreatedAt)
		}
		return expenses[i].Date.After(expenses[j].Date)
	})
	return expenses, nil
}

// DeleteExpense removes an expense from the database
func (b *BoltDB) DeleteExpense(userID, id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		e, err := getExpense(tx, userID, id)
		if err != nil {
			return err
		}
		if e.MessageID != "" {
			if index := userBucket(tx, messageIndexBucket, userID); index != nil {
				if err := index.Delete([]byte(e.MessageID)); err != nil {
					return err
				}
			}
		}
		return userBucket(tx, expensesBucket, userID).Delete([]byte(id))
	})
}

// FindByMessageID looks up the expense recorded for an email
func (b *BoltDB) FindByMessageID(userID, messageID string) (*Expense, error) {
	var e *Expense
	err := b.db.View(func(tx *bbolt.Tx) error {
		index := userBucket(tx, messageIndexBucket, userID)
		if index == nil {
			return fmt.Errorf("message %s: %w", messageID, ErrNotFound)
		}
		id := index.Get([]byte(messageID))
		if id == nil {
			return fmt.Errorf("message %s: %w", messageID, ErrNotFound)
		}
		var err error
		e, err = getExpense(tx, userID, string(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
