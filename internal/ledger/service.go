package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zombor/expense-tracker/internal/expense"
	"github.com/zombor/expense-tracker/internal/message"
	"github.com/zombor/expense-tracker/internal/scanning"
)

// IDGenerator generates unique IDs for expenses
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// ErrMalformedEmail is returned when a raw email cannot be decoded
var ErrMalformedEmail = errors.New("malformed email")

// Service records expenses extracted from emails and scanned bills
type Service struct {
	db          DB
	scanner     scanning.Scanner
	storage     Storage
	extractor   *expense.Extractor
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with a UUID generator and the wall clock
func NewService(db DB, scanner scanning.Scanner, storage Storage, extractor *expense.Extractor) *Service {
	return NewServiceWithDeps(db, scanner, storage, extractor, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, scanner scanning.Scanner, storage Storage, extractor *expense.Extractor, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		scanner:     scanner,
		storage:     storage,
		extractor:   extractor,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename strips special characters from an uploaded filename and truncates it
func sanitizeFilename(filename string) string {
	filename = filepath.Base(filename)
	ext := unsafeFilenameChars.ReplaceAllString(filepath.Ext(filename), "")
	base := strings.TrimSuffix(filename, filepath.Ext(filename))

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = strings.TrimSpace(repeatedSpaces.ReplaceAllString(base, " "))
	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "bill"
	}
	if ext != "" {
		ext = "." + ext
	}
	return base + ext
}

// expenseTitle names an expense after its first item, noting how many more it has
func expenseTitle(items []expense.LineItem) string {
	switch len(items) {
	case 0:
		return "Expense"
	case 1:
		return items[0].Title
	default:
		return fmt.Sprintf("%s + %d more", items[0].Title, len(items)-1)
	}
}

// ExtractText runs the text pipeline without recording anything
func (s *Service) ExtractText(text string) (*expense.ExpenseData, error) {
	return s.extractor.ExtractExpense(text)
}

// IngestEmail records the expense described by a raw email. An email already
// recorded for the user returns the existing expense with created set to false.
func (s *Service) IngestEmail(userID string, raw []byte) (*Expense, bool, error) {
	msg, err := message.Parse(raw)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrMalformedEmail, err)
	}

	key := msg.IdempotencyKey()
	existing, err := s.db.FindByMessageID(userID, key)
	if err == nil {
		slog.Debug("Email already recorded", "user", userID, "message_id", key, "expense_id", existing.ID)
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("checking message index: %w", err)
	}

	text := msg.Text()
	if text == "" {
		text = msg.Subject
	}
	data, err := s.extractor.ExtractExpense(text)
	if err != nil {
		return nil, false, fmt.Errorf("extracting expense from email: %w", err)
	}

	now := s.timeSource.Now()
	date := msg.Date
	if date.IsZero() {
		date = now
	}
	title := msg.Subject
	if title == "" {
		title = expenseTitle(data.Items)
	}

	e := &Expense{
		ID:        s.idGenerator.Generate(),
		UserID:    userID,
		Title:     title,
		Date:      date,
		Total:     data.Total,
		Items:     data.Items,
		Source:    SourceEmail,
		MessageID: key,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.SaveExpense(e); err != nil {
		if errors.Is(err, ErrDuplicateMessage) {
			if existing, findErr := s.db.FindByMessageID(userID, key); findErr == nil {
				return existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("saving expense to database: %w", err)
	}

	slog.Info("Recorded email expense", "user", userID, "expense_id", e.ID, "total", e.Total.StringFixed(2), "items", len(e.Items))
	return e, true, nil
}

// IngestEmails records a batch of emails. Failures are logged and skipped;
// the number of skipped emails is returned with the newly recorded expenses.
func (s *Service) IngestEmails(userID string, raws [][]byte) ([]*Expense, int) {
	recorded := make([]*Expense, 0, len(raws))
	failed := 0
	for i, raw := range raws {
		e, created, err := s.IngestEmail(userID, raw)
		if err != nil {
			slog.Warn("Skipping email", "user", userID, "index", i, "error", err)
			failed++
			continue
		}
		if created {
			recorded = append(recorded, e)
		}
	}
	return recorded, failed
}

// ProcessBill stores a bill image, scans it and records the expense
func (s *Service) ProcessBill(userID, filename string, data []byte, contentType string) (*Expense, error) {
	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	savedPath, err := s.storage.Save(fmt.Sprintf("%s/%s_%s", userID, id, sanitizeFilename(filename)), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	bill, err := s.scanner.ScanBill(data, contentType)
	if err != nil {
		slog.Error("Failed to scan bill",
			"user", userID,
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		s.storage.Delete(savedPath)
		return nil, fmt.Errorf("scanning bill: %w", err)
	}

	e := &Expense{
		ID:          id,
		UserID:      userID,
		Title:       expenseTitle(bill.Items),
		Date:        now,
		Total:       bill.Total,
		Items:       bill.Items,
		Source:      SourceBill,
		Filename:    savedPath,
		ContentType: contentType,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.SaveExpense(e); err != nil {
		s.storage.Delete(savedPath)
		return nil, fmt.Errorf("saving expense to database: %w", err)
	}

	slog.Info("Recorded bill expense", "user", userID, "expense_id", e.ID, "total", e.Total.StringFixed(2), "items", len(e.Items))
	return e, nil
}

// GetExpense retrieves an expense by ID
func (s *Service) GetExpense(userID, id string) (*Expense, error) {
	e, err := s.db.GetExpense(userID, id)
	if err != nil {
		return nil, fmt.Errorf("getting expense: %w", err)
	}
	return e, nil
}

// ListExpenses returns a user's expenses, newest first
func (s *Service) ListExpenses(userID string) ([]*Expense, error) {
	expenses, err := s.db.ListExpenses(userID)
	if err != nil {
		return nil, fmt.Errorf("listing expenses: %w", err)
	}
	return expenses, nil
}

// DeleteExpense removes an expense and its bill image
func (s *Service) DeleteExpense(userID, id string) error {
	e, err := s.db.GetExpense(userID, id)
	if err != nil {
		return fmt.Errorf("getting expense for deletion: %w", err)
	}

	if e.Filename != "" {
		if err := s.storage.Delete(e.Filename); err != nil {
			slog.Warn("Failed to delete file", "filename", e.Filename, "error", err)
		}
	}

	if err := s.db.DeleteExpense(userID, id); err != nil {
		return fmt.Errorf("deleting expense from database: %w", err)
	}
	return nil
}

// GetExpenseFile retrieves the bill image of an expense
func (s *Service) GetExpenseFile(userID, id string) ([]byte, string, error) {
	e, err := s.db.GetExpense(userID, id)
	if err != nil {
		return nil, "", fmt.Errorf("getting expense: %w", err)
	}
	if e.Filename == "" {
		return nil, "", fmt.Errorf("expense %s has no file: %w", id, ErrNotFound)
	}

	data, err := s.storage.Get(e.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting expense file: %w", err)
	}
	return data, e.ContentType, nil
}

// Summarize totals a user's spend overall and per category. Categories follow
// vocabulary order and only those with items are listed.
func (s *Service) Summarize(userID string) (*Summary, error) {
	expenses, err := s.db.ListExpenses(userID)
	if err != nil {
		return nil, fmt.Errorf("listing expenses: %w", err)
	}

	totals := make(map[expense.Category]*CategoryTotal)
	summary := &Summary{UserID: userID, Expenses: len(expenses), Total: decimal.Zero}
	for _, e := range expenses {
		summary.Total = summary.Total.Add(e.Total)
		for _, item := range e.Items {
			ct, ok := totals[item.Category]
			if !ok {
				ct = &CategoryTotal{Category: item.Category, Total: decimal.Zero}
				totals[item.Category] = ct
			}
			ct.Total = ct.Total.Add(item.Amount)
			ct.Items++
		}
	}

	summary.ByCategory = make([]CategoryTotal, 0, len(totals))
	for _, c := range expense.Categories() {
		if ct, ok := totals[c]; ok {
			summary.ByCategory = append(summary.ByCategory, *ct)
		}
	}
	return summary, nil
}
