package ledger

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/expense-tracker/internal/expense"
	"github.com/zombor/expense-tracker/internal/scanning"
)

const (
	// maxUploadSize bounds bill uploads and email batches (high-resolution phone photos)
	maxUploadSize = int64(50 << 20)
	maxEmailSize  = int64(10 << 20)
)

// writeJSON encodes v as the response body
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}

// lookupStatus maps a ledger lookup error to a response status
func lookupStatus(err error) int {
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// handleCategories returns the category vocabulary
func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version":    expense.VocabularyVersion,
		"categories": expense.Categories(),
	})
}

// handleExtract runs the text pipeline on a JSON {"text": ...} body
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEmailSize)).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	data, err := s.service.ExtractText(req.Text)
	if err != nil {
		if errors.Is(err, expense.ErrNoAmountFound) {
			writeError(w, "No amount found in text", http.StatusUnprocessableEntity)
			return
		}
		slog.Error("Error extracting expense", "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// handleListExpenses returns a user's expenses
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := s.service.ListExpenses(r.PathValue("user"))
	if err != nil {
		slog.Error("Error listing expenses", "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, expenses)
}

// handleGetExpense returns a single expense
func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	e, err := s.service.GetExpense(r.PathValue("user"), r.PathValue("id"))
	if err != nil {
		writeError(w, "Expense not found", lookupStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// handleGetExpenseFile returns the bill image of an expense
func (s *Server) handleGetExpenseFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetExpenseFile(r.PathValue("user"), r.PathValue("id"))
	if err != nil {
		status := lookupStatus(err)
		if status == http.StatusInternalServerError {
			slog.Error("Error getting expense file", "error", err)
			writeError(w, "Error getting expense file", status)
			return
		}
		writeError(w, "File not found", status)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleDeleteExpense deletes an expense
func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteExpense(r.PathValue("user"), r.PathValue("id")); err != nil {
		status := lookupStatus(err)
		if status == http.StatusInternalServerError {
			slog.Error("Error deleting expense", "error", err)
		}
		writeError(w, "Error deleting expense", status)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleIngestEmail records the expense in a raw RFC 822 request body
func (s *Server) handleIngestEmail(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEmailSize))
	if err != nil {
		writeError(w, "Email is too large", http.StatusRequestEntityTooLarge)
		return
	}

	e, created, err := s.service.IngestEmail(r.PathValue("user"), raw)
	switch {
	case errors.Is(err, ErrMalformedEmail):
		writeError(w, "Could not read email", http.StatusBadRequest)
	case errors.Is(err, expense.ErrNoAmountFound):
		writeError(w, "No amount found in email", http.StatusUnprocessableEntity)
	case err != nil:
		slog.Error("Error ingesting email", "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
	case created:
		writeJSON(w, http.StatusCreated, e)
	default:
		writeJSON(w, http.StatusOK, e)
	}
}

// handleIngestEmailBatch records every "email" file of a multipart upload
func (s *Server) handleIngestEmailBatch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		writeError(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	headers := r.MultipartForm.File["email"]
	if len(headers) == 0 {
		writeError(w, "No emails provided", http.StatusBadRequest)
		return
	}

	raws := make([][]byte, 0, len(headers))
	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			writeError(w, "Error reading email", http.StatusBadRequest)
			return
		}
		raw, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, "Error reading email", http.StatusBadRequest)
			return
		}
		raws = append(raws, raw)
	}

	recorded, failed := s.service.IngestEmails(r.PathValue("user"), raws)
	writeJSON(w, http.StatusOK, map[string]any{
		"recorded": recorded,
		"failed":   failed,
	})
}

// billContentType determines the content type of an uploaded bill
func billContentType(declared, filename string, data []byte) string {
	if declared != "" && declared != "application/octet-stream" {
		return strings.ToLower(strings.TrimSpace(declared))
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	}
	return http.DetectContentType(data)
}

// handleUploadBill handles a multipart bill upload
func (s *Server) handleUploadBill(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			errorMsg = "File is too large. Maximum size is 50MB."
		}
		writeError(w, errorMsg, http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, "No file was selected", http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, "Error reading file", http.StatusInternalServerError)
		return
	}

	contentType := billContentType(header.Header.Get("Content-Type"), header.Filename, data)
	e, err := s.service.ProcessBill(r.PathValue("user"), header.Filename, data, contentType)
	if err != nil {
		if errors.Is(err, scanning.ErrNoStructure) || errors.Is(err, expense.ErrInvalidResult) {
			writeError(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		slog.Error("Error processing bill", "filename", header.Filename, "error", err)
		writeError(w, "Error processing bill", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// handleSummary returns a user's spend per category
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.Summarize(r.PathValue("user"))
	if err != nil {
		slog.Error("Error summarizing expenses", "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
