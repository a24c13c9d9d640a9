package receipt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/zombor/expense-tracker/internal/auth"
	"github.com/zombor/expense-tracker/internal/form"
)

// maxUploadSize caps receipt uploads; phone photos can be large
const maxUploadSize = int64(50 << 20)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps service and form errors to HTTP responses
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, form.ErrIncomplete):
		writeError(w, http.StatusBadRequest, "Receipt is incomplete. Date, location name, address, items and amount are required.")
	case errors.Is(err, form.ErrFileNotAllowed):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, form.ErrSubmitInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "Unauthorized")
	case IsNotFound(err):
		writeError(w, http.StatusNotFound, "Receipt not found")
	case errors.Is(err, ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("Error handling receipt", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// currentUser returns the user stored by requireAuth
func currentUser(r *http.Request) string {
	id, _ := auth.UserIDFromContext(r.Context())
	return id
}

// submission adapts the service to the form's store and keeps the created receipt
type submission struct {
	service *Service
	created *Receipt
}

func (s *submission) UploadReceiptImage(ctx context.Context, file form.File, ownerID string) error {
	receipt, err := s.service.UploadReceiptImage(ctx, file, ownerID)
	if err != nil {
		return err
	}
	s.created = receipt
	return nil
}

func (s *submission) UpdateReceipt(ctx context.Context, update form.ReceiptUpdate) error {
	return s.service.UpdateReceipt(ctx, update)
}

// submitForm runs one receipt form from opening to submission
func (s *Server) submitForm(ctx context.Context, action form.Action, existing *form.State, fill func(*form.Controller) error) (*submission, error) {
	sub := &submission{service: s.service}
	ctrl := form.NewController(action, existing, auth.ContextProvider{}, sub, form.Callbacks{
		OnSuccess: func(a form.Action) {
			slog.Info("Receipt form submitted", "action", a)
		},
		OnError: func(a form.Action) {
			slog.Warn("Receipt form submission failed", "action", a)
		},
	})
	if err := ctrl.Initialize(action, existing, true); err != nil {
		return nil, err
	}
	if err := fill(ctrl); err != nil {
		return nil, err
	}
	if !ctrl.CanSubmit() {
		return nil, form.ErrIncomplete
	}
	if err := ctrl.Submit(ctx); err != nil {
		return nil, err
	}
	return sub, nil
}

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListReceipts returns the caller's receipts
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := s.service.ListReceipts(r.Context(), currentUser(r))
	if err != nil {
		slog.Error("Error listing receipts", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, receipts)
}

// handleAddReceipt accepts a multipart upload and runs the add flow
func (s *Server) handleAddReceipt(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "File is too large. Maximum size is 50MB. Please compress or resize your image.")
			return
		}
		writeError(w, http.StatusBadRequest, "Error parsing form")
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file was selected. Please choose a file to upload.")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
		return
	}

	sub, err := s.submitForm(r.Context(), form.ActionAdd, nil, func(c *form.Controller) error {
		return c.AttachFile(form.File{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Data:        data,
		})
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub.created)
}

// receiptFields is the JSON body of edit and confirm requests. Absent fields keep their stored value.
type receiptFields struct {
	Date         *string `json:"date"`
	LocationName *string `json:"location_name"`
	Address      *string `json:"address"`
	Items        *string `json:"items"`
	Amount       *string `json:"amount"`
}

// parseDate accepts a calendar date or an RFC 3339 timestamp
func parseDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if d, err := time.Parse("2006-01-02", raw); err == nil {
		return &d, nil
	}
	d, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalid, raw)
	}
	return &d, nil
}

// apply copies the present fields onto the form
func (f receiptFields) apply(c *form.Controller) error {
	if f.Date != nil {
		date, err := parseDate(*f.Date)
		if err != nil {
			return err
		}
		c.SetDate(date)
	}
	fields := []struct {
		name  form.Field
		value *string
	}{
		{form.FieldLocationName, f.LocationName},
		{form.FieldAddress, f.Address},
		{form.FieldItems, f.Items},
		{form.FieldAmount, f.Amount},
	}
	for _, field := range fields {
		if field.value == nil {
			continue
		}
		if err := c.SetField(field.name, *field.value); err != nil {
			return err
		}
	}
	return nil
}

// handleEditReceipt runs the edit flow
func (s *Server) handleEditReceipt(w http.ResponseWriter, r *http.Request) {
	s.handleUpdate(w, r, form.ActionEdit, true)
}

// handleConfirmReceipt runs the confirm flow; the body is optional
func (s *Server) handleConfirmReceipt(w http.ResponseWriter, r *http.Request) {
	s.handleUpdate(w, r, form.ActionConfirm, false)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request, action form.Action, bodyRequired bool) {
	id := r.PathValue("id")
	owner := currentUser(r)

	existing, err := s.service.GetReceipt(r.Context(), id, owner)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var fields receiptFields
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		if !errors.Is(err, io.EOF) || bodyRequired {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	if _, err := s.submitForm(r.Context(), action, existing.FormState(), fields.apply); err != nil {
		writeServiceError(w, err)
		return
	}

	updated, err := s.service.GetReceipt(r.Context(), id, owner)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleGetReceipt returns a single receipt
func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.service.GetReceipt(r.Context(), r.PathValue("id"), currentUser(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// handleGetReceiptFile returns the image of a receipt
func (s *Server) handleGetReceiptFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetReceiptFile(r.Context(), r.PathValue("id"), currentUser(r))
	if err != nil {
		if !IsNotFound(err) {
			slog.Error("Error reading receipt file", "id", r.PathValue("id"), "error", err)
		}
		writeError(w, http.StatusNotFound, "File not found")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleDeleteReceipt deletes a receipt
func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteReceipt(r.Context(), r.PathValue("id"), currentUser(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
