package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zombor/expense-tracker/internal/form"
	"github.com/zombor/expense-tracker/internal/scanning"
)

// IDGenerator generates unique IDs for receipts
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles receipt operations
type Service struct {
	db          DB
	scanner     scanning.Scanner
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service. scanner may be nil to skip field extraction.
func NewService(db DB, scanner scanning.Scanner, storage Storage) *Service {
	return NewServiceWithDeps(db, scanner, storage, uuidGenerator{}, defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, scanner scanning.Scanner, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		scanner:     scanner,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	filenameUnsafe = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	filenameSpaces = regexp.MustCompile(`\s+`)
	keyUnsafe      = regexp.MustCompile(`[^a-zA-Z0-9\-_@]`)
)

// sanitizeFilename shortens phone-generated names and strips special characters
func sanitizeFilename(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	base = filenameUnsafe.ReplaceAllString(base, "")
	base = strings.TrimSpace(filenameSpaces.ReplaceAllString(base, " "))
	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "receipt"
	}
	return base + ext
}

// ownerPrefix turns a user ID into a single safe key segment
func ownerPrefix(ownerID string) string {
	return keyUnsafe.ReplaceAllString(ownerID, "_")
}

// detectContentType sniffs the image type, falling back to what the client declared
func detectContentType(data []byte, declared string) string {
	detected := mimetype.Detect(data)
	if detected.Is("application/octet-stream") || detected.Is("text/plain") {
		if declared = strings.ToLower(strings.TrimSpace(declared)); declared != "" {
			return declared
		}
	}
	ct := detected.String()
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = ct[:i]
	}
	return ct
}

// parseAmount normalizes a user entered amount to two decimal places
func parseAmount(raw string) (string, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	if strings.ContainsAny(cleaned, "eE") {
		return "", fmt.Errorf("%w: amount %q is not a number", ErrInvalid, raw)
	}
	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return "", fmt.Errorf("%w: amount %q is not a number", ErrInvalid, raw)
	}
	if amount.IsNegative() {
		return "", fmt.Errorf("%w: amount %q is negative", ErrInvalid, raw)
	}
	return amount.StringFixed(2), nil
}

// UploadReceiptImage stores the image and creates an unconfirmed receipt for it.
// Extracted fields are filled in when a scanner is configured.
func (s *Service) UploadReceiptImage(ctx context.Context, file form.File, ownerID string) (*Receipt, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner is required", ErrInvalid)
	}
	if len(file.Data) == 0 {
		return nil, fmt.Errorf("%w: file is empty", ErrInvalid)
	}

	id := s.idGenerator.Generate()
	now := s.timeSource.Now()
	contentType := detectContentType(file.Data, file.ContentType)

	key := fmt.Sprintf("%s/%s_%s", ownerPrefix(ownerID), id, sanitizeFilename(file.Name))
	savedKey, err := s.storage.Save(ctx, key, file.Data, contentType)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	receipt := &Receipt{
		ID:          id,
		OwnerID:     ownerID,
		FileName:    file.Name,
		ImageBucket: savedKey,
		ImageURL:    fmt.Sprintf("/api/receipts/%s/file", id),
		ContentType: contentType,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.extract(ctx, receipt, file.Data)

	if err := s.db.SaveReceipt(receipt); err != nil {
		if delErr := s.storage.Delete(ctx, savedKey); delErr != nil {
			slog.Warn("Failed to clean up file", "key", savedKey, "error", delErr)
		}
		return nil, fmt.Errorf("saving receipt to database: %w", err)
	}

	slog.Info("Receipt uploaded", "id", id, "owner", ownerID, "content_type", contentType, "size", len(file.Data))
	return receipt, nil
}

// extract fills receipt fields from the scanner. Failures leave the fields blank for the user.
func (s *Service) extract(ctx context.Context, receipt *Receipt, data []byte) {
	if s.scanner == nil {
		return
	}
	fields, err := s.scanner.ScanReceipt(ctx, data, receipt.ContentType)
	if err != nil {
		slog.Warn("Failed to scan receipt",
			"id", receipt.ID,
			"content_type", receipt.ContentType,
			"file_size", len(data),
			"error", err,
		)
		return
	}

	receipt.LocationName = fields.LocationName
	receipt.Address = fields.Address
	receipt.Items = fields.Items
	if fields.Amount > 0 {
		receipt.Amount = decimal.NewFromFloat(fields.Amount).StringFixed(2)
	}
	if fields.Date != "" {
		if d, err := time.Parse("2006-01-02", fields.Date); err == nil {
			receipt.Date = &d
		}
	}
}

// UpdateReceipt overwrites the editable fields of an owned receipt
func (s *Service) UpdateReceipt(ctx context.Context, update form.ReceiptUpdate) error {
	receipt, err := s.db.GetReceipt(update.ID)
	if err != nil {
		return fmt.Errorf("getting receipt: %w", err)
	}
	if receipt.OwnerID != update.OwnerID {
		return fmt.Errorf("updating receipt %s: %w", update.ID, ErrForbidden)
	}

	now := s.timeSource.Now()
	if update.Date.IsZero() || update.Date.After(now) {
		return fmt.Errorf("%w: date must be set and not in the future", ErrInvalid)
	}
	if update.ImageBucket != "" && update.ImageBucket != receipt.ImageBucket {
		return fmt.Errorf("%w: receipt image cannot be replaced", ErrInvalid)
	}
	required := []struct{ name, value string }{
		{"location name", update.LocationName},
		{"address", update.Address},
		{"items", update.Items},
		{"amount", update.Amount},
	}
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalid, field.name)
		}
	}
	amount, err := parseAmount(update.Amount)
	if err != nil {
		return err
	}

	date := update.Date
	receipt.Date = &date
	receipt.LocationName = strings.TrimSpace(update.LocationName)
	receipt.Address = strings.TrimSpace(update.Address)
	receipt.Items = strings.TrimSpace(update.Items)
	receipt.Amount = amount
	receipt.IsConfirmed = update.Confirmed
	receipt.UpdatedAt = now

	if err := s.db.SaveReceipt(receipt); err != nil {
		return fmt.Errorf("saving receipt: %w", err)
	}
	return nil
}

// GetReceipt retrieves a receipt owned by ownerID
func (s *Service) GetReceipt(ctx context.Context, id, ownerID string) (*Receipt, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	if receipt.OwnerID != ownerID {
		return nil, fmt.Errorf("getting receipt %s: %w", id, ErrForbidden)
	}
	return receipt, nil
}

// ListReceipts returns the receipts of ownerID, most recent first
func (s *Service) ListReceipts(ctx context.Context, ownerID string) ([]*Receipt, error) {
	receipts, err := s.db.ListReceipts(ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}

	sortKey := func(r *Receipt) time.Time {
		if r.Date != nil {
			return *r.Date
		}
		return r.CreatedAt
	}
	sort.SliceStable(receipts, func(i, j int) bool {
		return sortKey(receipts[i]).After(sortKey(receipts[j]))
	})
	return receipts, nil
}

// DeleteReceipt removes a receipt and its image
func (s *Service) DeleteReceipt(ctx context.Context, id, ownerID string) error {
	receipt, err := s.GetReceipt(ctx, id, ownerID)
	if err != nil {
		return err
	}

	if err := s.storage.Delete(ctx, receipt.ImageBucket); err != nil {
		// The record still goes; an orphaned image is harmless
		slog.Warn("Failed to delete file", "key", receipt.ImageBucket, "error", err)
	}

	if err := s.db.DeleteReceipt(id); err != nil {
		return fmt.Errorf("deleting receipt from database: %w", err)
	}
	return nil
}

// GetReceiptFile retrieves the image of a receipt and its content type
func (s *Service) GetReceiptFile(ctx context.Context, id, ownerID string) ([]byte, string, error) {
	receipt, err := s.GetReceipt(ctx, id, ownerID)
	if err != nil {
		return nil, "", err
	}

	data, err := s.storage.Get(ctx, receipt.ImageBucket)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt file: %w", err)
	}
	return data, receipt.ContentType, nil
}

// IsNotFound reports whether err means the caller cannot see the receipt
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrForbidden)
}
