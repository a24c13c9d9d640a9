package receipt

import (
	"errors"
	"time"

	"github.com/zombor/expense-tracker/internal/form"
)

var (
	// ErrNotFound is returned when a receipt does not exist
	ErrNotFound = errors.New("receipt not found")

	// ErrForbidden is returned when a receipt belongs to another user
	ErrForbidden = errors.New("receipt belongs to another user")

	// ErrInvalid is returned when receipt fields are rejected
	ErrInvalid = errors.New("invalid receipt")
)

// Receipt represents a stored receipt and the reference to its image
type Receipt struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"owner_id"`
	Date         *time.Time `json:"date"`
	LocationName string     `json:"location_name"`
	Address      string     `json:"address"`
	Items        string     `json:"items"`
	Amount       string     `json:"amount"` // decimal with two places, e.g. "12.50"
	FileName     string     `json:"file_name"`
	ImageBucket  string     `json:"image_bucket"` // storage key of the image
	ImageURL     string     `json:"image_url"`
	ContentType  string     `json:"content_type"`
	IsConfirmed  bool       `json:"is_confirmed"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// FormState returns the form values used to edit or confirm the receipt
func (r *Receipt) FormState() *form.State {
	s := &form.State{
		ID:           r.ID,
		LocationName: r.LocationName,
		Address:      r.Address,
		Items:        r.Items,
		Amount:       r.Amount,
		FileName:     r.FileName,
		ImageBucket:  r.ImageBucket,
		ImageURL:     r.ImageURL,
		IsConfirmed:  r.IsConfirmed,
	}
	if r.Date != nil {
		d := *r.Date
		s.Date = &d
	}
	return s
}
