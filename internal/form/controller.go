package form

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var (
	// ErrSubmitInProgress is returned when Submit is called while another submission is in flight
	ErrSubmitInProgress = errors.New("submission already in progress")

	// ErrIncomplete is returned when Submit is called on a form that cannot be submitted
	ErrIncomplete = errors.New("form is incomplete")

	// ErrReceiptRequired is returned when an edit or confirm form is opened without a receipt
	ErrReceiptRequired = errors.New("receipt is required for edit and confirm")

	// ErrFileNotAllowed is returned when a file is attached outside the add flow
	ErrFileNotAllowed = errors.New("files can only be attached when adding a receipt")
)

// SubmitError wraps whatever the store or auth collaborator reported during a submission
type SubmitError struct {
	Action Action
	Err    error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("submitting %s: %v", e.Action, e.Err)
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

// ReceiptUpdate carries the fields written by the edit and confirm flows
type ReceiptUpdate struct {
	ID           string
	OwnerID      string
	Date         time.Time
	LocationName string
	Address      string
	Items        string
	Amount       string
	ImageBucket  string
	Confirmed    bool
}

// AuthProvider supplies the identifier of the authenticated user
type AuthProvider interface {
	CurrentUserID(ctx context.Context) (string, error)
}

// ReceiptStore persists receipt images and receipt fields
type ReceiptStore interface {
	// UploadReceiptImage stores the image and creates its receipt record
	UploadReceiptImage(ctx context.Context, file File, ownerID string) error

	// UpdateReceipt overwrites the fields of an existing owned receipt
	UpdateReceipt(ctx context.Context, update ReceiptUpdate) error
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Callbacks are notified about the outcome of a submission. Nil callbacks are skipped.
type Callbacks struct {
	OnError       func(Action)
	OnSuccess     func(Action)
	OnCloseDialog func()
}

// Controller drives one receipt form from initialization to submission
type Controller struct {
	auth       AuthProvider
	store      ReceiptStore
	callbacks  Callbacks
	timeSource TimeSource

	mu         sync.Mutex
	action     Action
	state      State
	submitting bool
}

// NewController creates a Controller for action. existing is copied for edit and confirm and ignored for add.
func NewController(action Action, existing *State, auth AuthProvider, store ReceiptStore, callbacks Callbacks) *Controller {
	return NewControllerWithClock(action, existing, auth, store, callbacks, defaultTimeSource{})
}

// NewControllerWithClock creates a Controller with a custom time source for testing.
// An unknown action falls back to add.
func NewControllerWithClock(action Action, existing *State, auth AuthProvider, store ReceiptStore, callbacks Callbacks, timeSrc TimeSource) *Controller {
	if !action.Valid() {
		action = ActionAdd
	}
	c := &Controller{
		auth:       auth,
		store:      store,
		callbacks:  callbacks,
		timeSource: timeSrc,
		action:     action,
		state:      DefaultState(),
	}
	if action != ActionAdd && existing != nil {
		c.state = existing.Clone()
	}
	return c
}

// Initialize resets the form whenever it becomes visible or its target changes.
// The previous state is discarded entirely.
func (c *Controller) Initialize(action Action, existing *State, visible bool) error {
	if !action.Valid() {
		return fmt.Errorf("unknown action %q", action)
	}
	if !visible {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.submitting {
		return ErrSubmitInProgress
	}
	if action == ActionAdd {
		c.action = action
		c.state = DefaultState()
		return nil
	}
	if existing == nil {
		return ErrReceiptRequired
	}
	c.action = action
	c.state = existing.Clone()
	return nil
}

// SetField replaces a single free-text field
func (c *Controller) SetField(field Field, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch field {
	case FieldLocationName:
		c.state.LocationName = value
	case FieldAddress:
		c.state.Address = value
	case FieldItems:
		c.state.Items = value
	case FieldAmount:
		c.state.Amount = value
	default:
		return fmt.Errorf("unknown field %q", field)
	}
	return nil
}

// SetDate replaces the receipt date. Nil clears it.
func (c *Controller) SetDate(date *time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if date == nil {
		c.state.Date = nil
		return
	}
	d := *date
	c.state.Date = &d
}

// AttachFile sets the selected image and its display name together
func (c *Controller) AttachFile(file File) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.action != ActionAdd {
		return ErrFileNotAllowed
	}
	f := file
	f.Data = append([]byte(nil), file.Data...)
	c.state.FileName = file.Name
	c.state.File = &f
	return nil
}

// CanSubmit reports whether the submit control should be enabled
func (c *Controller) CanSubmit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canSubmitLocked()
}

func (c *Controller) canSubmitLocked() bool {
	if c.submitting {
		return false
	}
	s := c.state
	if c.action == ActionAdd {
		return s.HasFile() && s.File != nil
	}
	// The filename check applies here too; it carries the name copied from the stored receipt.
	return s.HasFile() &&
		s.Date != nil &&
		!s.Date.After(c.timeSource.Now()) &&
		filled(s.LocationName) &&
		filled(s.Address) &&
		filled(s.Items) &&
		filled(s.Amount)
}

func filled(v string) bool {
	return strings.TrimSpace(v) != ""
}

// Submit sends the form to the store. Success and failure both close the form.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	if c.submitting {
		c.mu.Unlock()
		return ErrSubmitInProgress
	}
	if !c.canSubmitLocked() {
		c.mu.Unlock()
		return ErrIncomplete
	}
	c.submitting = true
	action := c.action
	state := c.state.Clone()
	c.mu.Unlock()

	err := c.send(ctx, action, state)
	if err != nil {
		c.notify(c.callbacks.OnError, action)
	} else {
		c.notify(c.callbacks.OnSuccess, action)
	}
	c.close()

	if err != nil {
		return &SubmitError{Action: action, Err: err}
	}
	return nil
}

func (c *Controller) send(ctx context.Context, action Action, state State) error {
	ownerID, err := c.auth.CurrentUserID(ctx)
	if err != nil {
		return fmt.Errorf("resolving current user: %w", err)
	}

	if action == ActionAdd {
		return c.store.UploadReceiptImage(ctx, *state.File, ownerID)
	}

	// Edit and confirm both mark the receipt as verified; no image re-upload here.
	return c.store.UpdateReceipt(ctx, ReceiptUpdate{
		ID:           state.ID,
		OwnerID:      ownerID,
		Date:         *state.Date,
		LocationName: state.LocationName,
		Address:      state.Address,
		Items:        state.Items,
		Amount:       state.Amount,
		ImageBucket:  state.ImageBucket,
		Confirmed:    true,
	})
}

func (c *Controller) notify(fn func(Action), action Action) {
	if fn != nil {
		fn(action)
	}
}

func (c *Controller) close() {
	c.mu.Lock()
	c.submitting = false
	c.mu.Unlock()

	if c.callbacks.OnCloseDialog != nil {
		c.callbacks.OnCloseDialog()
	}
}

// State returns a copy of the current form values
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// Action returns the flow the form is currently set up for
func (c *Controller) Action() Action {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.action
}

// IsSubmitting reports whether a submission is in flight
func (c *Controller) IsSubmitting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitting
}

// Title returns the heading for the current action
func (c *Controller) Title() string {
	switch c.Action() {
	case ActionEdit:
		return "Edit Expense"
	case ActionConfirm:
		return "Confirm Expense"
	default:
		return "Add Expense"
	}
}

// SubmitLabel returns the caption of the submit control
func (c *Controller) SubmitLabel() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	confirm := c.action == ActionConfirm
	switch {
	case c.submitting && confirm:
		return "Confirming..."
	case c.submitting:
		return "Submitting..."
	case confirm:
		return "Confirm"
	default:
		return "Submit"
	}
}
