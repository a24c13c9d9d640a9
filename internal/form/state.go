package form

import "time"

// NoFileSelected is the file name shown before a receipt image is attached
const NoFileSelected = "No file selected"

// Action identifies which flow a form was opened for
type Action string

const (
	ActionAdd     Action = "add"
	ActionEdit    Action = "edit"
	ActionConfirm Action = "confirm"
)

// Valid reports whether a is one of the known actions
func (a Action) Valid() bool {
	switch a {
	case ActionAdd, ActionEdit, ActionConfirm:
		return true
	}
	return false
}

// Field names a free-text form field
type Field string

const (
	FieldLocationName Field = "location_name"
	FieldAddress      Field = "address"
	FieldItems        Field = "items"
	FieldAmount       Field = "amount"
)

// File is a newly selected receipt image
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// State holds the values of one receipt form
type State struct {
	ID           string
	LocationName string
	Address      string
	Items        string
	Amount       string // validated by the store, kept as entered
	Date         *time.Time
	FileName     string
	File         *File
	ImageBucket  string
	ImageURL     string
	IsConfirmed  bool
}

// DefaultState returns the empty template used by the add flow
func DefaultState() State {
	return State{FileName: NoFileSelected}
}

// Clone returns a deep copy of s
func (s State) Clone() State {
	out := s
	if s.Date != nil {
		d := *s.Date
		out.Date = &d
	}
	if s.File != nil {
		f := *s.File
		f.Data = append([]byte(nil), s.File.Data...)
		out.File = &f
	}
	return out
}

// HasFile reports whether a file name other than the placeholder is set
func (s State) HasFile() bool {
	return s.FileName != NoFileSelected
}
