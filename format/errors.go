package format

import "errors"

var (
	// ErrUnknownFormat is returned when no handler matches a file.
	ErrUnknownFormat = errors.New("unknown document format")

	// ErrNoText is returned when a file yields no extractable text.
	ErrNoText = errors.New("no extractable text")

	// ErrInvalidRecord is returned for a record that is not a JSON object.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrMultipleRecords is returned by Parse for a file holding several documents.
	ErrMultipleRecords = errors.New("file holds several records")
)
