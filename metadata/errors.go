package metadata

import "errors"

var (
	// ErrReservedField is returned when registering a field whose name is a query directive.
	ErrReservedField = errors.New("reserved field name")

	// ErrInvalidFieldName is returned for empty or malformed field names.
	ErrInvalidFieldName = errors.New("invalid field name")

	// ErrFieldTypeConflict is returned when re-registering a field with a different type.
	ErrFieldTypeConflict = errors.New("field already registered with a different type")

	// ErrNoExtractor is returned when a field type has no registered extractor.
	ErrNoExtractor = errors.New("no extractor for field type")

	// ErrInvalidValue is returned when a raw value or predicate value cannot be
	// converted to the field's type.
	ErrInvalidValue = errors.New("invalid value")
)
