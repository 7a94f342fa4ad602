package disk

import "errors"

var (
	// ErrMalformedLine is returned when a recognised geometry record cannot be parsed
	ErrMalformedLine = errors.New("malformed geometry line")

	// ErrMissingRecord is returned when a required record is absent
	ErrMissingRecord = errors.New("missing geometry record")

	// ErrUnsupportedReport is returned when a partitioning report cannot be converted
	ErrUnsupportedReport = errors.New("unsupported partition report")
)
