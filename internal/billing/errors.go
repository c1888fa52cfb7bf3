package billing

import (
	"errors"
	"fmt"
)

var (
	// ErrUnparseableLine is returned when the text of a line matches none of the field patterns.
	ErrUnparseableLine = errors.New("unparseable line")
	// ErrUnresolvableLink is returned when a line has no anchor or its target carries no bill id.
	ErrUnresolvableLink = errors.New("unresolvable link")
	// ErrUnrecognizedDocument is returned when a document matches none of the known markup eras.
	ErrUnrecognizedDocument = errors.New("unrecognized document")
)

// LineFailure describes a candidate line that was skipped.
type LineFailure struct {
	Extractor string
	// Index is the position of the line among the candidates of its extractor.
	Index int
	Text  string
	Err   error
}

func (f LineFailure) Error() string {
	return fmt.Sprintf("%s: line %d: %s", f.Extractor, f.Index, f.Err.Error())
}

func (f LineFailure) Unwrap() error {
	return f.Err
}
