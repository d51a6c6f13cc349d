package document

import "fmt"

// RangeError is returned for a page index outside [0, Count).
type RangeError struct {
	Page  int
	Count int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("page %d out of range (document has %d pages)", e.Page, e.Count)
}

// OpenError means the file exists but could not be parsed as a document.
type OpenError struct {
	Path string
	Err  error
}

func (e *OpenError) Error() string { return fmt.Sprintf("failed to open document: %v", e.Err) }

func (e *OpenError) Unwrap() error { return e.Err }
