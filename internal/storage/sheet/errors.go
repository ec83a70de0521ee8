package sheet

import (
	"fmt"
	"strconv"
)

// LayoutError pinpoints the cell or sheet feature that does not match the
// expected table layout. Row is 1-based as shown by spreadsheet software; 0
// means the problem is not tied to a row.
type LayoutError struct {
	Row    int
	Column string
	Reason string
}

func (e *LayoutError) Error() string {
	switch {
	case e.Row > 0 && e.Column != "":
		return "row " + strconv.Itoa(e.Row) + ", column " + e.Column + ": " + e.Reason
	case e.Row > 0:
		return "row " + strconv.Itoa(e.Row) + ": " + e.Reason
	default:
		return e.Reason
	}
}

// CorruptStoreError is returned when the backing file exists but cannot be
// decoded as the items table.
type CorruptStoreError struct {
	Path string
	Err  error
}

func (e *CorruptStoreError) Error() string {
	return fmt.Sprintf("backing file %s is corrupt: %v", e.Path, e.Err)
}

func (e *CorruptStoreError) Unwrap() error {
	return e.Err
}

// IncompatibleUploadError is returned by Replace when the uploaded workbook
// is unreadable or its layout does not match. The backing file is unchanged.
type IncompatibleUploadError struct {
	Err error
}

func (e *IncompatibleUploadError) Error() string {
	return fmt.Sprintf("uploaded file is incompatible: %v", e.Err)
}

func (e *IncompatibleUploadError) Unwrap() error {
	return e.Err
}
