package storage

import "strconv"

// NotFoundError is returned when no record has the requested id.
type NotFoundError struct {
	ID int64
}

func (e *NotFoundError) Error() string {
	return "record " + strconv.FormatInt(e.ID, 10) + " not found"
}
