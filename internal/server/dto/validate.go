package dto

// Validatable is implemented by every request type decoded by server.Wrap.
type Validatable interface {
	Validate() error
}
