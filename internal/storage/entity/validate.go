// Validates raw item input before it reaches the store.

package entity

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Fields is untrusted input for a record, as typed by a user.
type Fields struct {
	Name     string
	Category string
	Quantity string
}

// Patch is a partial update. A nil field keeps the current value.
type Patch struct {
	Name     *string
	Category *string
	Quantity *string
}

// Merge overlays the non-nil patch fields on f.
func (p *Patch) Merge(f Fields) Fields {
	if p.Name != nil {
		f.Name = *p.Name
	}
	if p.Category != nil {
		f.Category = *p.Category
	}
	if p.Quantity != nil {
		f.Quantity = *p.Quantity
	}
	return f
}

// Candidate is a validated set of editable fields.
//
// Text fields are capped at the number of characters an xlsx cell holds.
type Candidate struct {
	Name     string `validate:"required,max=32767"`
	Category string `validate:"max=32767"`
	Quantity int64  `validate:"gte=0"`
}

// ValidationError reports the first field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate trims f and converts it into a Candidate.
//
// The name is checked first. An empty quantity means 0. A quantity that is not a base-10 integer or is
// negative fails with the same message.
func Validate(f Fields) (Candidate, error) {
	c := Candidate{
		Name:     strings.TrimSpace(f.Name),
		Category: strings.TrimSpace(f.Category),
	}
	if err := validate.Var(c.Name, "required"); err != nil {
		return Candidate{}, &ValidationError{Field: "name", Message: "name required"}
	}
	if q := strings.TrimSpace(f.Quantity); q != "" {
		n, err := strconv.ParseInt(q, 10, 64)
		if err != nil {
			return Candidate{}, &ValidationError{Field: "quantity", Message: "quantity must be >= 0"}
		}
		c.Quantity = n
	}
	if err := validate.Struct(&c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return Candidate{}, toValidationError(verrs[0])
		}
		return Candidate{}, err
	}
	return c, nil
}

func toValidationError(fe validator.FieldError) *ValidationError {
	field := strings.ToLower(fe.Field())
	switch {
	case field == "name" && fe.Tag() == "required":
		return &ValidationError{Field: field, Message: "name required"}
	case field == "quantity":
		return &ValidationError{Field: field, Message: "quantity must be >= 0"}
	case fe.Tag() == "max":
		return &ValidationError{Field: field, Message: field + " must be at most " + fe.Param() + " characters"}
	default:
		return &ValidationError{Field: field, Message: field + " is invalid"}
	}
}
