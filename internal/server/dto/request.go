package dto

import (
	"bytes"
	"encoding/json"
	"errors"
)

// MaxAuditLimit caps the number of audit entries returned at once.
const MaxAuditLimit = 1000

// Quantity is a quantity as sent by a client: either a JSON number or a
// string typed in a form. Parsing and range checks happen during record
// validation so that both forms yield the same error.
type Quantity string

// UnmarshalJSON implements json.Unmarshaler.
func (q *Quantity) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*q = ""
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*q = Quantity(s)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return errors.New("quantity must be a number or a string")
		}
		*q = Quantity(n.String())
		return nil
	}
}

// HealthRequest is a request to check system health.
type HealthRequest struct{}

// Validate validates the health request (always valid).
func (r *HealthRequest) Validate() error {
	return nil
}

// SchemaRequest is a request for the table's column layout.
type SchemaRequest struct{}

// Validate validates the schema request (always valid).
func (r *SchemaRequest) Validate() error {
	return nil
}

// ListItemsRequest is a request to list or search items.
type ListItemsRequest struct {
	Query string `query:"q"`
}

// Validate validates the list items request fields.
func (r *ListItemsRequest) Validate() error {
	return nil
}

// GetItemRequest is a request to fetch one item.
type GetItemRequest struct {
	ID int64 `path:"id" json:"-"`
}

// Validate validates the get item request fields.
func (r *GetItemRequest) Validate() error {
	return validateID(r.ID)
}

// CreateItemRequest is a request to add an item.
type CreateItemRequest struct {
	Name     string   `json:"name"`
	Category string   `json:"category"`
	Quantity Quantity `json:"quantity"`
}

// Validate validates the create item request fields. Content rules are
// enforced by the record validator.
func (r *CreateItemRequest) Validate() error {
	return nil
}

// UpdateItemRequest is a request to edit an item. Omitted fields are kept.
type UpdateItemRequest struct {
	ID       int64     `path:"id" json:"-"`
	Name     *string   `json:"name,omitempty"`
	Category *string   `json:"category,omitempty"`
	Quantity *Quantity `json:"quantity,omitempty"`
}

// Validate validates the update item request fields.
func (r *UpdateItemRequest) Validate() error {
	return validateID(r.ID)
}

// DeleteItemRequest is a request to delete an item.
type DeleteItemRequest struct {
	ID int64 `path:"id" json:"-"`
}

// Validate validates the delete item request fields.
func (r *DeleteItemRequest) Validate() error {
	return validateID(r.ID)
}

// ListAuditRequest is a request for the latest audit entries.
type ListAuditRequest struct {
	Limit int `query:"limit"`
}

// Validate validates the audit request fields.
func (r *ListAuditRequest) Validate() error {
	if r.Limit < 0 || r.Limit > MaxAuditLimit {
		return InvalidField("limit", "limit must be between 0 and 1000")
	}
	return nil
}

func validateID(id int64) error {
	if id <= 0 {
		return InvalidFormat("id", "must be a positive integer")
	}
	return nil
}
