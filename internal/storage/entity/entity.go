// Package entity defines the item record stored in the spreadsheet.
//
// A Record is one data row of the items sheet. Fields is the raw, untrusted
// user input for a record; Validate turns it into a Candidate that is safe to
// persist. The sheet package owns the on-disk layout, the storage package the
// CRUD semantics.
package entity

import (
	"slices"
	"strconv"
	"time"
)

// Record is one row of the items sheet.
type Record struct {
	ID        int64     `json:"id" jsonschema:"required,description=Unique row identifier allocated as max(id)+1"`
	Name      string    `json:"name" jsonschema:"required,description=Item name; never empty"`
	Category  string    `json:"category" jsonschema:"description=Free-form category; may be empty"`
	Quantity  int64     `json:"quantity" jsonschema:"required,minimum=0,description=Non-negative stock count"`
	UpdatedAt time.Time `json:"updated_at" jsonschema:"required,description=Last modification time (UTC)"`
}

// Clone returns a copy of the record.
func (r *Record) Clone() *Record {
	c := *r
	return &c
}

// Fields returns the record's editable columns as raw input.
func (r *Record) Fields() Fields {
	return Fields{
		Name:     r.Name,
		Category: r.Category,
		Quantity: strconv.FormatInt(r.Quantity, 10),
	}
}

// Apply copies the validated candidate into the record. ID and UpdatedAt are
// left untouched.
func (r *Record) Apply(c Candidate) {
	r.Name = c.Name
	r.Category = c.Category
	r.Quantity = c.Quantity
}

// ChangedFields lists the editable columns that differ between before and
// after, in column order.
func ChangedFields(before, after *Record) []string {
	var out []string
	if before.Name != after.Name {
		out = append(out, "name")
	}
	if before.Category != after.Category {
		out = append(out, "category")
	}
	if before.Quantity != after.Quantity {
		out = append(out, "quantity")
	}
	return out
}

// MaxID returns the largest ID in records, or 0 when empty.
func MaxID(records []Record) int64 {
	var m int64
	for i := range records {
		m = max(m, records[i].ID)
	}
	return m
}

// IndexByID returns the position of id in records, or -1.
func IndexByID(records []Record, id int64) int {
	return slices.IndexFunc(records, func(r Record) bool { return r.ID == id })
}
