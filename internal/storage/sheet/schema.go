// Derives the items sheet layout from the entity.Record struct tags.

package sheet

import (
	"fmt"
	"reflect"

	"github.com/hirot01/excel-db-app/internal/storage/entity"
	"github.com/invopop/jsonschema"
)

// SheetName is the worksheet holding the table.
const SheetName = "items"

// Column types reported by Schema.
const (
	ColumnTypeInteger   = "integer"
	ColumnTypeText      = "text"
	ColumnTypeTimestamp = "timestamp"
)

// Column describes one column of the items sheet.
type Column struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required,omitempty"`
	Description string `json:"description,omitempty"`
}

var columns = mustSchema[entity.Record]()

// Schema returns the expected header of the items sheet, in order.
func Schema() []Column {
	out := make([]Column, len(columns))
	copy(out, columns)
	return out
}

// Headers returns the column names in sheet order.
func Headers() []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = c.Name
	}
	return out
}

func mustSchema[T any]() []Column {
	cols, err := schemaFromType[T]()
	if err != nil {
		panic(err)
	}
	return cols
}

func schemaFromType[T any]() ([]Column, error) {
	t := reflect.TypeFor[T]()
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("type must be a struct, got %s", t.Kind())
	}
	r := jsonschema.Reflector{Anonymous: true, DoNotReference: true, RequiredFromJSONSchemaTags: true}
	schema := r.ReflectFromType(t)

	required := make(map[string]bool, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = true
	}
	var cols []Column
	for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
		cols = append(cols, Column{
			Name:        pair.Key,
			Type:        columnType(pair.Value),
			Required:    required[pair.Key],
			Description: pair.Value.Description,
		})
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("type %s has no exported columns", t)
	}
	return cols, nil
}

func columnType(prop *jsonschema.Schema) string {
	switch {
	case prop.Type == "integer":
		return ColumnTypeInteger
	case prop.Type == "string" && prop.Format == "date-time":
		return ColumnTypeTimestamp
	default:
		return ColumnTypeText
	}
}
