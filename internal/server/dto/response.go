package dto

// HealthResponse is a response from the health check endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ColumnResponse describes one column of the items sheet.
type ColumnResponse struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required,omitempty"`
	Description string `json:"description,omitempty"`
}

// SchemaResponse describes the expected spreadsheet layout.
type SchemaResponse struct {
	Sheet   string           `json:"sheet"`
	Columns []ColumnResponse `json:"columns"`
}

// ItemResponse is one record.
type ItemResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Category  string `json:"category"`
	Quantity  int64  `json:"quantity"`
	UpdatedAt string `json:"updated_at"`
}

// ListItemsResponse is the result of a list or search.
type ListItemsResponse struct {
	Items []ItemResponse `json:"items"`
	Total int            `json:"total"`
}

// DeleteItemResponse acknowledges a deletion.
type DeleteItemResponse struct {
	OK bool `json:"ok"`
}

// UploadResponse is returned after the table was replaced by an upload.
type UploadResponse struct {
	Rows int `json:"rows"`
}

// AuditEntryResponse is one audit log entry.
type AuditEntryResponse struct {
	ID            string        `json:"id"`
	Time          string        `json:"ts"`
	Action        string        `json:"action"`
	RecordID      int64         `json:"record_id,omitempty"`
	Name          string        `json:"name,omitempty"`
	ChangedFields []string      `json:"changed_fields,omitempty"`
	Before        *ItemResponse `json:"before,omitempty"`
	After         *ItemResponse `json:"after,omitempty"`
	Rows          int           `json:"rows,omitempty"`
}

// ListAuditResponse is the latest audit entries, newest first.
type ListAuditResponse struct {
	Entries []AuditEntryResponse `json:"entries"`
}
