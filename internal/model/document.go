package model

// Document is a FAQ article bound for the vector index. It is the
// payload on the ingestion queue; Metadata follows the same scalar
// rules as citation metadata.
type Document struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
