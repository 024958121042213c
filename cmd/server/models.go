package main

import (
	"encoding/json"

	"github.com/upreach/ruleengine/rules"
)

// API request and response models.

// ExecuteRequest asks for one rule evaluation at an exact document
// version. Version selection is deliberately the caller's job; the
// service holds no "current version" state.
type ExecuteRequest struct {
	Rule    string         `json:"rule"`
	Version string         `json:"version"`
	Input   map[string]any `json:"input"`
}

// ExecuteResponse wraps the engine decision with audit identifiers.
type ExecuteResponse struct {
	DecisionID     string          `json:"decision_id"`
	Rule           string          `json:"rule"`
	Decision       *rules.Decision `json:"decision"`
	EvaluationTime string          `json:"evaluation_time"`
}

// ValidateRequest carries a raw rule document for offline validation.
// RawMessage keeps the document bytes untouched for the validator.
type ValidateRequest struct {
	Document json.RawMessage `json:"document"`
}

// ValidateResponse lists every issue found; Valid is true only when
// Issues is empty.
type ValidateResponse struct {
	Valid  bool          `json:"valid"`
	Issues []rules.Issue `json:"issues"`
}

// VersionsResponse lists the stored document versions defining a rule.
type VersionsResponse struct {
	Rule     string   `json:"rule"`
	Versions []string `json:"versions"`
}

// UploadDocumentRequest carries a new document version to store.
type UploadDocumentRequest struct {
	Document json.RawMessage `json:"document"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
