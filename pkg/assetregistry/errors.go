package assetregistry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error types
var (
	// ErrAssetNotFound indicates an asset was not found (or is soft-deleted where that matters)
	ErrAssetNotFound = errors.New("asset not found")

	// ErrSlugConflict indicates the slug is already claimed by another asset
	ErrSlugConflict = errors.New("slug already in use")

	// ErrValidation indicates malformed or missing input
	ErrValidation = errors.New("validation failed")

	// ErrPolicyRejected indicates the input is well-formed but not allowed by configuration
	ErrPolicyRejected = errors.New("rejected by policy")

	// ErrInvalidRemote indicates a remote URL that cannot be parsed or whose host is not allowed
	ErrInvalidRemote = errors.New("invalid remote url")

	// ErrUpstream indicates the remote hosting API failed
	ErrUpstream = errors.New("upstream request failed")

	// ErrEmptyRepository indicates the target repository has no commits yet
	ErrEmptyRepository = errors.New("repository has no commits")

	// ErrRepositoryNotFound indicates the repository does not exist or is not accessible
	ErrRepositoryNotFound = errors.New("repository not found")

	// ErrFileNotFound indicates no file exists at the requested repository path
	ErrFileNotFound = errors.New("file not found in repository")
)

// ValidationError carries field-level detail for ErrValidation.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError returns an empty ValidationError ready for Add.
func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string]string)}
}

// Add records a problem with field.
func (e *ValidationError) Add(field, msg string) {
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = msg
	}
}

// OrNil returns e when at least one field failed, otherwise nil.
func (e *ValidationError) OrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// PolicyError explains why an allow-list rejected the input.
type PolicyError struct {
	Rule   string
	Value  string
	Reason error
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("%s %q not allowed: %v", e.Rule, e.Value, e.Reason)
}

func (e *PolicyError) Unwrap() error {
	return e.Reason
}

// UpstreamError represents a failure reported by (or while talking to) the remote hosting API.
type UpstreamError struct {
	Op         string
	StatusCode int
	Message    string
	Retryable  bool
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("upstream %s failed with status %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("upstream %s failed: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUpstream}
	}
	return []error{ErrUpstream, e.Err}
}

// AssetError represents an error related to asset operations
type AssetError struct {
	AssetID string
	Op      string
	Err     error
}

func (e *AssetError) Error() string {
	return fmt.Sprintf("asset operation %s failed for asset %s: %v", e.Op, e.AssetID, e.Err)
}

func (e *AssetError) Unwrap() error {
	return e.Err
}
