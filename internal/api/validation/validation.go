package validation

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	apierrors "github.com/nkkko/verse/internal/api/errors"
)

// MaxBodyBytes bounds request bodies read by ParseAndValidate
const MaxBodyBytes = 64 << 10

// Validator defines the interface for request validation
type Validator interface {
	Validate() error
}

// ParseAndValidate parses a JSON request body and validates it
func ParseAndValidate(r *http.Request, v Validator) error {
	body := http.MaxBytesReader(nil, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apierrors.ValidationError("empty_request_body", "Request body is empty")
		}
		return apierrors.ValidationError("invalid_json", "Invalid JSON format: "+err.Error())
	}

	return v.Validate()
}

// PathID reads a positive integer route parameter
func PathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	if raw == "" {
		return 0, apierrors.ValidationError("missing_"+name, name+" is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apierrors.ValidationError("invalid_"+name, name+" must be a positive integer")
	}
	return id, nil
}

// MaxLength validates that a string is not longer than maxLen characters
func MaxLength(field, value string, maxLen int) error {
	if utf8.RuneCountInString(value) > maxLen {
		return apierrors.ValidationError(
			"max_length_exceeded",
			field+" must be at most "+strconv.Itoa(maxLen)+" characters",
		)
	}
	return nil
}

// MinLength validates that a string is not shorter than minLen characters
func MinLength(field, value string, minLen int) error {
	if utf8.RuneCountInString(value) < minLen {
		return apierrors.ValidationError(
			"min_length_not_met",
			field+" must be at least "+strconv.Itoa(minLen)+" characters",
		)
	}
	return nil
}

// Required validates that a string is not empty
func Required(field, value string) error {
	if value == "" {
		return apierrors.ValidationError(
			"required_field_missing",
			field+" is required",
		)
	}
	return nil
}
