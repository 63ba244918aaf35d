package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/typeflow/typeflow/internal/api/response"
	"github.com/typeflow/typeflow/internal/security"
)

// RequestValidationConfig holds configuration for request validation middleware
type RequestValidationConfig struct {
	// MaxBodySize is the maximum request body size in bytes (default: 1MB)
	MaxBodySize int64
	// ValidateJSON enables JSON validation for JSON content types
	ValidateJSON bool
	// SanitizeStrings enables automatic string sanitization
	SanitizeStrings bool
	// BlockSQLInjection blocks requests containing SQL injection patterns
	BlockSQLInjection bool
	// BlockXSSPatterns blocks requests containing XSS patterns
	BlockXSSPatterns bool
}

// DefaultRequestValidationConfig returns a secure default configuration
func DefaultRequestValidationConfig() RequestValidationConfig {
	return RequestValidationConfig{
		MaxBodySize:       1024 * 1024, // 1MB
		ValidateJSON:      true,
		SanitizeStrings:   true,
		BlockSQLInjection: false, // Parameterized queries are the primary defense
		BlockXSSPatterns:  true,
	}
}

// RequestValidation validates incoming HTTP requests
func RequestValidation(cfg RequestValidationConfig) func(next http.Handler) http.Handler {
	validator := security.NewInputValidator()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Only validate request bodies for methods that typically have them
			if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
				if err := validateRequestBody(w, r, cfg, validator); err != nil {
					return // Response already sent
				}
			}

			// Validate query parameters
			if cfg.BlockXSSPatterns || cfg.BlockSQLInjection {
				for key, values := range r.URL.Query() {
					for _, value := range values {
						if cfg.BlockXSSPatterns && security.ContainsXSSPattern(value) {
							respondValidationError(w, "query parameter contains invalid content", key)
							return
						}
						if cfg.BlockSQLInjection && security.ContainsSQLInjection(value) {
							respondValidationError(w, "query parameter contains invalid content", key)
							return
						}
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func validateRequestBody(w http.ResponseWriter, r *http.Request, cfg RequestValidationConfig, validator *security.InputValidator) error {
	// Check content length
	if r.ContentLength > cfg.MaxBodySize {
		respondValidationError(w, "request body too large", "body")
		return errValidationFailed
	}

	// Skip if no body
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}

	// Read the body with a limit
	body, err := io.ReadAll(io.LimitReader(r.Body, cfg.MaxBodySize+1))
	if err != nil {
		respondValidationError(w, "failed to read request body", "body")
		return err
	}

	// Check if body exceeded limit
	if int64(len(body)) > cfg.MaxBodySize {
		respondValidationError(w, "request body too large", "body")
		return errValidationFailed
	}

	// Replace body for downstream handlers
	r.Body = io.NopCloser(bytes.NewReader(body))

	// Validate JSON if content type indicates JSON
	contentType := r.Header.Get("Content-Type")
	if cfg.ValidateJSON && strings.Contains(contentType, "application/json") {
		if err := validator.ValidateJSON(body); err != nil {
			if vErr, ok := err.(*security.ValidationError); ok {
				respondValidationError(w, vErr.Message, vErr.Field)
			} else {
				respondValidationError(w, "invalid JSON", "body")
			}
			return err
		}

		// Check for XSS patterns in JSON values
		if cfg.BlockXSSPatterns {
			if containsXSSInJSON(body) {
				respondValidationError(w, "request body contains invalid content", "body")
				return errValidationFailed
			}
		}
	}

	return nil
}

// containsXSSInJSON recursively checks JSON values for XSS patterns
func containsXSSInJSON(data []byte) bool {
	var obj any
	if err := json.Unmarshal(data, &obj); err != nil {
		return false
	}
	return containsXSSInValue(obj)
}

func containsXSSInValue(v any) bool {
	switch val := v.(type) {
	case string:
		return security.ContainsXSSPattern(val)
	case map[string]any:
		for _, value := range val {
			if containsXSSInValue(value) {
				return true
			}
		}
	case []any:
		for _, item := range val {
			if containsXSSInValue(item) {
				return true
			}
		}
	}
	return false
}

var errValidationFailed = &validationError{message: "validation failed"}

type validationError struct {
	message string
}

func (e *validationError) Error() string {
	return e.message
}

func respondValidationError(w http.ResponseWriter, message, field string) {
	details := map[string]string{field: message}
	_ = response.ValidationError(w, message, details)
}

// ValidateUUID is a middleware that validates UUID path parameters
func ValidateUUID(paramNames ...string) func(next http.Handler) http.Handler {
	validator := security.NewInputValidator()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Extract path parameters from chi context
			// This uses chi's URL param extraction
			for _, paramName := range paramNames {
				paramValue := extractPathParam(r, paramName)
				if paramValue != "" {
					if err := validator.ValidateUUID(paramValue, paramName); err != nil {
						if vErr, ok := err.(*security.ValidationError); ok {
							respondValidationError(w, vErr.Message, vErr.Field)
						} else {
							respondValidationError(w, "invalid UUID format", paramName)
						}
						return
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractPathParam extracts a path parameter from the request via chi's
// route context.
func extractPathParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// SanitizeQueryParams sanitizes query parameters to remove potential injection vectors
func SanitizeQueryParams() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Create a copy of query values
			query := r.URL.Query()
			sanitized := make(map[string][]string)

			for key, values := range query {
				sanitizedKey := security.SanitizeString(key)
				var sanitizedValues []string
				for _, v := range values {
					sanitizedValues = append(sanitizedValues, security.SanitizeSearchQuery(v))
				}
				sanitized[sanitizedKey] = sanitizedValues
			}

			// Update the request URL with sanitized query
			r.URL.RawQuery = encodeQuery(sanitized)

			next.ServeHTTP(w, r)
		})
	}
}

func encodeQuery(values map[string][]string) string {
	var parts []string
	for key, vals := range values {
		for _, val := range vals {
			parts = append(parts, key+"="+val)
		}
	}
	return strings.Join(parts, "&")
}
