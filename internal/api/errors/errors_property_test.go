package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/factorhub/marketplace/internal/marketplace"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var allCodes = []string{
	CodeValidationError,
	CodeNotFound,
	CodeUnauthorized,
	CodeForbidden,
	CodeInternalError,
	CodeConflict,
	CodeInvalidTransition,
	CodeAlreadyCommitted,
	CodeDeadlineExpired,
	CodeRateLimited,
}

func genErrorCode() gopter.Gen {
	return gen.IntRange(0, len(allCodes)-1).Map(func(i int) string { return allCodes[i] })
}

// Every error response carries code, message and request_id, and the status
// written matches HTTPStatusCode.
func TestPropertyStructuredErrorResponseFormat(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	genNonEmptyString := gen.AlphaString().SuchThat(func(s string) bool {
		return len(s) > 0
	})
	genRequestID := gen.RegexMatch("[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}")

	properties.Property("error response contains required fields", prop.ForAll(
		func(code, message, requestID string) bool {
			rr := httptest.NewRecorder()
			WriteError(rr, New(code, message).WithRequestID(requestID))

			var response map[string]any
			if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
				t.Logf("decode: %v", err)
				return false
			}
			return response["code"] == code &&
				response["message"] == message &&
				response["request_id"] == requestID
		},
		genErrorCode(),
		genNonEmptyString,
		genRequestID,
	))

	properties.Property("written status matches error code", prop.ForAll(
		func(code string) bool {
			err := New(code, "test message")
			rr := httptest.NewRecorder()
			WriteError(rr, err)
			return rr.Code == err.HTTPStatusCode() && rr.Header().Get("Content-Type") == "application/json"
		},
		genErrorCode(),
	))

	properties.TestingRun(t)
}

func TestFromError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{"validation", fmt.Errorf("%w: bad", marketplace.ErrValidation), CodeValidationError, http.StatusBadRequest},
		{"forbidden", fmt.Errorf("%w: not yours", marketplace.ErrForbidden), CodeForbidden, http.StatusForbidden},
		{"not found", fmt.Errorf("%w: asset", marketplace.ErrNotFound), CodeNotFound, http.StatusNotFound},
		{"invalid transition", fmt.Errorf("%w: posted", marketplace.ErrInvalidTransition), CodeInvalidTransition, http.StatusConflict},
		{"bid immutable", marketplace.ErrBidImmutable, CodeInvalidTransition, http.StatusConflict},
		{"committed", fmt.Errorf("%w: bid x", marketplace.ErrAssetAlreadyCommitted), CodeAlreadyCommitted, http.StatusConflict},
		{"deadline", marketplace.ErrDeadlineExpired, CodeDeadlineExpired, http.StatusGone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr, ok := FromError(tt.err)
			if !ok {
				t.Fatalf("FromError(%v) not mapped", tt.err)
			}
			if apiErr.Code != tt.code {
				t.Errorf("code = %s, want %s", apiErr.Code, tt.code)
			}
			if got := apiErr.HTTPStatusCode(); got != tt.status {
				t.Errorf("status = %d, want %d", got, tt.status)
			}
		})
	}

	if _, ok := FromError(stderrors.New("db down")); ok {
		t.Error("unknown errors must not be mapped")
	}
	if _, ok := FromError(marketplace.ErrAlreadyCompleted); ok {
		t.Error("already completed is not an error response")
	}
	if !IsAlreadyCompleted(fmt.Errorf("%w: paid", marketplace.ErrAlreadyCompleted)) {
		t.Error("IsAlreadyCompleted should match wrapped errors")
	}
}

func TestFromErrorValidationFields(t *testing.T) {
	err := &marketplace.ValidationError{Fields: map[string]string{
		"term_months":         "must be greater than 0",
		"face_value_in_cents": "must be greater than 0",
	}}

	apiErr, ok := FromError(fmt.Errorf("creating asset: %w", err))
	if !ok || apiErr.Code != CodeValidationError {
		t.Fatalf("got %+v, %v", apiErr, ok)
	}
	fields, _ := apiErr.Details["fields"].(ValidationErrors)
	if len(fields) != 2 || fields[0].Field != "face_value_in_cents" {
		t.Errorf("fields = %+v, want sorted field list", fields)
	}
}
