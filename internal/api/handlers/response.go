// Package handlers provides HTTP request handlers for the API.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	apierrors "github.com/factorhub/marketplace/internal/api/errors"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	apierrors.WriteJSON(w, status, data)
}

// WriteError writes err with the request's ID.
func WriteError(w http.ResponseWriter, r *http.Request, err *apierrors.APIError) {
	apierrors.WriteErrorWithRequestID(w, err, middleware.GetReqID(r.Context()))
}

// WriteBadRequest writes a 400 Bad Request response.
func WriteBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, apierrors.NewValidationError(message))
}

// WriteUnauthorized writes a 401 Unauthorized response.
func WriteUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, apierrors.NewUnauthorizedError(message))
}

// WriteInternalError writes a 500 Internal Server Error response.
func WriteInternalError(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, apierrors.NewInternalError(message))
}

// alreadyCompletedResponse is the 200 body for a repeated action.
type alreadyCompletedResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// writeServiceError answers with the mapped marketplace error. Anything
// unmapped is logged and reported as a 500 carrying failMsg.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, failMsg string, attrs ...any) {
	if apierrors.IsAlreadyCompleted(err) {
		WriteJSON(w, http.StatusOK, alreadyCompletedResponse{
			Status:  apierrors.StatusAlreadyCompleted,
			Message: err.Error(),
		})
		return
	}
	if apiErr, ok := apierrors.FromError(err); ok {
		WriteError(w, r, apiErr)
		return
	}
	logger.Error(failMsg, append(attrs, "error", err, "request_id", middleware.GetReqID(r.Context()))...)
	WriteInternalError(w, r, failMsg)
}

// decodeBody reads a JSON body into v. It writes the error response itself
// and reports whether to continue. Marketplace inputs are validated by the
// service; see decodeValid for request types checked here.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		WriteBadRequest(w, r, "Invalid request body")
		return false
	}
	return true
}

// decodeValid is decodeBody followed by struct-tag validation.
func decodeValid(w http.ResponseWriter, r *http.Request, v any) bool {
	if !decodeBody(w, r, v) {
		return false
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			WriteBadRequest(w, r, "Invalid request body")
			return false
		}
		var fields apierrors.ValidationErrors
		for _, fe := range verrs {
			fields.Add(jsonFieldName(fe), fieldMessage(fe))
		}
		WriteError(w, r, fields.ToAPIError())
		return false
	}
	return true
}

func jsonFieldName(fe validator.FieldError) string {
	if fe.Field() != "" {
		return fe.Field()
	}
	return fe.StructField()
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "is too short (min " + fe.Param() + ")"
	case "oneof":
		return "must be one of " + fe.Param()
	case "dive":
		return "contains an invalid value"
	default:
		return "is invalid (" + fe.Tag() + ")"
	}
}
