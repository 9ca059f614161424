// Package httperr maps service errors onto HTTP responses.
package httperr

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a request that is well formed but not allowed in the
	// record's current state, such as an invalid status transition.
	ErrConflict = errors.New("conflict")
)

// ValidationError carries per-field messages.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return e.Message + " (" + strings.Join(parts, "; ") + ")"
}

// Invalid returns a validation error for a single field.
func Invalid(field, msg string) *ValidationError {
	return &ValidationError{Message: msg, Fields: map[string]string{field: msg}}
}

// Validation starts an empty error that callers fill with Add.
func Validation(msg string) *ValidationError {
	return &ValidationError{Message: msg, Fields: map[string]string{}}
}

func (e *ValidationError) Add(field, msg string) {
	e.Fields[field] = msg
}

// OrNil returns nil when no field was added.
func (e *ValidationError) OrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// NotFound wraps ErrNotFound with the missing resource's name and id.
func NotFound(resource string, id interface{}) error {
	return fmt.Errorf("%s %v: %w", resource, id, ErrNotFound)
}

// FromDB converts pgx.ErrNoRows into a NotFound error and unique
// and foreign-key violations into ErrConflict. Other errors pass through.
func FromDB(err error, resource string, id interface{}) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return NotFound(resource, id)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%s already exists: %w", resource, ErrConflict)
		case "23503":
			return fmt.Errorf("%s %v is still referenced: %w", resource, id, ErrConflict)
		}
	}
	return err
}

// Body is the JSON error envelope.
type Body struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// ToHTTP maps err onto an *echo.HTTPError.
func ToHTTP(err error) *echo.HTTPError {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, Body{Message: ve.Message, Errors: ve.Fields})
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, Body{Message: err.Error()})
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, Body{Message: err.Error()})
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, Body{Message: "internal server error"}).SetInternal(err)
	}
}

// Handler is installed as echo's HTTPErrorHandler. It logs 5xx responses and
// always replies with a JSON object carrying a message.
func Handler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		he := ToHTTP(err)
		if he.Code >= http.StatusInternalServerError {
			cause := err
			if he.Internal != nil {
				cause = he.Internal
			}
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(cause).
				Str("request_id", rid).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
		}

		var body interface{}
		switch m := he.Message.(type) {
		case string:
			body = Body{Message: m}
		case error:
			body = Body{Message: m.Error()}
		default:
			body = m
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(he.Code)
		} else {
			err = c.JSON(he.Code, body)
		}
		if err != nil {
			logger.Error().Err(err).Msg("write error response")
		}
	}
}

// IDParam parses a positive integer path parameter.
func IDParam(c echo.Context, name string) (int64, error) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid %s: %q", name, raw))
	}
	return id, nil
}

// QueryID parses an optional positive integer query parameter.
func QueryID(c echo.Context, name string) (*int64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, Invalid(name, "must be a positive integer")
	}
	return &id, nil
}
