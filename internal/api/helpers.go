package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v5"
)

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg)
}

func writeTooManyRequests(c *echo.Context, msg string) error {
	return writeError(c, http.StatusTooManyRequests, "rate_limit_error", msg)
}

func writeInternal(c *echo.Context, msg string) error {
	return writeError(c, http.StatusInternalServerError, "internal_error", msg)
}

func writeError(c *echo.Context, status int, errType, msg string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
		},
	})
}

func decodeBody[T any](c *echo.Context) (T, error) {
	var v T
	dec := json.NewDecoder(c.Request().Body)
	if err := dec.Decode(&v); err != nil {
		return v, fmt.Errorf("decode request body: %w", err)
	}
	return v, nil
}
