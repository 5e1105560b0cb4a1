package api

import (
	"fmt"
	"io"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
)

const maxBodyBytes = 1 << 20

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg)
}

func writeError(c *echo.Context, status int, errType, msg string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
		},
	})
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(io.LimitReader(r, maxBodyBytes))
	if err := dec.Decode(&out); err != nil {
		if err == io.EOF {
			return out, fmt.Errorf("request body is empty")
		}
		return out, fmt.Errorf("invalid JSON body: %w", err)
	}
	return out, nil
}

func newSummaryID() string {
	return "sum_" + uuid.NewString()
}
