package response

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TripMate/pkg/errors"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errors.Validation("title", "title is required"), http.StatusBadRequest},
		{errors.InvalidTripID, http.StatusBadRequest},
		{errors.Unauthorized, http.StatusUnauthorized},
		{errors.AccessDenied, http.StatusForbidden},
		{errors.TripNotFound, http.StatusNotFound},
		{errors.ItemNotFound, http.StatusNotFound},
		{errors.TooManyRequests, http.StatusTooManyRequests},
		{errors.TransactionFailed, http.StatusInternalServerError},
		{fmt.Errorf("wrapped: %w", errors.AccessDenied), http.StatusForbidden},
		{fmt.Errorf("dial tcp: refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), tt.err.Error())
	}
}

func decode(t *testing.T, c *app.RequestContext) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(c.Response.Body(), &body))
	return body
}

func TestError_ValidationCarriesField(t *testing.T) {
	c := app.NewContext(0)
	Error(context.Background(), c, errors.Validation("start_time", "end_time must not be earlier than start_time"))

	assert.Equal(t, http.StatusBadRequest, c.Response.StatusCode())
	body := decode(t, c)
	assert.Equal(t, "VALIDATION_ERROR", body.Error.Code)
	assert.Equal(t, "start_time", body.Error.Details["field"])
}

func TestError_InternalErrorsAreMasked(t *testing.T) {
	c := app.NewContext(0)
	Error(context.Background(), c, fmt.Errorf("pq: password authentication failed"))

	assert.Equal(t, http.StatusInternalServerError, c.Response.StatusCode())
	body := decode(t, c)
	assert.Equal(t, "INTERNAL_ERROR", body.Error.Code)
	assert.NotContains(t, body.Error.Message, "password")
}

func TestCreatedAndNoContent(t *testing.T) {
	c := app.NewContext(0)
	Created(context.Background(), c, map[string]string{"id": "1"})
	assert.Equal(t, http.StatusCreated, c.Response.StatusCode())
	assert.JSONEq(t, `{"data":{"id":"1"}}`, string(c.Response.Body()))

	c = app.NewContext(0)
	NoContent(context.Background(), c)
	assert.Equal(t, http.StatusNoContent, c.Response.StatusCode())
}
