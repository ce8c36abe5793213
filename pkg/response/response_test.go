package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/pkg/apperr"
)

func handle(method string, data interface{}, err error) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, "/", nil)
	Handle(c, data, err)
	return w
}

func TestHandleMapsErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", apperr.Validation("quantity must be positive"), http.StatusBadRequest, ErrCodeValidationFailed},
		{"not found", apperr.NotFound("order o-1"), http.StatusNotFound, ErrCodeNotFound},
		{"invalid state", apperr.InvalidState("order is FILLED"), http.StatusConflict, ErrCodeInvalidState},
		{"stale", apperr.Stale("version 1 < 2"), http.StatusConflict, ErrCodeStale},
		{"infrastructure", apperr.Infrastructure(errors.New("dial tcp"), "store"), http.StatusServiceUnavailable, ErrCodeUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := handle(http.MethodGet, nil, tt.err)
			assert.Equal(t, tt.status, w.Code)

			var resp Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestHandleStripsSentinelFromMessage(t *testing.T) {
	w := handle(http.MethodGet, nil, apperr.Validation("quantity must be positive"))

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "quantity must be positive", resp.Error.Message)
}

func TestSuccessStatusByMethod(t *testing.T) {
	assert.Equal(t, http.StatusOK, handle(http.MethodGet, "ok", nil).Code)
	assert.Equal(t, http.StatusCreated, handle(http.MethodPost, "ok", nil).Code)
}
