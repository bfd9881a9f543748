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

	"github.com/thaihoc1310/streamvod/internal/apperr"
)

func TestStatusOf(t *testing.T) {
	cases := map[int]error{
		http.StatusBadRequest:          apperr.Validation("op", "bad"),
		http.StatusNotFound:            apperr.NotFound("op", "missing"),
		http.StatusForbidden:           apperr.Authorization("op", "not yours"),
		http.StatusConflict:            apperr.ErrAlreadyCompleted,
		http.StatusBadGateway:          apperr.External("op", "s3 down", errors.New("timeout")),
		http.StatusUnprocessableEntity: apperr.Consistency("op", "unknown video", nil),
		http.StatusInternalServerError: errors.New("boom"),
	}
	for want, err := range cases {
		assert.Equal(t, want, StatusOf(err), err.Error())
	}
}

func TestErrorHidesCause(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Error(c, apperr.External("uploads.initiate", "object store unavailable", errors.New("dial tcp 10.0.0.1:443")))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	var body Body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "object store unavailable", body.Error)
	assert.Equal(t, "EXTERNAL_SERVICE", body.Code)
	assert.NotContains(t, w.Body.String(), "10.0.0.1")
}
