package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"chatio/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"
)

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := zaptest.NewLogger(t)

	tests := []struct {
		err     error
		status  int
		kind    service.Kind
		message string
	}{
		{fmt.Errorf("%w: content is empty", service.ErrValidation), http.StatusBadRequest, service.KindValidation, "invalid input: content is empty"},
		{service.ErrNotParticipant, http.StatusForbidden, service.KindForbidden, service.ErrNotParticipant.Error()},
		{service.ErrConversationNotFound, http.StatusNotFound, service.KindNotFound, service.ErrConversationNotFound.Error()},
		{service.ErrConcurrencyConflict, http.StatusConflict, service.KindConcurrencyConflict, service.ErrConcurrencyConflict.Error()},
		{service.ErrConversationTypeMissing, http.StatusInternalServerError, service.KindConfiguration, "server misconfigured"},
		{errors.New("dial tcp: connection refused"), http.StatusServiceUnavailable, service.KindTransientIO, "temporarily unavailable, retry later"},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			respondError(c, log, tt.err)

			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
			var body struct {
				Error string       `json:"error"`
				Kind  service.Kind `json:"kind"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body.Kind != tt.kind || body.Error != tt.message {
				t.Fatalf("body = %+v", body)
			}
		})
	}
}
