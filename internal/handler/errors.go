package handler

import (
	"net/http"

	"chatio/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var kindStatus = map[service.Kind]int{
	service.KindValidation:          http.StatusBadRequest,
	service.KindForbidden:           http.StatusForbidden,
	service.KindNotFound:            http.StatusNotFound,
	service.KindConcurrencyConflict: http.StatusConflict,
	service.KindConfiguration:       http.StatusInternalServerError,
	service.KindTransientIO:         http.StatusServiceUnavailable,
}

// errorBody is the user-visible failure payload shared by HTTP and socket replies.
type errorBody struct {
	Kind    service.Kind `json:"kind"`
	Message string       `json:"message"`
	Event   string       `json:"event,omitempty"`
}

// describe classifies err and hides the text of infrastructure failures.
func describe(log *zap.Logger, err error) errorBody {
	kind := service.KindOf(err)
	msg := err.Error()
	switch kind {
	case service.KindTransientIO:
		log.Warn("transient failure", zap.Error(err))
		msg = "temporarily unavailable, retry later"
	case service.KindConfiguration:
		log.Error("configuration problem", zap.Error(err))
		msg = "server misconfigured"
	}
	return errorBody{Kind: kind, Message: msg}
}

func respondError(c *gin.Context, log *zap.Logger, err error) {
	body := describe(log, err)
	c.JSON(kindStatus[body.Kind], gin.H{"error": body.Message, "kind": body.Kind})
}
