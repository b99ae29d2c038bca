package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 1 << 20

type webhookResponse struct {
	Status  string `json:"status"`
	Outcome string `json:"outcome"`
}

func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		AbortWithError(c, invalidRequestError(err))
		return
	}

	result, err := s.paymentSvc.IngestWebhook(c.Request.Context(), provider, payload, c.Request.Header)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, webhookResponse{Status: "ok", Outcome: result.Outcome})
}
