package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	creditdomain "github.com/smallbiznis/loadpass/internal/credit/domain"
)

type paymentCallbackRequest struct {
	CustomerID string `json:"customer_id"`
	PackageID  string `json:"package_id"`
	PaymentID  string `json:"payment_id"`
	OrderID    string `json:"order_id"`
}

func (s *Server) SquarePaymentCallback(c *gin.Context) {
	var req paymentCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError(err))
		return
	}

	paymentID := strings.TrimSpace(req.PaymentID)
	result, err := s.creditSvc.Grant(c.Request.Context(), creditdomain.GrantRequest{
		CustomerID:  req.CustomerID,
		VariationID: req.PackageID,
		PaymentID:   paymentID,
		OrderID:     req.OrderID,
		Source:      creditdomain.SourceCallback,
	})
	if err != nil {
		if errors.Is(err, creditdomain.ErrAlreadyGranted) {
			c.JSON(http.StatusOK, messageResponse{
				Message: fmt.Sprintf("Success: payment %s already processed", paymentID),
			})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.Set(contextHandleKey, result.PackageHandle)
	c.JSON(http.StatusOK, messageResponse{
		Message: fmt.Sprintf("Success: Added %d loads to user %s", result.LoadsGranted, result.UserID),
	})
}

type useLoadRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) UseLoad(c *gin.Context) {
	var req useLoadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError(err))
		return
	}

	result, err := s.creditSvc.Consume(c.Request.Context(), creditdomain.ConsumeRequest{UserID: req.UserID})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, messageResponse{
		Message: fmt.Sprintf("Success: User has %d loads left", result.Balance),
	})
}
