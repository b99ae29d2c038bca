package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	customerdomain "github.com/smallbiznis/loadpass/internal/customer/domain"
)

// createCustomerRequest is the database webhook envelope sent when a user signs up.
type createCustomerRequest struct {
	Record struct {
		UserID string `json:"user_id"`
		Email  string `json:"email"`
	} `json:"record"`
}

func (s *Server) CreateSquareCustomer(c *gin.Context) {
	var req createCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError(err))
		return
	}

	customer, err := s.customerSvc.Provision(c.Request.Context(), customerdomain.ProvisionRequest{
		UserID: req.Record.UserID,
		Email:  req.Record.Email,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, customer)
}
