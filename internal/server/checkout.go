package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	catalogdomain "github.com/smallbiznis/loadpass/internal/catalog/domain"
	checkoutdomain "github.com/smallbiznis/loadpass/internal/checkout/domain"
)

type createCheckoutLinkRequest struct {
	Handle string `json:"handle"`
}

type createCheckoutLinkResponse struct {
	URL string `json:"url"`
}

func (s *Server) CreateCheckoutLink(c *gin.Context) {
	var req createCheckoutLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError(err))
		return
	}

	handle := strings.TrimSpace(req.Handle)
	c.Set(contextHandleKey, handle)

	result, err := s.checkoutSvc.Issue(c.Request.Context(), checkoutdomain.IssueRequest{
		UserID: c.GetString(contextUserIDKey),
		Handle: handle,
	})
	if err != nil {
		if errors.Is(err, catalogdomain.ErrPackageNotFound) {
			err = withMessage(err, "Error: no variation found for handle: %s", handle)
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, createCheckoutLinkResponse{URL: result.URL})
}
