package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	catalogdomain "github.com/smallbiznis/loadpass/internal/catalog/domain"
)

type packageResponse struct {
	Handle            string `json:"handle"`
	Name              string `json:"name"`
	SquareVariationID string `json:"square_variation_id"`
	Price             int64  `json:"price"`
	Currency          string `json:"currency"`
	UserReceivedLoads int64  `json:"user_received_loads"`
}

func newPackageResponse(p catalogdomain.Package) packageResponse {
	return packageResponse{
		Handle:            p.Handle,
		Name:              p.Name,
		SquareVariationID: p.SquareVariationID,
		Price:             p.Price,
		Currency:          p.Currency,
		UserReceivedLoads: p.UserReceivedLoads,
	}
}

func (s *Server) ListPackages(c *gin.Context) {
	packages, err := s.catalogSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := make([]packageResponse, 0, len(packages))
	for _, p := range packages {
		resp = append(resp, newPackageResponse(p))
	}
	c.JSON(http.StatusOK, gin.H{"packages": resp})
}
