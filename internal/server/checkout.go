package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	checkoutdomain "github.com/smallbiznis/mercato/internal/checkout/domain"
)

type checkoutLineItem struct {
	Name       string `json:"name"`
	UnitAmount int64  `json:"unit_amount"`
	Quantity   int64  `json:"quantity"`
}

type createCheckoutSessionRequest struct {
	SellerAccountID string             `json:"seller_account_id"`
	BuyerID         string             `json:"buyer_id"`
	Currency        string             `json:"currency"`
	LineItems       []checkoutLineItem `json:"line_items"`
	Metadata        map[string]string  `json:"metadata"`
}

func (s *Server) CreateCheckoutSession(c *gin.Context) {
	var req createCheckoutSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	items := make([]checkoutdomain.LineItem, 0, len(req.LineItems))
	for _, item := range req.LineItems {
		items = append(items, checkoutdomain.LineItem{
			Name:       item.Name,
			UnitAmount: item.UnitAmount,
			Quantity:   item.Quantity,
		})
	}

	session, err := s.checkoutSvc.CreateSession(c.Request.Context(), checkoutdomain.CreateSessionRequest{
		SellerAccountID: req.SellerAccountID,
		BuyerID:         req.BuyerID,
		Currency:        req.Currency,
		LineItems:       items,
		Metadata:        req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, session)
}
