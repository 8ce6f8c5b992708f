package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/smallbiznis/mercato/internal/account/domain"
)

type createAccountRequest struct {
	UserID  string `json:"user_id"`
	Country string `json:"country"`
	Email   string `json:"email"`
}

func (s *Server) CreateAccount(c *gin.Context) {
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	account, err := s.accountSvc.Create(c.Request.Context(), accountdomain.CreateAccountRequest{
		UserID:  req.UserID,
		Country: req.Country,
		Email:   req.Email,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, account)
}

func (s *Server) GetAccount(c *gin.Context) {
	account, err := s.accountSvc.GetByID(c.Request.Context(), accountdomain.GetAccountRequest{
		ID: c.Param("id"),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, account)
}

func (s *Server) ListAccounts(c *gin.Context) {
	chargesEnabled, err := parseOptionalBool(c.Query("charges_enabled"))
	if err != nil {
		AbortWithError(c, newValidationError("charges_enabled", "invalid_bool", "invalid value"))
		return
	}

	accounts, err := s.accountSvc.List(c.Request.Context(), accountdomain.ListAccountsRequest{
		ChargesEnabled: chargesEnabled,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"accounts": accounts})
}

func (s *Server) CreateOnboardingLink(c *gin.Context) {
	link, err := s.accountSvc.OnboardingLink(c.Request.Context(), accountdomain.GetAccountRequest{
		ID: c.Param("id"),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, link)
}
