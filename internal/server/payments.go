package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/backoffice/internal/payment/domain"
)

type paymentRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	PaymentDate string          `json:"payment_date"`
}

func (r paymentRequest) toDomain() (paymentdomain.PaymentRequest, error) {
	date, err := parseDate("payment_date", r.PaymentDate)
	if err != nil {
		return paymentdomain.PaymentRequest{}, err
	}
	return paymentdomain.PaymentRequest{Amount: r.Amount, PaymentDate: date}, nil
}

func (s *Server) bindPayment(c *gin.Context) (paymentdomain.PaymentRequest, bool) {
	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return paymentdomain.PaymentRequest{}, false
	}
	out, err := req.toDomain()
	if err != nil {
		AbortWithError(c, err)
		return paymentdomain.PaymentRequest{}, false
	}
	return out, true
}

func (s *Server) ApplyPayment(c *gin.Context) {
	req, ok := s.bindPayment(c)
	if !ok {
		return
	}
	res, err := s.paymentSvc.ApplyPayment(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": res})
}

func (s *Server) EditLatestPayment(c *gin.Context) {
	req, ok := s.bindPayment(c)
	if !ok {
		return
	}
	res, err := s.paymentSvc.EditLatestPayment(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": res})
}

func (s *Server) ListPayments(c *gin.Context) {
	items, err := s.paymentSvc.ListPayments(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}
