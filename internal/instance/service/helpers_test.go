package service_test

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/backoffice/internal/enginetest"
	paymentdomain "github.com/smallbiznis/backoffice/internal/payment/domain"
)

func paymentFor(amount decimal.Decimal) paymentdomain.PaymentRequest {
	return paymentdomain.PaymentRequest{
		Amount:      amount,
		PaymentDate: enginetest.Date(2025, time.January, 16),
	}
}
