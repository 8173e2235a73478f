package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentType is the closed set of payment methods a transaction can use.
type PaymentType string

const (
	PaymentCash     PaymentType = "CASH"
	PaymentCard     PaymentType = "CARD"
	PaymentTransfer PaymentType = "TRANSFER"
)

// PaymentTypes lists every accepted payment type.
var PaymentTypes = []PaymentType{PaymentCash, PaymentCard, PaymentTransfer}

// ParsePaymentType converts a case-insensitive name into a PaymentType.
func ParsePaymentType(s string) (PaymentType, error) {
	pt := PaymentType(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range PaymentTypes {
		if pt == known {
			return pt, nil
		}
	}
	return "", fmt.Errorf("%w: unknown payment type %q", ErrInvalidInput, s)
}

// Transaction is a single recorded sale attributed to one seller.
type Transaction struct {
	ID              string          `json:"id"`
	SellerID        string          `json:"sellerId"`
	Amount          decimal.Decimal `json:"amount"`
	PaymentType     PaymentType     `json:"paymentType"`
	TransactionDate time.Time       `json:"transactionDate"`
}

// TransactionEvent is published on TopicTransactionRecorded.
type TransactionEvent struct {
	TransactionID   string          `json:"transactionId"`
	SellerID        string          `json:"sellerId"`
	Amount          decimal.Decimal `json:"amount"`
	PaymentType     PaymentType     `json:"paymentType"`
	TransactionDate time.Time       `json:"transactionDate"`
	TraceID         string          `json:"traceId,omitempty"`
}
