package domain

import "time"

// Seller is a merchant that owns transactions in the ledger.
type Seller struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	ContactInfo      string    `json:"contactInfo"`
	RegistrationDate time.Time `json:"registrationDate"`
}

// SellerUpdate carries a partial update. Nil or blank fields are left as is.
type SellerUpdate struct {
	ID          string
	Name        *string
	ContactInfo *string
}

// SellerEvent is published on the seller lifecycle topics.
type SellerEvent struct {
	SellerID string `json:"sellerId"`
	Name     string `json:"name,omitempty"`
	TraceID  string `json:"traceId,omitempty"`
}

// Period is the outcome of a best-period analysis: the earliest maximal
// run of a seller's transactions that fits inside the requested duration.
type Period struct {
	PeriodStart      time.Time `json:"periodStart"`
	PeriodEnd        time.Time `json:"periodEnd"`
	TransactionCount int       `json:"transactionCount"`
}
