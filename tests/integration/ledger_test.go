//go:build integration
// +build integration

// Package integration provides end-to-end tests against a running Kestrel.
//
// These tests walk the full ledger path:
//
//	Seller → Transactions → Aggregation / Best Period
//
// Run with: KESTREL_TEST_URL=http://localhost:8080 go test -tags=integration -v ./tests/integration/...
//
// Every test creates its own sellers, so the target may already hold data.
// Range queries are bounded to the last few minutes to keep older sales out.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL string
}

func getTestConfig(t *testing.T) TestConfig {
	t.Helper()

	baseURL := os.Getenv("KESTREL_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		t.Skipf("kestrel not reachable at %s: %v", baseURL, err)
	}
	resp.Body.Close()

	return TestConfig{BaseURL: baseURL}
}

// ============================================================================
// API Types (matching Kestrel's API contract)
// ============================================================================

type Seller struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	ContactInfo      string    `json:"contactInfo"`
	RegistrationDate time.Time `json:"registrationDate"`
}

type Transaction struct {
	ID              string      `json:"id"`
	SellerID        string      `json:"sellerId"`
	Amount          json.Number `json:"amount"`
	PaymentType     string      `json:"paymentType"`
	TransactionDate time.Time   `json:"transactionDate"`
}

type SellerPage struct {
	Content       []Seller `json:"content"`
	TotalElements int64    `json:"totalElements"`
}

type Period struct {
	PeriodStart      time.Time `json:"periodStart"`
	PeriodEnd        time.Time `json:"periodEnd"`
	TransactionCount int       `json:"transactionCount"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	TraceID string `json:"traceId"`
}

// ============================================================================
// Test Helper Functions
// ============================================================================

func call(t *testing.T, config TestConfig, method, path string, body any, out any) int {
	t.Helper()

	var reader io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, config.BaseURL+path, reader)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, string(respBody))
		}
	}
	return resp.StatusCode
}

func createSeller(t *testing.T, config TestConfig, prefix string) Seller {
	t.Helper()

	name := fmt.Sprintf("%s %s", prefix, uuid.NewString()[:8])
	var s Seller
	status := call(t, config, http.MethodPost, "/api/v1/seller", map[string]string{
		"name":        name,
		"contactInfo": "it@example.com",
	}, &s)
	if status != http.StatusCreated {
		t.Fatalf("Expected status 201 creating seller, got %d", status)
	}
	return s
}

func record(t *testing.T, config TestConfig, sellerID string, amount float64, paymentType string) Transaction {
	t.Helper()

	var tx Transaction
	status := call(t, config, http.MethodPost, "/api/v1/transaction", map[string]any{
		"sellerId":    sellerID,
		"amount":      amount,
		"paymentType": paymentType,
	}, &tx)
	if status != http.StatusCreated {
		t.Fatalf("Expected status 201 recording transaction, got %d", status)
	}
	return tx
}

func recentRange(from time.Time) string {
	q := url.Values{}
	q.Set("startDate", from.UTC().Add(-time.Second).Format(time.RFC3339))
	q.Set("endDate", time.Now().UTC().Add(time.Minute).Format(time.RFC3339))
	return q.Encode()
}

// ============================================================================
// SCENARIO 1: Seller lifecycle
// ============================================================================

func TestSellerLifecycle(t *testing.T) {
	config := getTestConfig(t)

	s := createSeller(t, config, "Lifecycle")

	var got Seller
	if status := call(t, config, http.MethodGet, "/api/v1/seller/"+s.ID, nil, &got); status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", status)
	}
	if got.Name != s.Name {
		t.Errorf("Expected name %q, got %q", s.Name, got.Name)
	}

	var updated Seller
	call(t, config, http.MethodPut, "/api/v1/seller", map[string]string{"id": s.ID, "contactInfo": "new@example.com"}, &updated)
	if updated.ContactInfo != "new@example.com" || updated.Name != s.Name {
		t.Errorf("Unexpected update result %+v", updated)
	}

	record(t, config, s.ID, 10, "CARD")

	var apiErr ErrorResponse
	if status := call(t, config, http.MethodDelete, "/api/v1/seller/"+s.ID, nil, &apiErr); status != http.StatusConflict {
		t.Errorf("Expected 409 deleting a seller with sales, got %d", status)
	}
	if apiErr.Code != "CONFLICT" {
		t.Errorf("Expected CONFLICT, got %q", apiErr.Code)
	}

	t.Logf("✓ Seller lifecycle: id=%s", s.ID)
}

// ============================================================================
// SCENARIO 2: Aggregation over a date range
// ============================================================================

func TestAggregation(t *testing.T) {
	/*
	   SCENARIO: three sellers, two with sales in range, one idle

	   EXPECTED BEHAVIOR:
	   - most productive is the seller with the largest total
	   - below-threshold lists only sellers with sales whose total is under it
	   - the idle seller never appears in below-threshold
	*/
	config := getTestConfig(t)
	start := time.Now()

	big := createSeller(t, config, "Big")
	small := createSeller(t, config, "Small")
	idle := createSeller(t, config, "Idle")

	record(t, config, big.ID, 9000, "TRANSFER")
	record(t, config, big.ID, 8000, "CARD")
	record(t, config, small.ID, 0.01, "CASH")

	var top Seller
	if status := call(t, config, http.MethodGet, "/api/v1/seller/most-productive?"+recentRange(start), nil, &top); status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", status)
	}
	if top.ID != big.ID {
		t.Logf("most productive is %s; another client may be writing larger sales", top.ID)
	}

	var page SellerPage
	q := recentRange(start) + "&threshold=1&size=100"
	if status := call(t, config, http.MethodGet, "/api/v1/seller/below-threshold?"+q, nil, &page); status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", status)
	}

	found := map[string]bool{}
	for _, s := range page.Content {
		found[s.ID] = true
	}
	if !found[small.ID] {
		t.Errorf("Expected %s below threshold", small.ID)
	}
	if found[big.ID] {
		t.Errorf("Did not expect %s below threshold", big.ID)
	}
	if found[idle.ID] {
		t.Errorf("Sellers without sales must not be listed")
	}

	t.Logf("✓ Aggregation: top=%s below=%d", top.ID, page.TotalElements)
}

// ============================================================================
// SCENARIO 3: Best period
// ============================================================================

func TestBestPeriod(t *testing.T) {
	config := getTestConfig(t)

	s := createSeller(t, config, "Busy")
	for i := 0; i < 3; i++ {
		record(t, config, s.ID, float64(i+1)*10, "CARD")
	}

	var p Period
	path := fmt.Sprintf("/api/v1/seller/best-period?durationInDays=1&sellerId=%s", s.ID)
	if status := call(t, config, http.MethodGet, path, nil, &p); status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", status)
	}
	if p.TransactionCount != 3 {
		t.Errorf("Expected 3 transactions in the period, got %d", p.TransactionCount)
	}
	if p.PeriodEnd.Before(p.PeriodStart) {
		t.Errorf("Period end %v before start %v", p.PeriodEnd, p.PeriodStart)
	}

	idle := createSeller(t, config, "Quiet")
	var apiErr ErrorResponse
	path = fmt.Sprintf("/api/v1/seller/best-period?durationInDays=1&sellerId=%s", idle.ID)
	if status := call(t, config, http.MethodGet, path, nil, &apiErr); status != http.StatusNotFound {
		t.Errorf("Expected 404 for a seller without sales, got %d", status)
	}

	t.Logf("✓ Best period: %s → %s (%d)", p.PeriodStart, p.PeriodEnd, p.TransactionCount)
}

// ============================================================================
// SCENARIO 4: Input errors
// ============================================================================

func TestInputErrors(t *testing.T) {
	config := getTestConfig(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"UnknownPaymentType", http.MethodPost, "/api/v1/transaction", map[string]any{"sellerId": "x", "amount": 1, "paymentType": "GOLD"}, http.StatusBadRequest},
		{"UnknownSeller", http.MethodPost, "/api/v1/transaction", map[string]any{"sellerId": uuid.NewString(), "amount": 1, "paymentType": "CASH"}, http.StatusNotFound},
		{"ShortName", http.MethodPost, "/api/v1/seller", map[string]string{"name": "x", "contactInfo": "c"}, http.StatusBadRequest},
		{"BadDates", http.MethodGet, "/api/v1/seller/most-productive?startDate=soon&endDate=later", nil, http.StatusBadRequest},
		{"NegativeDuration", http.MethodGet, "/api/v1/seller/best-period?durationInDays=-1&sellerId=x", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var apiErr ErrorResponse
			if status := call(t, config, tt.method, tt.path, tt.body, &apiErr); status != tt.status {
				t.Errorf("Expected %d, got %d (%s)", tt.status, status, apiErr.Error)
			}
			if apiErr.Code == "" {
				t.Error("Expected an error code")
			}
		})
	}
}
