package rules

import (
	"sync"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestNewPolicyDefault(t *testing.T) {
	policy, err := NewPolicy("")
	if err != nil {
		t.Fatalf("failed to create policy: %v", err)
	}
	if policy.Expression() != DefaultExpression {
		t.Errorf("expected default expression, got %q", policy.Expression())
	}

	tests := []struct {
		name   string
		amount float64
		want   bool
	}{
		{"positive", 10.5, true},
		{"zero", 0, false},
		{"negative", -1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := policy.Allow(Input{SellerID: "s-1", Amount: tt.amount, PaymentType: domain.PaymentCash})
			if err != nil {
				t.Fatalf("Allow failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Allow(amount=%v) = %v, want %v", tt.amount, got, tt.want)
			}
		})
	}
}

func TestPolicyVariables(t *testing.T) {
	policy, err := NewPolicy(`payment_type != "CASH" || amount <= 10000.0`)
	if err != nil {
		t.Fatalf("failed to create policy: %v", err)
	}

	tests := []struct {
		name  string
		input Input
		want  bool
	}{
		{"small cash", Input{Amount: 500, PaymentType: domain.PaymentCash}, true},
		{"large cash", Input{Amount: 20000, PaymentType: domain.PaymentCash}, false},
		{"large card", Input{Amount: 20000, PaymentType: domain.PaymentCard}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := policy.Allow(tt.input)
			if err != nil {
				t.Fatalf("Allow failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Allow() = %v, want %v", got, tt.want)
			}
		})
	}

	blocked, _ := NewPolicy(`!seller_id.startsWith("blocked-")`)
	if ok, _ := blocked.Allow(Input{SellerID: "blocked-7", Amount: 1}); ok {
		t.Error("expected blocked seller to be rejected")
	}
}

func TestPolicyRejectsInvalidExpressions(t *testing.T) {
	for _, expr := range []string{
		"this is not valid CEL !!!",
		"amount * 2.0",
		"unknown_var > 1",
	} {
		if _, err := NewPolicy(expr); err == nil {
			t.Errorf("expected error for %q", expr)
		}
	}
}

func TestPolicyReloadKeepsPreviousOnError(t *testing.T) {
	policy, _ := NewPolicy("amount > 100.0")

	if err := policy.Reload("amount +"); err == nil {
		t.Fatal("expected reload error")
	}
	if policy.Expression() != "amount > 100.0" {
		t.Errorf("expected previous expression to stay active, got %q", policy.Expression())
	}

	if err := policy.Reload("amount > 1.0"); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if ok, _ := policy.Allow(Input{Amount: 50}); !ok {
		t.Error("expected reloaded policy to admit 50")
	}
}

func TestPolicyConcurrentAllow(t *testing.T) {
	policy, _ := NewPolicy("")

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := policy.Allow(Input{Amount: float64(i + 1)}); err != nil || !ok {
				t.Errorf("Allow(%d) = %v, %v", i+1, ok, err)
			}
		}()
	}
	wg.Wait()
}
