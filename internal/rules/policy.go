// Package rules provides the CEL-Go based transaction admission policy.
package rules

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// DefaultExpression admits any transaction with a positive amount.
const DefaultExpression = domain.DefaultTransactionPolicy

// Input holds the transaction fields visible to a policy expression.
type Input struct {
	SellerID    string
	Amount      float64
	PaymentType domain.PaymentType
}

// Policy is a compiled CEL expression deciding whether a transaction may
// be recorded. It is safe for concurrent use.
type Policy struct {
	mu         sync.RWMutex
	env        *cel.Env
	expression string
	program    cel.Program
}

// NewPolicy compiles expression. An empty expression uses DefaultExpression.
func NewPolicy(expression string) (*Policy, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("payment_type", cel.StringType),
		cel.Variable("seller_id", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	p := &Policy{env: env}
	if err := p.Reload(expression); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload swaps in a new expression. The current one stays active if the
// new one does not compile.
func (p *Policy) Reload(expression string) error {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		expression = DefaultExpression
	}

	ast, issues := p.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("failed to compile policy: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return fmt.Errorf("policy must return bool, got %s", ast.OutputType())
	}

	program, err := p.env.Program(ast)
	if err != nil {
		return fmt.Errorf("failed to create policy program: %w", err)
	}

	p.mu.Lock()
	p.expression = expression
	p.program = program
	p.mu.Unlock()
	return nil
}

// Expression returns the active expression.
func (p *Policy) Expression() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.expression
}

// Allow evaluates the policy for in.
func (p *Policy) Allow(in Input) (bool, error) {
	p.mu.RLock()
	program := p.program
	p.mu.RUnlock()

	out, _, err := program.Eval(map[string]any{
		"amount":       in.Amount,
		"payment_type": string(in.PaymentType),
		"seller_id":    in.SellerID,
	})
	if err != nil {
		return false, fmt.Errorf("policy evaluation error: %w", err)
	}

	allowed, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("policy returned %s, not bool", out.Type())
	}
	return bool(allowed), nil
}
