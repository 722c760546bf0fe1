// Package rules provides the CEL-Go based role classification engine.
package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/ringwatch/internal/domain"
)

// Features are the per-member facts a role rule can reference.
type Features struct {
	AccountID         string
	InDegree          int
	OutDegree         int
	RingInDegree      int
	RingOutDegree     int
	TotalTransactions int
	Passthrough       float64
	IsEntry           bool
	IsExit            bool
	IsShell           bool
}

func (f Features) activation() map[string]any {
	return map[string]any{
		"account_id":         f.AccountID,
		"in_degree":          int64(f.InDegree),
		"out_degree":         int64(f.OutDegree),
		"ring_in_degree":     int64(f.RingInDegree),
		"ring_out_degree":    int64(f.RingOutDegree),
		"total_transactions": int64(f.TotalTransactions),
		"passthrough":        f.Passthrough,
		"is_entry":           f.IsEntry,
		"is_exit":            f.IsExit,
		"is_shell":           f.IsShell,
	}
}

// Assignment is the outcome of classifying one member.
type Assignment struct {
	AccountID string
	Role      domain.Role
	RuleID    string // empty when no rule matched
}

// RoleClassifier maps member features to a ring role. Rules run in
// priority order and the first one that yields true wins; members no rule
// matches are mules.
type RoleClassifier struct {
	mu         sync.RWMutex
	env        *cel.Env
	rules      []*CompiledRule
	maxWorkers int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Rule    domain.RoleRule
	Program cel.Program
}

// NewRoleClassifier compiles rules into a classifier.
func NewRoleClassifier(rules []domain.RoleRule, maxWorkers int) (*RoleClassifier, error) {
	if maxWorkers <= 0 {
		maxWorkers = 8
	}

	env, err := cel.NewEnv(
		cel.Variable("account_id", cel.StringType),
		cel.Variable("in_degree", cel.IntType),
		cel.Variable("out_degree", cel.IntType),
		cel.Variable("ring_in_degree", cel.IntType),
		cel.Variable("ring_out_degree", cel.IntType),
		cel.Variable("total_transactions", cel.IntType),
		cel.Variable("passthrough", cel.DoubleType),
		cel.Variable("is_entry", cel.BoolType),
		cel.Variable("is_exit", cel.BoolType),
		cel.Variable("is_shell", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	c := &RoleClassifier{env: env, maxWorkers: maxWorkers}
	if err := c.Reload(rules); err != nil {
		return nil, err
	}
	return c, nil
}

// NewDefaultClassifier returns a classifier over the built-in rules.
func NewDefaultClassifier() (*RoleClassifier, error) {
	return NewRoleClassifier(domain.DefaultRoleRules(), 0)
}

// ValidateRule compiles a rule without loading it.
func (c *RoleClassifier) ValidateRule(rule domain.RoleRule) error {
	_, err := c.compile(rule)
	return err
}

// Reload replaces all loaded rules atomically.
func (c *RoleClassifier) Reload(rules []domain.RoleRule) error {
	compiled := make([]*CompiledRule, 0, len(rules))
	for _, r := range rules {
		cr, err := c.compile(r)
		if err != nil {
			return err
		}
		compiled = append(compiled, cr)
	}
	sort.SliceStable(compiled, func(i, j int) bool {
		return compiled[i].Rule.Priority < compiled[j].Rule.Priority
	})

	c.mu.Lock()
	c.rules = compiled
	c.mu.Unlock()
	return nil
}

// Rules returns the loaded rules in evaluation order.
func (c *RoleClassifier) Rules() []domain.RoleRule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.RoleRule, len(c.rules))
	for i, r := range c.rules {
		out[i] = r.Rule
	}
	return out
}

// RulesCount returns the number of loaded rules.
func (c *RoleClassifier) RulesCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rules)
}

// Classify returns the role of a single member. A rule that fails to
// evaluate is treated as not matching.
func (c *RoleClassifier) Classify(f Features) Assignment {
	c.mu.RLock()
	rules := c.rules
	c.mu.RUnlock()

	act := f.activation()
	for _, r := range rules {
		out, _, err := r.Program.Eval(act)
		if err != nil {
			continue
		}
		if b, ok := out.(types.Bool); ok && bool(b) {
			return Assignment{AccountID: f.AccountID, Role: r.Rule.Role, RuleID: r.Rule.ID}
		}
	}
	return Assignment{AccountID: f.AccountID, Role: domain.RoleMule}
}

// ClassifyAll classifies every member in parallel. Results keep input order.
func (c *RoleClassifier) ClassifyAll(ctx context.Context, members []Features) ([]Assignment, error) {
	results := make([]Assignment, len(members))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, c.maxWorkers)

	for i, f := range members {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return nil, err
		}
		wg.Add(1)
		go func(idx int, f Features) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			results[idx] = c.Classify(f)
		}(i, f)
	}

	wg.Wait()
	return results, nil
}

func (c *RoleClassifier) compile(rule domain.RoleRule) (*CompiledRule, error) {
	if rule.ID == "" {
		return nil, fmt.Errorf("role rule id is required")
	}
	if !knownRole(rule.Role) {
		return nil, fmt.Errorf("role rule %s: unknown role %q", rule.ID, rule.Role)
	}

	ast, issues := c.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile role rule %s: %w", rule.ID, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("role rule %s: expression must return bool, got %s", rule.ID, ast.OutputType())
	}

	program, err := c.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for role rule %s: %w", rule.ID, err)
	}

	return &CompiledRule{Rule: rule, Program: program}, nil
}

func knownRole(r domain.Role) bool {
	for _, known := range domain.AllRoles {
		if r == known {
			return true
		}
	}
	return false
}
