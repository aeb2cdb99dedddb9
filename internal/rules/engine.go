// Package rules evaluates operator-defined CEL policy rules against
// scored loan applications.
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/opensource-finance/credbud/internal/domain"
	"github.com/opensource-finance/credbud/internal/scoring"
	"golang.org/x/sync/errgroup"
)

// Engine is the CEL-based policy evaluation engine.
type Engine struct {
	mu             sync.RWMutex
	env            *cel.Env
	compiledRules  map[string]*CompiledRule
	velocityGetter VelocityGetter
	maxWorkers     int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Rule    *domain.PolicyRule
	Program cel.Program
}

// VelocityGetter returns how many applications a user submitted recently.
type VelocityGetter func(ctx context.Context, userID string) (int64, error)

// NewEngine creates a new policy engine.
func NewEngine(velocityGetter VelocityGetter, maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 8
	}

	env, err := cel.NewEnv(
		cel.Variable("annual_income", cel.DoubleType),
		cel.Variable("monthly_income", cel.DoubleType),
		cel.Variable("total_assets", cel.DoubleType),
		cel.Variable("total_debt", cel.DoubleType),
		cel.Variable("debt_count", cel.IntType),
		cel.Variable("monthly_emi", cel.DoubleType),
		cel.Variable("amount_requested", cel.DoubleType),
		cel.Variable("term_months", cel.IntType),
		cel.Variable("probability", cel.DoubleType),
		cel.Variable("decision", cel.StringType),
		cel.Variable("recent_applications", cel.IntType),
		cel.Variable("emi_to_income", cel.DoubleType),
		cel.Variable("loan_to_income", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:            env,
		compiledRules:  make(map[string]*CompiledRule),
		velocityGetter: velocityGetter,
		maxWorkers:     maxWorkers,
	}, nil
}

// ValidateRule compiles a rule without loading it.
func (e *Engine) ValidateRule(rule *domain.PolicyRule) error {
	if rule == nil {
		return fmt.Errorf("rule is required")
	}
	_, err := e.compileRule(rule)
	return err
}

// LoadRule compiles and loads a rule, replacing one with the same ID.
func (e *Engine) LoadRule(rule *domain.PolicyRule) error {
	compiled, err := e.compileRule(rule)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.compiledRules[rule.ID] = compiled
	e.mu.Unlock()
	return nil
}

// LoadRules compiles and loads every enabled rule.
func (e *Engine) LoadRules(rules []*domain.PolicyRule) error {
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		if err := e.LoadRule(rule); err != nil {
			return err
		}
	}
	return nil
}

// ReloadRules atomically swaps the loaded set. On a compile error the
// previous set stays active.
func (e *Engine) ReloadRules(rules []*domain.PolicyRule) error {
	next := make(map[string]*CompiledRule, len(rules))
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		compiled, err := e.compileRule(rule)
		if err != nil {
			return err
		}
		next[rule.ID] = compiled
	}

	e.mu.Lock()
	e.compiledRules = next
	e.mu.Unlock()

	slog.Info("policy rules reloaded", "count", len(next))
	return nil
}

// UnloadRule removes a rule from the active set.
func (e *Engine) UnloadRule(ruleID string) {
	e.mu.Lock()
	delete(e.compiledRules, ruleID)
	e.mu.Unlock()
}

// Input is a scored application to check.
type Input struct {
	UserID      string
	Request     domain.LoanRequest
	Probability float64
	Decision    scoring.Decision
}

// EvaluateAll runs every loaded rule concurrently. Findings come back
// ordered by rule ID. A rule that fails to evaluate yields an .err finding.
func (e *Engine) EvaluateAll(ctx context.Context, in *Input) ([]domain.PolicyFinding, error) {
	rules := e.sortedRules()
	if len(rules) == 0 {
		return nil, nil
	}

	var recent int64
	if e.velocityGetter != nil && in.UserID != "" {
		n, err := e.velocityGetter(ctx, in.UserID)
		if err != nil {
			slog.Warn("velocity lookup failed", "user_id", in.UserID, "error", err)
		} else {
			recent = n
		}
	}

	activation := Activation(in, recent)
	findings := make([]domain.PolicyFinding, len(rules))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxWorkers)
	for i, rule := range rules {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			findings[i] = evaluateRule(rule, activation)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return findings, nil
}

// Activation builds the CEL variables for an application.
func Activation(in *Input, recentApplications int64) map[string]any {
	r := in.Request
	annual := r.MonthlyIncome * 12

	return map[string]any{
		"annual_income":       annual,
		"monthly_income":      r.MonthlyIncome,
		"total_assets":        r.TotalAssets,
		"total_debt":          r.TotalDebtAmount,
		"debt_count":          int64(r.NumDebts),
		"monthly_emi":         r.MonthlyEMIs,
		"amount_requested":    r.AmountRequested,
		"term_months":         int64(r.TermMonths),
		"probability":         in.Probability,
		"decision":            string(in.Decision),
		"recent_applications": recentApplications,
		"emi_to_income":       ratio(r.MonthlyEMIs, r.MonthlyIncome),
		"loan_to_income":      ratio(r.AmountRequested, annual),
	}
}

// ratio divides, reading any positive amount over no income as 1e9.
func ratio(num, den float64) float64 {
	if den > 0 {
		return num / den
	}
	if num > 0 {
		return 1e9
	}
	return 0
}

func evaluateRule(rule *CompiledRule, activation map[string]any) domain.PolicyFinding {
	finding := domain.PolicyFinding{RuleID: rule.Rule.ID}

	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		finding.Outcome = domain.OutcomeError
		finding.Reason = fmt.Sprintf("evaluation error: %v", err)
		return finding
	}

	finding.Score = toScore(out)
	finding.Outcome, finding.Reason = matchBand(finding.Score, rule.Rule.Bands)
	return finding
}

// toScore converts a CEL value to a numeric score. true is 1, false is 0.
func toScore(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1
		}
		return 0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0
	}
}

// matchBand returns the first band with lower <= score < upper.
// A nil limit is unbounded on that side.
func matchBand(score float64, bands []domain.PolicyBand) (string, string) {
	for _, band := range bands {
		if band.LowerLimit != nil && score < *band.LowerLimit {
			continue
		}
		if band.UpperLimit != nil && score >= *band.UpperLimit {
			continue
		}
		return band.Outcome, band.Reason
	}
	return domain.OutcomePass, "no matching band"
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// GetLoadedRules returns the loaded rules ordered by ID.
func (e *Engine) GetLoadedRules() []*domain.PolicyRule {
	compiled := e.sortedRules()
	rules := make([]*domain.PolicyRule, len(compiled))
	for i, c := range compiled {
		rules[i] = c.Rule
	}
	return rules
}

// Close unloads every rule.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) sortedRules() []*CompiledRule {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, r := range e.compiledRules {
		rules = append(rules, r)
	}
	e.mu.RUnlock()

	sort.Slice(rules, func(i, j int) bool { return rules[i].Rule.ID < rules[j].Rule.ID })
	return rules
}

func (e *Engine) compileRule(rule *domain.PolicyRule) (*CompiledRule, error) {
	if rule.ID == "" {
		return nil, fmt.Errorf("rule id is required")
	}

	ast, issues := e.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", rule.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("rule %s: expression must return bool, int, or double, got %s", rule.ID, outputType)
	}

	for _, band := range rule.Bands {
		switch band.Outcome {
		case domain.OutcomePass, domain.OutcomeReview, domain.OutcomeFail:
		default:
			return nil, fmt.Errorf("rule %s: unknown band outcome %q", rule.ID, band.Outcome)
		}
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", rule.ID, err)
	}

	return &CompiledRule{Rule: rule, Program: program}, nil
}
