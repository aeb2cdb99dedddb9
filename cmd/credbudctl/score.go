package main

import (
	"github.com/opensource-finance/credbud/internal/assessment"
	"github.com/opensource-finance/credbud/internal/domain"
	"github.com/opensource-finance/credbud/internal/rules"
	"github.com/opensource-finance/credbud/internal/scoring"
	"github.com/spf13/cobra"
)

type scoreOutput struct {
	Features   scoring.NormalizedFeatures `json:"features" yaml:"features"`
	Result     scoring.ScoreResult        `json:"result" yaml:"result"`
	Acceptance float64                    `json:"acceptanceRate" yaml:"acceptance_rate"`
	Findings   []domain.PolicyFinding     `json:"findings,omitempty" yaml:"findings,omitempty"`
}

func newScoreCmd() *cobra.Command {
	var (
		req      domain.LoanRequest
		policies bool
	)

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score a loan application with the built-in model",
		Example: `  credbudctl score --amount 500000 --income 80000 --assets 1200000
  credbudctl score --amount 1000000 --debts 4 --debt-amount 600000 --emis 40000 --income 50000 -o yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var engine *rules.Engine
			if policies {
				var err error
				engine, err = rules.NewEngine(nil, 0)
				if err != nil {
					return err
				}
				defer engine.Close()
				if err := engine.LoadRules(rules.DefaultPolicies()); err != nil {
					return err
				}
			}

			proc := assessment.NewProcessor(nil, engine)
			a, err := proc.AssessLoan(cmd.Context(), "credbudctl", req)
			if err != nil {
				return err
			}

			normalizer, err := scoring.NewNormalizer(scoring.DefaultModel().Bounds)
			if err != nil {
				return err
			}

			return render(cmd, scoreOutput{
				Features:   normalizer.Normalize(assessment.Features(req)),
				Result:     a.Score,
				Acceptance: a.AcceptanceRate,
				Findings:   a.Findings,
			})
		},
	}

	f := cmd.Flags()
	f.Float64Var(&req.AmountRequested, "amount", 0, "amount requested")
	f.IntVar(&req.NumDebts, "debts", 0, "number of existing debts")
	f.Float64Var(&req.TotalDebtAmount, "debt-amount", 0, "total outstanding debt")
	f.Float64Var(&req.MonthlyEMIs, "emis", 0, "monthly EMI payments")
	f.Float64Var(&req.TotalAssets, "assets", 0, "total assets")
	f.Float64Var(&req.MonthlyIncome, "income", 0, "monthly income")
	f.IntVar(&req.TermMonths, "term", 0, "loan term in months")
	f.BoolVar(&policies, "policies", true, "evaluate the built-in policy rules")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("income")

	return cmd
}
