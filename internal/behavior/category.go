// Package behavior derives a financial behaviour report from bank statement rows.
package behavior

import "strings"

// Category groups transactions by what the money was spent on or came from.
type Category string

const (
	CategoryIncome      Category = "Income"
	CategoryFood        Category = "Food"
	CategoryTransport   Category = "Transport"
	CategoryLoan        Category = "Loan"
	CategoryInvestments Category = "Investments"
	CategoryOthers      Category = "Others"
)

type keywordRule struct {
	category Category
	keywords []string
}

// Checked in order; the first rule with a matching keyword wins.
var keywordRules = []keywordRule{
	{CategoryIncome, []string{"salary", "deposit"}},
	{CategoryFood, []string{"food", "grocer"}},
	{CategoryTransport, []string{"uber", "fuel"}},
	{CategoryLoan, []string{"emi", "loan"}},
	{CategoryInvestments, []string{"invest", "stock"}},
}

// Categorize assigns a category from keywords in the description.
func Categorize(description string) Category {
	desc := strings.ToLower(description)
	for _, rule := range keywordRules {
		for _, kw := range rule.keywords {
			if strings.Contains(desc, kw) {
				return rule.category
			}
		}
	}
	return CategoryOthers
}

// Categories lists every known category in keyword precedence order.
func Categories() []Category {
	out := make([]Category, 0, len(keywordRules)+1)
	for _, rule := range keywordRules {
		out = append(out, rule.category)
	}
	return append(out, CategoryOthers)
}
