// Package analytics summarizes a list of transactions into counts, turnover
// and per-category shares.
//
// Summarize is pure: it performs no I/O and never divides by zero. Percentages
// are returned at full float64 precision; rounding belongs to whoever renders
// the report.
package analytics

import (
	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// CategoryShare is the turnover of one (type, category) pair.
type CategoryShare struct {
	Category core.Category   `json:"category"`
	Turnover decimal.Decimal `json:"turnover"`
	Percent  float64         `json:"percent"`
}

// Report is the aggregate view of a transaction list.
// Empty is set when the input had no transactions; every other field is then zero.
type Report struct {
	Empty bool `json:"empty"`

	TotalCount     int     `json:"totalCount"`
	IncomeCount    int     `json:"incomeCount"`
	ExpenseCount   int     `json:"expenseCount"`
	IncomePercent  float64 `json:"incomePercent"`
	ExpensePercent float64 `json:"expensePercent"`

	TotalTurnover          decimal.Decimal `json:"totalTurnover"`
	IncomeTurnover         decimal.Decimal `json:"incomeTurnover"`
	ExpenseTurnover        decimal.Decimal `json:"expenseTurnover"`
	IncomeTurnoverPercent  float64         `json:"incomeTurnoverPercent"`
	ExpenseTurnoverPercent float64         `json:"expenseTurnoverPercent"`

	IncomeByCategory  []CategoryShare `json:"incomeByCategory"`
	ExpenseByCategory []CategoryShare `json:"expenseByCategory"`
}

// Summarize computes the report for txs.
func Summarize(txs []core.Transaction) Report {
	if len(txs) == 0 {
		return Report{
			Empty:             true,
			IncomeByCategory:  []CategoryShare{},
			ExpenseByCategory: []CategoryShare{},
		}
	}

	var r Report
	incomeByCat := make(map[core.Category]decimal.Decimal)
	expenseByCat := make(map[core.Category]decimal.Decimal)

	for _, tx := range txs {
		r.TotalCount++
		r.TotalTurnover = r.TotalTurnover.Add(tx.Amount)
		switch tx.Type {
		case core.Income:
			r.IncomeCount++
			r.IncomeTurnover = r.IncomeTurnover.Add(tx.Amount)
			incomeByCat[tx.Category] = incomeByCat[tx.Category].Add(tx.Amount)
		case core.Expense:
			r.ExpenseCount++
			r.ExpenseTurnover = r.ExpenseTurnover.Add(tx.Amount)
			expenseByCat[tx.Category] = expenseByCat[tx.Category].Add(tx.Amount)
		}
	}

	r.IncomePercent = ratio(float64(r.IncomeCount), float64(r.TotalCount))
	r.ExpensePercent = ratio(float64(r.ExpenseCount), float64(r.TotalCount))
	r.IncomeTurnoverPercent = share(r.IncomeTurnover, r.TotalTurnover)
	r.ExpenseTurnoverPercent = share(r.ExpenseTurnover, r.TotalTurnover)
	r.IncomeByCategory = breakdown(incomeByCat, r.IncomeTurnover)
	r.ExpenseByCategory = breakdown(expenseByCat, r.ExpenseTurnover)
	return r
}

// breakdown walks categories in enumeration order and skips those with no turnover.
func breakdown(byCat map[core.Category]decimal.Decimal, total decimal.Decimal) []CategoryShare {
	out := make([]CategoryShare, 0, len(byCat))
	for _, c := range core.Categories {
		amt, ok := byCat[c]
		if !ok || amt.IsZero() {
			continue
		}
		out = append(out, CategoryShare{Category: c, Turnover: amt, Percent: share(amt, total)})
	}
	return out
}

func share(part, total decimal.Decimal) float64 {
	if total.IsZero() {
		return 0
	}
	return ratio(part.InexactFloat64(), total.InexactFloat64())
}

func ratio(part, total float64) float64 {
	if total == 0 {
		return 0
	}
	return part / total * 100
}
