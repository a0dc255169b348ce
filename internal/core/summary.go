package core

// CategoryAmount is an amount aggregated under a primary category.
type CategoryAmount struct {
	Name   string
	Amount Money
}

// PeriodSummary totals a budgeting period (one calendar month) from the
// records and projected occurrences that fall inside it.
type PeriodSummary struct {
	Year       int
	Month      int // 1-12
	Income     Money
	Expenses   Money
	ByCategory []CategoryAmount
}

// Net returns income minus expenses for the period. May be negative.
func (s PeriodSummary) Net() Money {
	return Money{Cents: s.Income.Cents - s.Expenses.Cents}
}
