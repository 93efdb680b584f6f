package core

// CategoryAmount is an expense total aggregated under one category name.
type CategoryAmount struct {
	Name   string
	Amount Money
}

// ReportSummary holds the headline figures for one reporting window.
type ReportSummary struct {
	Income        Money
	Expenses      Money
	Balance       Money
	SavingsRate   float64 // percentage of income kept, 0-100
	TopCategories []CategoryAmount
}

// ReportArtifact is the transient output of report generation. It is never
// persisted as-is; derived fields land in the report record and the email.
type ReportArtifact struct {
	Period   string
	Summary  ReportSummary
	Insights []string
}
