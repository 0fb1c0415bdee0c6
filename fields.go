package tradeflow

import "github.com/tradeflow/tradeflow/debate"

// Workflow state fields shared across steps. Identity fields are seeded at
// run start and never overwritten; the rest are filled in as the graph
// progresses.
const (
	FieldTicker    = "company_of_interest"
	FieldTradeDate = "trade_date"

	FieldMarketReport       = "market_report"
	FieldSentimentReport    = "sentiment_report"
	FieldNewsReport         = "news_report"
	FieldFundamentalsReport = "fundamentals_report"

	FieldInvestmentDebate = debate.FieldInvestmentDebate
	FieldRiskDebate       = debate.FieldRiskDebate

	FieldInvestmentPlan = "investment_plan"
	FieldTraderPlan     = "trader_investment_plan"
	FieldFinalDecision  = "final_trade_decision"
)

// DefaultDecision is the safe decision a failed run still reports.
const DefaultDecision = "HOLD"

// reportFields are the analyst outputs consumed downstream.
var reportFields = []string{
	FieldMarketReport,
	FieldSentimentReport,
	FieldNewsReport,
	FieldFundamentalsReport,
}
