package contracts

import "time"

// DailyBar is one cached daily OHLCV bar, keyed by (ticker, date).
// Bars are written by the resolver and only ever replaced wholesale by a
// re-fetch of the same key.
type DailyBar struct {
	Ticker string
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Target date labels used by the resolver and the ranker. The order of
// TargetLabels is the order in which dates are resolved within one pass.
const (
	LabelLatestTrading = "latest_trading"
	LabelMinus1Week    = "minus_1_week"
	LabelMinus1Month   = "minus_1_month"
	LabelMinus1Year    = "minus_1_year"
	LabelMinus13Months = "minus_13_months"
)

// TargetLabels lists all five labels in resolution order.
var TargetLabels = []string{
	LabelLatestTrading,
	LabelMinus1Week,
	LabelMinus1Month,
	LabelMinus1Year,
	LabelMinus13Months,
}
