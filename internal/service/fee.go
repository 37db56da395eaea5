package service

import (
	"math"

	"github.com/shopspring/decimal"
)

// Fee tier boundaries and percentages, in coins.
var (
	tierHigh = decimal.NewFromInt(500) // amount > 500: 2%
	tierMid  = decimal.NewFromInt(200) // 200 < amount <= 500: 3%
	tierLow  = decimal.NewFromInt(50)  // 50 <= amount <= 200: 5%

	pctHigh = decimal.NewFromInt(2)
	pctMid  = decimal.NewFromInt(3)
	pctLow  = decimal.NewFromInt(5)

	premiumDiscountPts = decimal.NewFromFloat(0.5)
	premiumThreshold   = decimal.NewFromInt(500)

	oneHundred = decimal.NewFromInt(100)
)

// Risk levels.
const (
	RiskLow    = "LOW"
	RiskMedium = "MEDIUM"
	RiskHigh   = "HIGH"
)

// WithdrawalProfile is everything the fee and risk engine needs to quote a
// withdrawal. Callers assemble it from repository counts; the functions
// below never touch the database.
type WithdrawalProfile struct {
	Amount                 decimal.Decimal
	PriorWithdrawals       int64 // withdrawals created before this one, any status
	WithdrawalsLast7Days   int64
	CompletedLast90Days    int64
	FailedLast90Days       int64
	LifetimeCoinsPurchased decimal.Decimal
	AccountAgeDays         int
	PromotionActive        bool
	PromoDiscount          decimal.Decimal // fraction of the fee waived, e.g. 0.5
}

// WithdrawalQuote is the preview result: what the user would be charged and
// how long payout is expected to take.
type WithdrawalQuote struct {
	Amount        decimal.Decimal `json:"amount"`
	FeePercent    decimal.Decimal `json:"fee_percent"`
	Fee           decimal.Decimal `json:"fee"`
	NetAmount     decimal.Decimal `json:"net_amount"`
	AmountVND     decimal.Decimal `json:"amount_vnd"`
	RiskScore     int             `json:"risk_score"`
	RiskLevel     string          `json:"risk_level"`
	EstimateHours int             `json:"estimate_hours"`
	FirstFree     bool            `json:"first_free"`
	Premium       bool            `json:"premium"`
	PromoApplied  bool            `json:"promo_applied"`
}

// BaseFeePercent returns the tier percentage for the requested amount.
// Amounts below the minimum tier fall through to the lowest tier; bounds
// are validated separately.
func BaseFeePercent(amount decimal.Decimal) decimal.Decimal {
	switch {
	case amount.GreaterThan(tierHigh):
		return pctHigh
	case amount.GreaterThan(tierMid):
		return pctMid
	default:
		return pctLow
	}
}

func (p WithdrawalProfile) isPremium() bool {
	return p.LifetimeCoinsPurchased.GreaterThanOrEqual(premiumThreshold)
}

// EffectiveFeePercent applies the adjustments in order: the first-ever
// withdrawal is free outright, then the premium discount of 0.5 points
// floored at zero, then the promotional multiplier. The result is never
// negative.
func EffectiveFeePercent(p WithdrawalProfile) decimal.Decimal {
	if p.PriorWithdrawals == 0 {
		return decimal.Zero
	}

	pct := BaseFeePercent(p.Amount)

	if p.isPremium() {
		pct = pct.Sub(premiumDiscountPts)
		if pct.IsNegative() {
			pct = decimal.Zero
		}
	}

	if p.PromotionActive {
		pct = pct.Mul(decimal.NewFromInt(1).Sub(p.PromoDiscount))
	}

	if pct.IsNegative() {
		return decimal.Zero
	}
	return pct
}

// RiskScore grades a withdrawal 0..100 from amount, account age and recent
// withdrawal frequency. It informs the payout estimate and review notes; it
// never blocks the request.
func RiskScore(p WithdrawalProfile) int {
	score := 0

	if p.Amount.GreaterThan(decimal.NewFromInt(1000)) {
		score += 40
	}
	if p.AccountAgeDays < 30 {
		score += 20
	}

	freq := int(2 * p.PriorWithdrawals)
	if freq > 20 {
		freq = 20
	}
	score += freq

	recent := int(5 * p.WithdrawalsLast7Days)
	if recent > 20 {
		recent = 20
	}
	score += recent

	if score > 100 {
		score = 100
	}
	return score
}

func RiskLevel(score int) string {
	switch {
	case score < 40:
		return RiskLow
	case score < 70:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// EstimateHours predicts payout latency from a 24 hour baseline, scaled
// down for trusted and premium accounts and small amounts, scaled up for
// risky requests. Never below 2 hours.
func EstimateHours(p WithdrawalProfile, riskScore int) int {
	hours := 24.0

	trusted := p.CompletedLast90Days >= 3 && p.FailedLast90Days == 0
	if trusted {
		hours *= 0.8
	}
	if p.isPremium() {
		hours *= 0.9
	}
	if p.Amount.LessThan(decimal.NewFromInt(200)) {
		hours *= 0.8
	}

	switch {
	case riskScore >= 70:
		hours *= 1.5
	case riskScore >= 40:
		hours *= 1.2
	}

	rounded := int(math.Round(hours))
	if rounded < 2 {
		rounded = 2
	}
	return rounded
}

// QuoteWithdrawal runs the full engine over a profile. exchangeRate is VND
// per coin.
func QuoteWithdrawal(p WithdrawalProfile, exchangeRate decimal.Decimal) WithdrawalQuote {
	pct := EffectiveFeePercent(p)
	fee := p.Amount.Mul(pct).Div(oneHundred).Round(2)
	net := p.Amount.Sub(fee)
	score := RiskScore(p)

	return WithdrawalQuote{
		Amount:        p.Amount,
		FeePercent:    pct,
		Fee:           fee,
		NetAmount:     net,
		AmountVND:     net.Mul(exchangeRate),
		RiskScore:     score,
		RiskLevel:     RiskLevel(score),
		EstimateHours: EstimateHours(p, score),
		FirstFree:     p.PriorWithdrawals == 0,
		Premium:       p.isPremium(),
		PromoApplied:  p.PromotionActive && p.PriorWithdrawals > 0,
	}
}
