package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	dec, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return dec
}

func TestBaseFeePercentTiers(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		want   string
	}{
		{"lowest bound", "50", "5"},
		{"low tier upper edge", "200", "5"},
		{"mid tier lower edge", "201", "3"},
		{"mid tier upper edge", "500", "3"},
		{"high tier lower edge", "501", "2"},
		{"large amount", "50000", "2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BaseFeePercent(d(tt.amount))
			assert.True(t, got.Equal(d(tt.want)), "amount=%s got=%s want=%s", tt.amount, got, tt.want)
		})
	}
}

func TestBaseFeePercentMonotone(t *testing.T) {
	// Percentage never increases as the amount grows.
	prev := BaseFeePercent(d("50"))
	for amount := int64(51); amount <= 50000; amount += 7 {
		cur := BaseFeePercent(decimal.NewFromInt(amount))
		assert.True(t, cur.LessThanOrEqual(prev), "fee pct rose at amount=%d", amount)
		prev = cur
	}
}

func TestFirstWithdrawalAlwaysFree(t *testing.T) {
	amounts := []string{"50", "100", "200", "500", "1000", "50000"}
	for _, a := range amounts {
		p := WithdrawalProfile{
			Amount:                 d(a),
			PriorWithdrawals:       0,
			LifetimeCoinsPurchased: d("10000"),
			PromotionActive:        true,
			PromoDiscount:          d("0.5"),
		}
		assert.True(t, EffectiveFeePercent(p).IsZero(), "amount=%s", a)
	}
}

func TestQuoteStandardWithdrawal(t *testing.T) {
	// 3 prior withdrawals, not premium, no promo, 1000 coins:
	// 2% fee = 20, net 980.
	p := WithdrawalProfile{
		Amount:           d("1000"),
		PriorWithdrawals: 3,
		AccountAgeDays:   365,
	}
	q := QuoteWithdrawal(p, decimal.NewFromInt(1000))

	assert.True(t, q.Fee.Equal(d("20")), "fee=%s", q.Fee)
	assert.True(t, q.NetAmount.Equal(d("980")), "net=%s", q.NetAmount)
	assert.True(t, q.AmountVND.Equal(d("980000")), "vnd=%s", q.AmountVND)
	assert.False(t, q.FirstFree)
}

func TestQuoteFirstWithdrawal(t *testing.T) {
	p := WithdrawalProfile{
		Amount:         d("100"),
		AccountAgeDays: 5,
	}
	q := QuoteWithdrawal(p, decimal.NewFromInt(1000))

	assert.True(t, q.Fee.IsZero())
	assert.True(t, q.NetAmount.Equal(d("100")))
	assert.True(t, q.FirstFree)
}

func TestPremiumDiscount(t *testing.T) {
	base := WithdrawalProfile{
		Amount:           d("1000"),
		PriorWithdrawals: 1,
	}
	premium := base
	premium.LifetimeCoinsPurchased = d("500")

	assert.True(t, EffectiveFeePercent(base).Equal(d("2")))
	assert.True(t, EffectiveFeePercent(premium).Equal(d("1.5")))
}

func TestPromoMultiplier(t *testing.T) {
	p := WithdrawalProfile{
		Amount:           d("100"),
		PriorWithdrawals: 2,
		PromotionActive:  true,
		PromoDiscount:    d("0.5"),
	}
	// 5% halved.
	assert.True(t, EffectiveFeePercent(p).Equal(d("2.5")))
}

func TestFeeNeverNegative(t *testing.T) {
	p := WithdrawalProfile{
		Amount:                 d("1000"),
		PriorWithdrawals:       1,
		LifetimeCoinsPurchased: d("100000"),
		PromotionActive:        true,
		PromoDiscount:          d("1"), // full waiver
	}
	pct := EffectiveFeePercent(p)
	require.False(t, pct.IsNegative())
}

func TestRiskScoreScenario(t *testing.T) {
	// amount 2000 (+40), account age 10 days (+20), no history.
	p := WithdrawalProfile{
		Amount:         d("2000"),
		AccountAgeDays: 10,
	}
	score := RiskScore(p)
	assert.Equal(t, 60, score)
	assert.Equal(t, RiskMedium, RiskLevel(score))
}

func TestRiskScoreMonotoneInAmount(t *testing.T) {
	base := WithdrawalProfile{
		AccountAgeDays:       100,
		PriorWithdrawals:     5,
		WithdrawalsLast7Days: 1,
	}
	prev := -1
	for _, amount := range []string{"50", "500", "1000", "1001", "5000", "50000"} {
		p := base
		p.Amount = d(amount)
		score := RiskScore(p)
		assert.GreaterOrEqual(t, score, prev, "amount=%s", amount)
		prev = score
	}
}

func TestRiskScoreFrequencyCaps(t *testing.T) {
	p := WithdrawalProfile{
		Amount:               d("100"),
		AccountAgeDays:       365,
		PriorWithdrawals:     1000,
		WithdrawalsLast7Days: 1000,
	}
	// Both frequency terms cap at 20.
	assert.Equal(t, 40, RiskScore(p))
}

func TestRiskLevelBoundaries(t *testing.T) {
	assert.Equal(t, RiskLow, RiskLevel(0))
	assert.Equal(t, RiskLow, RiskLevel(39))
	assert.Equal(t, RiskMedium, RiskLevel(40))
	assert.Equal(t, RiskMedium, RiskLevel(69))
	assert.Equal(t, RiskHigh, RiskLevel(70))
	assert.Equal(t, RiskHigh, RiskLevel(100))
}

func TestEstimateHours(t *testing.T) {
	tests := []struct {
		name    string
		profile WithdrawalProfile
		risk    int
		want    int
	}{
		{
			name:    "baseline",
			profile: WithdrawalProfile{Amount: d("1000")},
			risk:    0,
			want:    24,
		},
		{
			name: "trusted premium small amount",
			profile: WithdrawalProfile{
				Amount:                 d("100"),
				CompletedLast90Days:    3,
				LifetimeCoinsPurchased: d("500"),
			},
			risk: 0,
			// 24 * 0.8 * 0.9 * 0.8 = 13.824 -> 14
			want: 14,
		},
		{
			name:    "high risk",
			profile: WithdrawalProfile{Amount: d("2000")},
			risk:    70,
			want:    36,
		},
		{
			name:    "medium risk",
			profile: WithdrawalProfile{Amount: d("1000")},
			risk:    40,
			// 24 * 1.2 = 28.8 -> 29
			want: 29,
		},
		{
			name: "failure in window breaks trust",
			profile: WithdrawalProfile{
				Amount:              d("1000"),
				CompletedLast90Days: 5,
				FailedLast90Days:    1,
			},
			risk: 0,
			want: 24,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateHours(tt.profile, tt.risk))
		})
	}
}

func TestEstimateHoursFloor(t *testing.T) {
	p := WithdrawalProfile{
		Amount:                 d("100"),
		CompletedLast90Days:    10,
		LifetimeCoinsPurchased: d("10000"),
	}
	assert.GreaterOrEqual(t, EstimateHours(p, 0), 2)
}
