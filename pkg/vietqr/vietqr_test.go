package vietqr

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

var testAccount = Account{
	BankBin:       "970407",
	AccountNumber: "19036789012345",
	AccountName:   "CONG TY EDUSHARE",
}

func TestImageURL(t *testing.T) {
	url := ImageURL(testAccount, decimal.NewFromInt(50000), "TXN000042")

	assert.Equal(t,
		"https://img.vietqr.io/image/970407-19036789012345-qr_only.png?amount=50000&addInfo=TXN000042&accountName=CONG+TY+EDUSHARE",
		url)
}

func TestImageURLRoundsHalfUp(t *testing.T) {
	tests := []struct {
		amount string
		want   string
	}{
		{"100.4", "amount=100&"},
		{"100.5", "amount=101&"},
		{"100.6", "amount=101&"},
		{"100", "amount=100&"},
	}
	for _, tt := range tests {
		url := ImageURL(testAccount, mustDecimal(tt.amount), "WD00000001")
		assert.Contains(t, url, tt.want, "amount=%s", tt.amount)
	}
}

func mustDecimal(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return d
}
