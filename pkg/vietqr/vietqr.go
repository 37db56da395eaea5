// Package vietqr builds img.vietqr.io QR image URLs for bank-transfer
// payments. The transaction code is carried in the transfer memo so the
// bank webhook can be matched back to the pending transaction.
package vietqr

import (
	"fmt"
	"net/url"

	"github.com/shopspring/decimal"
)

const baseURL = "https://img.vietqr.io/image"

type Account struct {
	BankBin       string
	AccountNumber string
	AccountName   string
}

// ImageURL renders the qr_only template URL for the given amount and memo.
// The amount is rounded half-up to a whole currency unit, which is what the
// image service expects.
func ImageURL(acct Account, amount decimal.Decimal, memo string) string {
	rounded := amount.Round(0).IntPart()
	return fmt.Sprintf("%s/%s-%s-qr_only.png?amount=%d&addInfo=%s&accountName=%s",
		baseURL,
		acct.BankBin,
		acct.AccountNumber,
		rounded,
		url.QueryEscape(memo),
		url.QueryEscape(acct.AccountName),
	)
}
