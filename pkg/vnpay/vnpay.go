// Package vnpay implements the VNPay v2.1.0 request signing scheme: a
// canonical hash-data string over the sorted parameter map, an HMAC-SHA512
// signature, and the matching verification for inbound callbacks.
package vnpay

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	Version = "2.1.0"
	Command = "pay"

	ParamSecureHash     = "vnp_SecureHash"
	ParamSecureHashType = "vnp_SecureHashType"

	// DateFormat is yyyyMMddHHmmss per the VNPay docs.
	DateFormat = "20060102150405"
)

// Location is the fixed timezone all vnp_CreateDate/vnp_ExpireDate values
// are rendered in (UTC+7, Vietnam).
var Location = time.FixedZone("ICT", 7*60*60)

func FormatTime(t time.Time) string {
	return t.In(Location).Format(DateFormat)
}

type Signer struct {
	secretKey string
}

func NewSigner(secretKey string) *Signer {
	return &Signer{secretKey: secretKey}
}

// HashData builds the canonical string the signature covers: keys in
// ascending order, empty values skipped, each pair rendered as
// key=urlencode(value) and joined with '&'. Keys are not encoded here; the
// query string encoding differs from this in exactly that one respect.
func HashData(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[k]))
	}
	return b.String()
}

// EncodeQuery renders the sorted parameters as the redirect query string.
// Unlike HashData it also encodes the keys.
func EncodeQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[k]))
	}
	return b.String()
}

// Sign returns the lowercase hex HMAC-SHA512 of the canonical hash data.
func (s *Signer) Sign(params map[string]string) string {
	return s.hmacHex(HashData(params))
}

// BuildPayURL assembles the full redirect URL: encoded query, hash type tag
// and the secure hash appended last.
func (s *Signer) BuildPayURL(baseURL string, params map[string]string) string {
	query := EncodeQuery(params)
	secureHash := s.Sign(params)

	var b strings.Builder
	b.WriteString(baseURL)
	b.WriteByte('?')
	b.WriteString(query)
	b.WriteString("&" + ParamSecureHashType + "=HmacSHA512")
	b.WriteString("&" + ParamSecureHash + "=")
	b.WriteString(secureHash)
	return b.String()
}

// Verify recomputes the signature over every vnp_* parameter except the
// hash fields themselves and compares it to the received vnp_SecureHash.
func (s *Signer) Verify(params map[string]string) bool {
	received := params[ParamSecureHash]
	if received == "" {
		return false
	}

	filtered := make(map[string]string, len(params))
	for k, v := range params {
		if !strings.HasPrefix(k, "vnp_") {
			continue
		}
		if k == ParamSecureHash || strings.HasPrefix(k, ParamSecureHashType) {
			continue
		}
		filtered[k] = v
	}

	calculated := s.hmacHex(HashData(filtered))
	return hmac.Equal([]byte(strings.ToLower(received)), []byte(calculated))
}

func (s *Signer) hmacHex(data string) string {
	mac := hmac.New(sha512.New, []byte(s.secretKey))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}
