package events

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var orderIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

var clientEventIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,64}$`)

// DeriveOrderEventID computes the deterministic event id for order-scoped
// events. Webhook and pixel deliveries of the same order converge on the same
// id, which is what makes cross-source deduplication work.
func DeriveOrderEventID(shopDomain, orderID string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(shopDomain) + ":" + orderID))
	return "ord_" + hex.EncodeToString(sum[:16])
}

// parseMoney coerces a localized numeric string into a decimal. Accepts plain
// decimals, comma decimal separators ("49,99") and grouped thousands in either
// convention ("1,234.56", "1.234,56").
func parseMoney(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, nil
	}
	s = strings.ReplaceAll(s, " ", "")

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		// Whichever separator appears last is the decimal point.
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 <= 2 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	}

	value, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unparseable monetary value %q", raw)
	}
	return value, nil
}

// anonymizeIP strips the host-identifying portion of an address before it is
// stored: IPv4 loses the final octet, IPv6 keeps only the /48 prefix. Returns
// empty for unparseable input rather than storing garbage.
func anonymizeIP(raw string) string {
	ip := net.ParseIP(strings.TrimSpace(raw))
	if ip == nil {
		return ""
	}
	if v4 := ip.To4(); v4 != nil {
		masked := v4.Mask(net.CIDRMask(24, 32))
		return masked.String()
	}
	masked := ip.Mask(net.CIDRMask(48, 128))
	return masked.String()
}

// hashUserAgent produces the stored fingerprint of a user agent string.
func hashUserAgent(ua string) string {
	if strings.TrimSpace(ua) == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(ua))
	return hex.EncodeToString(sum[:])
}
