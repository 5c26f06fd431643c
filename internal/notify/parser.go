package notify

import (
	"regexp"
	"strings"

	"github.com/collectpay/collect-api/internal/types"
)

var (
	payerPattern   = regexp.MustCompile(`(?i)^(.+?)\s+paid you`)
	orderIDPattern = regexp.MustCompile(`\b(\d{10})\b`)
)

// Parse extracts the payer name and order id from a raw payment
// notification. The payload is vendor-controlled unstructured text with no
// stable schema, so this is a best-effort heuristic: missing pieces come
// back empty and the caller routes to the unmapped path instead of failing.
//
// The payer is the leading capture of "<name> paid you" in the title. The
// order id is the first standalone run of exactly 10 digits in the big-text
// field, falling back to the text field; longer digit runs do not match.
// The digits are not validated against real orders here; the store lookup
// downstream is the source of truth.
func Parse(n types.Notification) (orderID, payerName string) {
	if m := payerPattern.FindStringSubmatch(n.Title); m != nil {
		payerName = strings.TrimSpace(m[1])
	}

	source := n.BigText
	if source == "" {
		source = n.Text
	}
	if m := orderIDPattern.FindStringSubmatch(source); m != nil {
		orderID = m[1]
	}

	return orderID, payerName
}
