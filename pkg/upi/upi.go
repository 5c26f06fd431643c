package upi

import (
	"fmt"
	"net/url"

	qrcode "github.com/skip2/go-qrcode"
)

// IntentURL builds the upi://pay deep link a payer's UPI app opens. The
// order id rides in both tr and tn so it survives into the payment
// notification text, which is what reconciliation scans for.
func IntentURL(receiverUPI, payeeName string, amountRupees float64, orderID string) string {
	params := url.Values{}
	params.Set("pa", receiverUPI)
	params.Set("pn", payeeName)
	params.Set("am", fmt.Sprintf("%.2f", amountRupees))
	params.Set("tr", orderID)
	params.Set("tn", orderID)
	params.Set("cu", "INR")
	return "upi://pay?" + params.Encode()
}

// QRPNG renders the intent URL as a PNG of the given pixel size.
func QRPNG(intentURL string, size int) ([]byte, error) {
	return qrcode.Encode(intentURL, qrcode.Medium, size)
}
