package inventory

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Currency is the only currency the shop prices in.
const Currency = "IQD"

var printer = message.NewPrinter(language.English)

// FormatPrice renders whole-unit prices with grouping, e.g. "IQD 12,999".
func FormatPrice(price int64) string {
	return printer.Sprintf("%s %d", Currency, price)
}
