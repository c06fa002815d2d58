package inventory

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/mmynk/pharmasupps/internal/models"
)

// NormalizeAmount strips every non-digit from raw and parses the rest.
// Empty or digit-free input yields 0. A value too large for int64 is clamped
// to math.MaxInt64; Create and Update reject it before it gets here.
func NormalizeAmount(raw string) int64 {
	n, _ := parseAmount(raw)
	return n
}

func parseAmount(raw string) (int64, bool) {
	digits := digitsOnly(raw)
	if digits == "" {
		return 0, true
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if errors.Is(err, strconv.ErrRange) {
		return math.MaxInt64, false
	}
	return n, err == nil
}

// ResolveCategory picks the category for a submitted draft. The draft value
// wins, then the record's previous value, then the registry default, and
// finally models.DefaultCategory. Values that are blank or the "All"
// sentinel are skipped.
func ResolveCategory(draftValue, previousValue, registryDefault string) string {
	for _, candidate := range []string{draftValue, previousValue, registryDefault} {
		if c := strings.TrimSpace(candidate); c != "" && c != models.AllCategories {
			return c
		}
	}
	return models.DefaultCategory
}
