package fingerprint

import (
	"strconv"
	"strings"
)

// Installment is one position of a deferred-payment series, e.g. 3 of 12.
type Installment struct {
	Index int
	Total int
}

// Series reports whether the purchase is split over more than one statement.
func (i Installment) Series() bool { return i.Total > 1 }

// ParseInstallments reads the "n/m" notation card statements print next to
// deferred purchases.
func ParseInstallments(s string) (Installment, bool) {
	idxStr, totalStr, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return Installment{}, false
	}
	idx, err := strconv.Atoi(strings.TrimSpace(idxStr))
	if err != nil {
		return Installment{}, false
	}
	total, err := strconv.Atoi(strings.TrimSpace(totalStr))
	if err != nil {
		return Installment{}, false
	}
	if idx < 1 || total < 1 || idx > total {
		return Installment{}, false
	}
	return Installment{Index: idx, Total: total}, true
}
