package periodclock

import (
	"fmt"
	"regexp"
	"strconv"
)

const (
	letters   = 26
	codeSpace = letters * letters
)

var orderIDPattern = regexp.MustCompile(`^([A-Z])([A-Z])(\d{3,})$`)

// PeriodCode renders a period index as a two-letter prefix: 0 is "AA", 1 is "AB",
// 26 is "BA". Codes wrap after "ZZ"; negative indices wrap the other way.
func PeriodCode(k int) string {
	k %= codeSpace
	if k < 0 {
		k += codeSpace
	}

	return string([]byte{byte('A' + k/letters), byte('A' + k%letters)})
}

// NextOrderID returns the order id that follows lastID for an order taken on date.
// Ids are the period code followed by a sequence of at least three digits. The
// sequence restarts at 001 when the period changes and grows past 999 otherwise.
func (c *Clock) NextOrderID(date Date, lastID string) (string, error) {
	k, err := c.PeriodIndex(date)
	if err != nil {
		return "", err
	}

	current := PeriodCode(k)

	match := orderIDPattern.FindStringSubmatch(lastID)
	if match == nil {
		return current + "001", nil
	}

	if match[1]+match[2] != current {
		return current + "001", nil
	}

	seq, err := strconv.Atoi(match[3])
	if err != nil {
		return current + "001", nil
	}

	return fmt.Sprintf("%s%03d", current, seq+1), nil
}
