package history

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/forts-trader/pkg/dates"
)

// ParseContractMonth extracts the delivery month from a futures code such as
// "Si-3.18".
func ParseContractMonth(securityCode string) (time.Time, error) {
	dash := strings.IndexByte(securityCode, '-')
	if dash < 0 {
		return time.Time{}, fmt.Errorf("invalid futures code %q", securityCode)
	}
	parts := strings.SplitN(securityCode[dash+1:], ".", 2)
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("invalid futures code %q", securityCode)
	}
	month, err := strconv.Atoi(parts[0])
	if err != nil || month < 1 || month > 12 {
		return time.Time{}, fmt.Errorf("invalid futures code %q", securityCode)
	}
	year, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid futures code %q", securityCode)
	}
	return time.Date(2000+year, time.Month(month), 1, 0, 0, 0, 0, time.Local), nil
}

// ExpirationDate returns the base expiration of a futures code.
// Since July 2015 FORTS futures expire on the third Thursday of the delivery
// month; before that on the 15th. The later of the two dates is used so both
// regimes are covered.
func ExpirationDate(securityCode string) (time.Time, error) {
	month, err := ParseContractMonth(securityCode)
	if err != nil {
		return time.Time{}, err
	}

	fifteenth := month.AddDate(0, 0, 14)
	thirdThursday := dates.NextWeekday(month, time.Thursday).AddDate(0, 0, 14)
	if thirdThursday.After(fifteenth) {
		return thirdThursday, nil
	}
	return fifteenth, nil
}

// EnumerateContracts lists the quarterly contract codes of a futures series
// from 2009 through next month's year, e.g. "Si-3.18", "Si-6.18", ...
func EnumerateContracts(code string, today time.Time) []string {
	finishYear := today.AddDate(0, 1, 0).Year()

	var result []string
	for year := 2009; year <= finishYear; year++ {
		for month := 3; month <= 12; month += 3 {
			result = append(result, fmt.Sprintf("%s-%d.%02d", code, month, year%100))
		}
	}
	return result
}
