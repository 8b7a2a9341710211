package chronicling

import (
	"fmt"
	"strings"
)

// FormatSearchDate converts a date into the MM/DD/YYYY form the search
// endpoint expects. Bare years expand to the first or last day of the
// year depending on which end of the range they bound. Dates already in
// an unrecognized format pass through unchanged.
func FormatSearchDate(date string, isEndDate bool) string {
	if len(date) == 4 {
		if isEndDate {
			return fmt.Sprintf("12/31/%s", date)
		}
		return fmt.Sprintf("01/01/%s", date)
	}
	if len(date) == 10 && strings.Count(date, "-") == 2 {
		parts := strings.Split(date, "-")
		return fmt.Sprintf("%s/%s/%s", parts[1], parts[2], parts[0])
	}
	return date
}
