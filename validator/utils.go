package validator

import (
	"fmt"
	"time"
)

const dayLayout = "2006-01-02"

func formatDay(day int64) string {
	return fmt.Sprintf("%v (%v)", day, time.Unix(day, 0).UTC().Format(dayLayout))
}

// ParseDay turns YYYY-MM-DD into the unix time of that UTC midnight.
func ParseDay(s string) (int64, error) {
	t, err := time.ParseInLocation(dayLayout, s, time.UTC)
	if err != nil {
		return 0, fmt.Errorf("invalid day %q: %w", s, err)
	}
	return t.Unix(), nil
}
