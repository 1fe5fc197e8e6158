package services

import (
	"errors"
	"math"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// isUniqueViolation reports whether err is a sqlite unique-constraint error.
func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// nowUTC is the single clock for store writes. All Go-side timestamps are
// UTC so lexicographic and chronological order coincide in sqlite
// comparisons.
func nowUTC() time.Time {
	return time.Now().UTC()
}

// roundMillis converts a duration to milliseconds with two decimal places.
func roundMillis(d time.Duration) float64 {
	ms := float64(d.Nanoseconds()) / 1e6
	return math.Round(ms*100) / 100
}
