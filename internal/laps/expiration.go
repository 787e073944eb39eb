package laps

import (
	"strconv"
	"time"

	ldapclient "github.com/isometry/adlaps/internal/ldap"
)

// NeverRotatedExpiration is reported for a record that has no stored
// expiration. It lies in 2001, so any rotation policy treats it as due.
const NeverRotatedExpiration = "126227988000000000"

// ExpirationFromTime renders t in the directory's expiration format.
func ExpirationFromTime(t time.Time) string {
	return strconv.FormatInt(ldapclient.TimeToFileTime(t), 10)
}

// ParseExpiration converts a raw expiration into a time.
func ParseExpiration(raw string) (time.Time, error) {
	return ldapclient.ParseFileTime(raw)
}

// ExpirationDue reports whether a password with expiration raw must be
// rotated at now. An unparsable expiration is always due.
func ExpirationDue(raw string, now time.Time) bool {
	t, err := ParseExpiration(raw)
	if err != nil {
		return true
	}
	return !now.Before(t)
}
