package ldap

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// userAccountControl flags relevant to computer accounts.
const (
	UACAccountDisabled         int32 = 0x00000002 // Account is disabled
	UACWorkstationTrustAccount int32 = 0x00001000 // Workstation or member server
	UACServerTrustAccount      int32 = 0x00002000 // Domain controller
	UACPasswordNeverExpires    int32 = 0x00010000
)

const (
	// fileTimeEpochOffset is the number of 100-nanosecond intervals between
	// 1601-01-01 and 1970-01-01.
	fileTimeEpochOffset int64 = 116444736000000000
	ticksPerSecond      int64 = 10_000_000
)

// FileTimeToTime converts a Windows FILETIME (100ns ticks since 1601, UTC)
// into a time.Time. Seconds and ticks are split so values past 2262 do not
// overflow.
func FileTimeToTime(ticks int64) time.Time {
	sec := ticks/ticksPerSecond - fileTimeEpochOffset/ticksPerSecond
	nsec := ticks % ticksPerSecond * 100
	return time.Unix(sec, nsec).UTC()
}

// TimeToFileTime converts t into a Windows FILETIME.
func TimeToFileTime(t time.Time) int64 {
	return (t.Unix()+fileTimeEpochOffset/ticksPerSecond)*ticksPerSecond + int64(t.Nanosecond())/100
}

// ParseFileTime parses the decimal string form of a FILETIME attribute.
func ParseFileTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	ticks, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp: %w", err)
	}
	if ticks < 0 {
		return time.Time{}, fmt.Errorf("negative timestamp %d", ticks)
	}

	return FileTimeToTime(ticks), nil
}

// AccountKind describes a computer account from its userAccountControl value.
func AccountKind(uac int32) string {
	switch {
	case uac&UACServerTrustAccount != 0:
		return "domain_controller"
	case uac&UACWorkstationTrustAccount != 0:
		return "workstation"
	default:
		return "other"
	}
}

// ParseUserAccountControl parses a userAccountControl attribute value.
func ParseUserAccountControl(value string) (int32, error) {
	uac, err := strconv.ParseInt(strings.TrimSpace(value), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid userAccountControl %q: %w", value, err)
	}
	return int32(uac), nil
}
