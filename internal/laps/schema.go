package laps

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	ldapclient "github.com/isometry/adlaps/internal/ldap"
)

// PlaceholderPassword is written by the write probe when the record has no
// expiration yet. It is overwritten by the first real rotation.
const PlaceholderPassword = "Th1sIsN0tth3P@ssword"

// Schema names the attributes a password and its expiration are stored in,
// and how the password is encoded.
type Schema struct {
	Name                string
	PasswordAttribute   string
	ExpirationAttribute string

	encode func(account, password string, updated time.Time) (string, error)
}

// EncodePassword renders password for the password attribute.
func (s Schema) EncodePassword(account, password string, updated time.Time) (string, error) {
	if s.encode == nil {
		return password, nil
	}
	return s.encode(account, password, updated)
}

// LegacySchema stores the password in plain text in ms-Mcs-AdmPwd.
var LegacySchema = Schema{
	Name:                "legacy",
	PasswordAttribute:   "ms-Mcs-AdmPwd",
	ExpirationAttribute: "ms-Mcs-AdmPwdExpirationTime",
}

// WindowsSchema stores the password in msLAPS-Password as the JSON document
// Windows LAPS writes for unencrypted passwords.
var WindowsSchema = Schema{
	Name:                "windows",
	PasswordAttribute:   "msLAPS-Password",
	ExpirationAttribute: "msLAPS-PasswordExpirationTime",
	encode:              encodeWindowsPassword,
}

// windowsPassword is the msLAPS-Password document. T is the update time as
// a hexadecimal FILETIME.
type windowsPassword struct {
	N string `json:"n"`
	T string `json:"t"`
	P string `json:"p"`
}

func encodeWindowsPassword(account, password string, updated time.Time) (string, error) {
	doc, err := json.Marshal(windowsPassword{
		N: account,
		T: strconv.FormatInt(ldapclient.TimeToFileTime(updated), 16),
		P: password,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode password document: %w", err)
	}
	return string(doc), nil
}

// SchemaByName returns the schema called name ("legacy" or "windows").
func SchemaByName(name string) (Schema, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", LegacySchema.Name:
		return LegacySchema, nil
	case WindowsSchema.Name:
		return WindowsSchema, nil
	default:
		return Schema{}, fmt.Errorf("unknown attribute schema %q", name)
	}
}
