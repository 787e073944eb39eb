package ldap

import (
	"fmt"

	"github.com/bwmarrin/go-objectsid"
	"github.com/go-ldap/ldap/v3"
	"github.com/google/uuid"
)

// GUIDBytesLength is the size of a binary objectGUID.
const GUIDBytesLength = 16

// ConvertBinarySIDToString converts a binary objectSid to S-1-5-21-... form.
func ConvertBinarySIDToString(binarySID []byte) (string, error) {
	if len(binarySID) < 8 {
		return "", fmt.Errorf("binary SID too short: %d bytes", len(binarySID))
	}
	sid := objectsid.Decode(binarySID)
	return sid.String(), nil
}

// ExtractSID returns the entry's objectSid as a string.
func ExtractSID(entry *ldap.Entry) (string, error) {
	if entry == nil {
		return "", fmt.Errorf("LDAP entry cannot be nil")
	}

	sidBytes := entry.GetRawAttributeValue("objectSid")
	if len(sidBytes) == 0 {
		return "", fmt.Errorf("objectSid attribute not found in entry")
	}

	return ConvertBinarySIDToString(sidBytes)
}

// GUIDBytesToString converts Active Directory's mixed-endian objectGUID bytes
// to the canonical hyphenated form. Data1, Data2 and Data3 are little-endian,
// Data4 is big-endian.
func GUIDBytesToString(guidBytes []byte) (string, error) {
	if len(guidBytes) != GUIDBytesLength {
		return "", fmt.Errorf("invalid GUID byte length: expected %d, got %d", GUIDBytesLength, len(guidBytes))
	}

	b := make([]byte, GUIDBytesLength)
	b[0], b[1], b[2], b[3] = guidBytes[3], guidBytes[2], guidBytes[1], guidBytes[0]
	b[4], b[5] = guidBytes[5], guidBytes[4]
	b[6], b[7] = guidBytes[7], guidBytes[6]
	copy(b[8:], guidBytes[8:])

	id, err := uuid.FromBytes(b)
	if err != nil {
		return "", fmt.Errorf("failed to decode GUID: %w", err)
	}
	return id.String(), nil
}

// ExtractGUID returns the entry's objectGUID as a string.
func ExtractGUID(entry *ldap.Entry) (string, error) {
	if entry == nil {
		return "", fmt.Errorf("LDAP entry cannot be nil")
	}

	guidBytes := entry.GetRawAttributeValue("objectGUID")
	if len(guidBytes) == 0 {
		return "", fmt.Errorf("objectGUID attribute not found in entry")
	}

	return GUIDBytesToString(guidBytes)
}

// IdentityFields returns the decoded SID and GUID of an entry for logging.
// Attributes that are absent or malformed are left out.
func IdentityFields(entry *ldap.Entry) map[string]any {
	fields := map[string]any{}
	if entry == nil {
		return fields
	}
	fields["dn"] = entry.DN
	if sid, err := ExtractSID(entry); err == nil {
		fields["object_sid"] = sid
	}
	if guid, err := ExtractGUID(entry); err == nil {
		fields["object_guid"] = guid
	}
	return fields
}
