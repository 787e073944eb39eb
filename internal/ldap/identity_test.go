package ldap

import (
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S-1-5-21-1004336348-1177238915-682003330-1105
var testSIDBytes = []byte{
	0x01, 0x05, 0x00, 0x00, 0x00, 0x00, 0x00, 0x05,
	0x15, 0x00, 0x00, 0x00,
	0xdc, 0xf4, 0xdc, 0x3b,
	0x83, 0x3d, 0x2b, 0x46,
	0x82, 0x8b, 0xa6, 0x28,
	0x51, 0x04, 0x00, 0x00,
}

// 3f2504e0-4f89-11d3-9a0c-0305e82c3301 in Active Directory byte order
var testGUIDBytes = []byte{
	0xe0, 0x04, 0x25, 0x3f,
	0x89, 0x4f,
	0xd3, 0x11,
	0x9a, 0x0c, 0x03, 0x05, 0xe8, 0x2c, 0x33, 0x01,
}

func entryWithRaw(dn string, raw map[string][]byte) *ldap.Entry {
	entry := ldap.NewEntry(dn, nil)
	for name, value := range raw {
		entry.Attributes = append(entry.Attributes, &ldap.EntryAttribute{
			Name:       name,
			Values:     []string{string(value)},
			ByteValues: [][]byte{value},
		})
	}
	return entry
}

func TestConvertBinarySIDToString(t *testing.T) {
	got, err := ConvertBinarySIDToString(testSIDBytes)
	require.NoError(t, err)
	assert.Equal(t, "S-1-5-21-1004336348-1177238915-682003330-1105", got)

	_, err = ConvertBinarySIDToString([]byte{0x01})
	assert.Error(t, err)
}

func TestGUIDBytesToString(t *testing.T) {
	got, err := GUIDBytesToString(testGUIDBytes)
	require.NoError(t, err)
	assert.Equal(t, "3f2504e0-4f89-11d3-9a0c-0305e82c3301", got)

	_, err = GUIDBytesToString(testGUIDBytes[:8])
	assert.Error(t, err)
}

func TestExtractSIDAndGUID(t *testing.T) {
	entry := entryWithRaw("CN=HOST,CN=Computers,DC=example,DC=com", map[string][]byte{
		"objectSid":  testSIDBytes,
		"objectGUID": testGUIDBytes,
	})

	sid, err := ExtractSID(entry)
	require.NoError(t, err)
	assert.Equal(t, "S-1-5-21-1004336348-1177238915-682003330-1105", sid)

	guid, err := ExtractGUID(entry)
	require.NoError(t, err)
	assert.Equal(t, "3f2504e0-4f89-11d3-9a0c-0305e82c3301", guid)

	_, err = ExtractSID(nil)
	assert.Error(t, err)
	_, err = ExtractGUID(ldap.NewEntry("CN=x", nil))
	assert.Error(t, err)
}

func TestIdentityFields(t *testing.T) {
	entry := entryWithRaw("CN=HOST,DC=example,DC=com", map[string][]byte{
		"objectGUID": testGUIDBytes,
	})

	fields := IdentityFields(entry)
	assert.Equal(t, "CN=HOST,DC=example,DC=com", fields["dn"])
	assert.Equal(t, "3f2504e0-4f89-11d3-9a0c-0305e82c3301", fields["object_guid"])
	assert.NotContains(t, fields, "object_sid")

	assert.Empty(t, IdentityFields(nil))
}
