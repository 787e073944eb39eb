package laps

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ldapclient "github.com/isometry/adlaps/internal/ldap"
)

const (
	legacyPwd = "ms-Mcs-AdmPwd"
	legacyExp = "ms-Mcs-AdmPwdExpirationTime"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestTool(schema Schema) (*AttributeTool, *recordingLogger) {
	logger := &recordingLogger{}
	tool := NewAttributeTool(schema, "admin", logger)
	tool.now = func() time.Time { return fixedNow }
	return tool, logger
}

func permissionError() error {
	return ldapclient.NewLDAPErrorWithDN("modify", "CN=HOST,CN=Computers,DC=example,DC=com",
		ldap.NewError(ldap.LDAPResultInsufficientAccessRights, errors.New("00002098: SecErr")))
}

func TestReadExpiration(t *testing.T) {
	t.Run("present value returned unchanged", func(t *testing.T) {
		tool, logger := newTestTool(LegacySchema)
		record := newFakeRecord(map[string]string{legacyExp: "133618032000000000"})

		assert.Equal(t, "133618032000000000", tool.ReadExpiration(t.Context(), record))
		assert.Zero(t, logger.count("warn"))
		assert.Empty(t, record.writes)
	})

	t.Run("missing value yields sentinel and warning", func(t *testing.T) {
		tool, logger := newTestTool(LegacySchema)
		record := newFakeRecord(nil)

		assert.Equal(t, NeverRotatedExpiration, tool.ReadExpiration(t.Context(), record))
		require.Equal(t, 1, logger.count("warn"))
		assert.Equal(t, WarningMissingExpiration, logger.entries[0].fields["warning"])
		assert.NotContains(t, logger.entries[0].fields, "error")
		assert.Empty(t, record.writes)
	})

	t.Run("read failure yields sentinel and warning", func(t *testing.T) {
		tool, logger := newTestTool(LegacySchema)
		record := newFakeRecord(map[string]string{legacyExp: "1"})
		record.readErr[legacyExp] = errors.New("connection reset")

		assert.Equal(t, NeverRotatedExpiration, tool.ReadExpiration(t.Context(), record))
		require.Equal(t, 1, logger.count("warn"))
		assert.Equal(t, "connection reset", logger.entries[0].fields["error"])
	})
}

func TestProbeWritable(t *testing.T) {
	t.Run("expiration written back to itself", func(t *testing.T) {
		tool, _ := newTestTool(LegacySchema)
		record := newFakeRecord(map[string]string{legacyExp: "133618032000000000"})

		require.NoError(t, tool.ProbeWritable(t.Context(), record))
		assert.Equal(t, []write{{name: legacyExp, value: "133618032000000000"}}, record.writes)
		assert.NotContains(t, record.attrs, legacyPwd, "credential must be untouched")
		assert.True(t, tool.probed[record.DN()])
	})

	t.Run("placeholder written when no expiration", func(t *testing.T) {
		tool, _ := newTestTool(LegacySchema)
		record := newFakeRecord(nil)

		require.NoError(t, tool.ProbeWritable(t.Context(), record))
		assert.Equal(t, []write{{name: legacyPwd, value: PlaceholderPassword}}, record.writes)
	})

	t.Run("placeholder encoded for windows schema", func(t *testing.T) {
		tool, _ := newTestTool(WindowsSchema)
		record := newFakeRecord(nil)

		require.NoError(t, tool.ProbeWritable(t.Context(), record))
		require.Len(t, record.writes, 1)
		assert.Equal(t, "msLAPS-Password", record.writes[0].name)

		var doc map[string]string
		require.NoError(t, json.Unmarshal([]byte(record.writes[0].value), &doc))
		assert.Equal(t, PlaceholderPassword, doc["p"])
		assert.Equal(t, "admin", doc["n"])
	})

	t.Run("read failure writes nothing", func(t *testing.T) {
		tool, logger := newTestTool(LegacySchema)
		record := newFakeRecord(map[string]string{
			legacyExp: "133618032000000000",
			legacyPwd: "current-password",
		})
		record.readErr[legacyExp] = errors.New("connection reset")

		err := tool.ProbeWritable(t.Context(), record)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNotWritable)
		assert.Empty(t, record.writes)
		assert.Equal(t, "current-password", record.attrs[legacyPwd])
		assert.False(t, tool.probed[record.DN()])

		entry, ok := logger.find("error", "Unable to read the current expiration time from Active Directory. The record was not modified.")
		require.True(t, ok)
		assert.Equal(t, "connection reset", entry.fields["error"])
	})

	t.Run("write failure is not writable", func(t *testing.T) {
		tool, logger := newTestTool(LegacySchema)
		record := newFakeRecord(map[string]string{legacyExp: "133618032000000000"})
		record.writeErr[legacyExp] = permissionError()

		err := tool.ProbeWritable(t.Context(), record)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNotWritable)
		assert.False(t, tool.probed[record.DN()])

		var ldapErr *ldapclient.LDAPError
		assert.ErrorAs(t, err, &ldapErr)

		entry, ok := logger.find("error", "Unable to test setting the current expiration time in Active Directory to the same value. Either the record is not writable or the domain controller is not writable.")
		require.True(t, ok)
		assert.Equal(t, "permission", entry.fields["category"])
		assert.Equal(t, true, entry.fields["permission_denied"])
	})
}

func TestSetPassword(t *testing.T) {
	cred := Credential{Password: "n3w-S3cret!", Expiration: "133700000000000000"}

	probedTool := func(t *testing.T, record *fakeRecord) (*AttributeTool, *recordingLogger) {
		t.Helper()
		tool, logger := newTestTool(LegacySchema)
		require.NoError(t, tool.ProbeWritable(t.Context(), record))
		record.writes = nil
		return tool, logger
	}

	t.Run("credential written before expiration", func(t *testing.T) {
		record := newFakeRecord(map[string]string{legacyExp: "1"})
		tool, logger := probedTool(t, record)

		require.NoError(t, tool.SetPassword(t.Context(), record, cred))
		assert.Equal(t, []write{
			{name: legacyPwd, value: cred.Password},
			{name: legacyExp, value: cred.Expiration},
		}, record.writes)
		assert.Zero(t, logger.count("warn"))
	})

	t.Run("credential failure skips expiration", func(t *testing.T) {
		record := newFakeRecord(map[string]string{legacyExp: "1"})
		tool, logger := probedTool(t, record)
		record.writeErr[legacyPwd] = permissionError()

		err := tool.SetPassword(t.Context(), record, cred)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSetPassword)
		assert.Equal(t, []write{{name: legacyPwd, value: cred.Password}}, record.writes)
		assert.Equal(t, "1", record.attrs[legacyExp])

		_, ok := logger.find("error", "There was an error setting the password for this device...")
		assert.True(t, ok)
	})

	t.Run("expiration failure is a warning", func(t *testing.T) {
		record := newFakeRecord(map[string]string{legacyExp: "1"})
		tool, logger := probedTool(t, record)
		record.writeErr[legacyExp] = errors.New("busy")

		require.NoError(t, tool.SetPassword(t.Context(), record, cred))
		assert.Len(t, record.writes, 2)
		assert.Equal(t, cred.Password, record.attrs[legacyPwd])

		entry, ok := logger.find("warn", "There was an error setting the new password expiration for this device...")
		require.True(t, ok)
		assert.Equal(t, WarningSetExpiration, entry.fields["warning"])
	})

	t.Run("requires probe", func(t *testing.T) {
		tool, _ := newTestTool(LegacySchema)
		record := newFakeRecord(nil)

		err := tool.SetPassword(t.Context(), record, cred)
		assert.ErrorIs(t, err, ErrNotProbed)
		assert.Empty(t, record.writes)
	})

	t.Run("rejects empty credential parts", func(t *testing.T) {
		record := newFakeRecord(map[string]string{legacyExp: "1"})
		tool, _ := probedTool(t, record)

		assert.ErrorIs(t, tool.SetPassword(t.Context(), record, Credential{Expiration: "1"}), ErrInvalidCredential)
		assert.ErrorIs(t, tool.SetPassword(t.Context(), record, Credential{Password: "x"}), ErrInvalidCredential)
		assert.Empty(t, record.writes)
	})

	t.Run("windows schema document", func(t *testing.T) {
		record := newFakeRecord(map[string]string{"msLAPS-PasswordExpirationTime": "1"})
		tool, _ := newTestTool(WindowsSchema)
		require.NoError(t, tool.ProbeWritable(t.Context(), record))
		record.writes = nil

		require.NoError(t, tool.SetPassword(t.Context(), record, cred))
		require.Len(t, record.writes, 2)
		assert.Equal(t, "msLAPS-Password", record.writes[0].name)
		assert.JSONEq(t,
			`{"n":"admin","t":"`+expectedHexFileTime(fixedNow)+`","p":"n3w-S3cret!"}`,
			record.writes[0].value)
		assert.Equal(t, write{name: "msLAPS-PasswordExpirationTime", value: cred.Expiration}, record.writes[1])
	})
}

func TestOperate(t *testing.T) {
	t.Run("requires exactly one record", func(t *testing.T) {
		tool, _ := newTestTool(LegacySchema)

		_, err := tool.Operate(t.Context(), nil, OpReadExpiration, Credential{})
		assert.ErrorIs(t, err, ErrAmbiguousRecord)

		_, err = tool.Operate(t.Context(), []Record{newFakeRecord(nil), newFakeRecord(nil)}, OpReadExpiration, Credential{})
		assert.ErrorIs(t, err, ErrAmbiguousRecord)
	})

	t.Run("dispatches", func(t *testing.T) {
		tool, _ := newTestTool(LegacySchema)
		record := newFakeRecord(map[string]string{legacyExp: "133618032000000000"})
		records := []Record{record}

		got, err := tool.Operate(t.Context(), records, OpReadExpiration, Credential{})
		require.NoError(t, err)
		assert.Equal(t, "133618032000000000", got)

		got, err = tool.Operate(t.Context(), records, OpProbeWritable, Credential{})
		require.NoError(t, err)
		assert.Empty(t, got)

		_, err = tool.Operate(t.Context(), records, OpSetPassword, Credential{Password: "p", Expiration: "2"})
		require.NoError(t, err)
		assert.Equal(t, "p", record.attrs[legacyPwd])
	})

	t.Run("unknown operation", func(t *testing.T) {
		tool, _ := newTestTool(LegacySchema)
		_, err := tool.Operate(t.Context(), []Record{newFakeRecord(nil)}, Operation(42), Credential{})
		assert.ErrorIs(t, err, ErrUnknownOperation)
		assert.Contains(t, err.Error(), "operation(42)")
	})
}
