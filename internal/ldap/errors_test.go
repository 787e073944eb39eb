package ldap

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
)

func TestNewLDAPError(t *testing.T) {
	assert.Nil(t, NewLDAPError("search", nil))

	bindErr := ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("80090308: LdapErr"))
	got := NewLDAPError("bind", bindErr)
	assert.Equal(t, "bind", got.Operation)
	assert.Equal(t, uint16(ldap.LDAPResultInvalidCredentials), got.LDAPCode)
	assert.Equal(t, ErrorCategoryAuthentication, got.Category)
	assert.False(t, got.Retryable)
	assert.Same(t, bindErr, got.Cause)

	dialErr := errors.New("dial tcp 10.0.0.5:636: connection refused")
	got = NewLDAPError("connect", dialErr)
	assert.Equal(t, ErrorCategoryConnection, got.Category)
	assert.True(t, got.Retryable)
	assert.ErrorIs(t, got, dialErr)
}

func TestLDAPError_Error(t *testing.T) {
	cases := map[string]struct {
		err  *LDAPError
		want string
	}{
		"message only": {
			err:  &LDAPError{Operation: "search", Message: "Size limit exceeded"},
			want: "LDAP search failed - Size limit exceeded",
		},
		"code server message and DN": {
			err: &LDAPError{
				Operation: "modify",
				LDAPCode:  ldap.LDAPResultInsufficientAccessRights,
				Message:   "Insufficient access rights",
				ServerMsg: "00002098: SecErr",
				DN:        "CN=HOST,CN=Computers,DC=example,DC=com",
			},
			want: "LDAP modify failed (code 50) - Insufficient access rights - server: 00002098: SecErr - DN: CN=HOST,CN=Computers,DC=example,DC=com",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.EqualError(t, tc.err, tc.want)
		})
	}
}

func TestClassifyResult(t *testing.T) {
	tests := []struct {
		name      string
		code      uint16
		want      ErrorCategory
		retryable bool
	}{
		{"invalid credentials", ldap.LDAPResultInvalidCredentials, ErrorCategoryAuthentication, false},
		{"strong auth required", ldap.LDAPResultStrongAuthRequired, ErrorCategoryAuthentication, false},
		{"insufficient access", ldap.LDAPResultInsufficientAccessRights, ErrorCategoryPermission, false},
		{"unwilling to perform", ldap.LDAPResultUnwillingToPerform, ErrorCategoryPermission, false},
		{"referral from read-only DC", ldap.LDAPResultReferral, ErrorCategoryReadOnly, false},
		{"no such object", ldap.LDAPResultNoSuchObject, ErrorCategoryNotFound, false},
		{"undefined attribute", ldap.LDAPResultUndefinedAttributeType, ErrorCategoryNotFound, false},
		{"constraint violation", ldap.LDAPResultConstraintViolation, ErrorCategoryValidation, false},
		{"size limit exceeded", ldap.LDAPResultSizeLimitExceeded, ErrorCategoryValidation, false},
		{"server busy", ldap.LDAPResultBusy, ErrorCategoryServer, true},
		{"connect error", ldap.LDAPResultConnectError, ErrorCategoryConnection, true},
		{"network error", ldap.ErrorNetwork, ErrorCategoryConnection, false},
		{"unknown code", 9999, ErrorCategoryUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			class := classifyResult(tt.code)
			assert.Equal(t, tt.want, class.category)
			assert.Equal(t, tt.retryable, class.retryable)
			assert.NotEmpty(t, class.message)
		})
	}
}

func TestCategorizeGenericError(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorCategory
	}{
		{errors.New("dial tcp: connection refused"), ErrorCategoryConnection},
		{errors.New("lookup dc1: no such host"), ErrorCategoryConnection},
		{errors.New("kerberos: KDC_ERR_PREAUTH_FAILED"), ErrorCategoryAuthentication},
		{errors.New("access denied"), ErrorCategoryPermission},
		{errors.New("something odd"), ErrorCategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, categorizeGenericError(tt.err))
		})
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"busy", ldap.NewError(ldap.LDAPResultBusy, errors.New("busy")), true},
		{"unavailable", ldap.NewError(ldap.LDAPResultUnavailable, errors.New("unavailable")), true},
		{"insufficient access", ldap.NewError(ldap.LDAPResultInsufficientAccessRights, errors.New("denied")), false},
		{"retryable connection error", NewConnectionError("dial", true, errors.New("x")), true},
		{"non-retryable connection error", NewConnectionError("dial", false, errors.New("x")), false},
		{"generic timeout", errors.New("i/o timeout"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryableError(tt.err))
		})
	}
}

func TestGetErrorCategory_Wrapped(t *testing.T) {
	base := ldap.NewError(ldap.LDAPResultInsufficientAccessRights, errors.New("00002098: SecErr"))
	wrapped := fmt.Errorf("probe: %w", NewLDAPErrorWithDN("modify", "CN=HOST,DC=example,DC=com", base))

	assert.Equal(t, ErrorCategoryPermission, GetErrorCategory(wrapped))
	assert.True(t, IsPermissionError(wrapped))

	var ldapErr *LDAPError
	if assert.ErrorAs(t, wrapped, &ldapErr) {
		assert.Equal(t, "CN=HOST,DC=example,DC=com", ldapErr.DN)
		assert.Equal(t, "00002098: SecErr", ldapErr.ServerMsg)
		assert.Equal(t, "Insufficient access rights", ldapErr.Message)
	}

	referral := NewLDAPError("modify", ldap.NewError(ldap.LDAPResultReferral, errors.New("referral")))
	assert.Equal(t, ErrorCategoryReadOnly, GetErrorCategory(referral))
	assert.Equal(t, ErrorCategoryNotFound, GetErrorCategory(ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("gone"))))
	assert.Equal(t, ErrorCategoryUnknown, GetErrorCategory(nil))
}

func TestConnectionError(t *testing.T) {
	cause := errors.New("dial tcp: i/o timeout")
	err := NewConnectionError("failed to connect to dc1.example.com", false, cause)

	assert.EqualError(t, err, "failed to connect to dc1.example.com: dial tcp: i/o timeout")
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsRetryableError(fmt.Errorf("connect: %w", err)))
	assert.EqualError(t, NewConnectionError("no servers", false, nil), "no servers")
}
