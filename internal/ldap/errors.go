package ldap

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// ErrorCategory groups LDAP failures by what the caller can do about them.
type ErrorCategory string

const (
	ErrorCategoryConnection     ErrorCategory = "connection"
	ErrorCategoryAuthentication ErrorCategory = "authentication"
	ErrorCategoryPermission     ErrorCategory = "permission"
	ErrorCategoryReadOnly       ErrorCategory = "read_only"
	ErrorCategoryNotFound       ErrorCategory = "not_found"
	ErrorCategoryValidation     ErrorCategory = "validation"
	ErrorCategoryServer         ErrorCategory = "server"
	ErrorCategoryUnknown        ErrorCategory = "unknown"
)

type resultClass struct {
	category  ErrorCategory
	retryable bool
	message   string
}

// resultClasses covers the result codes a domain controller returns to a
// computer account reading and writing its own record.
var resultClasses = map[uint16]resultClass{
	ldap.LDAPResultInvalidCredentials:          {ErrorCategoryAuthentication, false, "Invalid credentials"},
	ldap.LDAPResultInappropriateAuthentication: {ErrorCategoryAuthentication, false, "Inappropriate authentication method"},
	ldap.LDAPResultStrongAuthRequired:          {ErrorCategoryAuthentication, false, "Strong authentication required"},
	ldap.LDAPResultConfidentialityRequired:     {ErrorCategoryAuthentication, false, "Confidentiality required"},
	ldap.LDAPResultAuthMethodNotSupported:      {ErrorCategoryAuthentication, false, "Authentication method not supported"},

	ldap.LDAPResultInsufficientAccessRights: {ErrorCategoryPermission, false, "Insufficient access rights"},
	ldap.LDAPResultUnwillingToPerform:       {ErrorCategoryPermission, false, "Server is unwilling to perform the operation"},

	// Read-only domain controllers answer writes with a referral.
	ldap.LDAPResultReferral: {ErrorCategoryReadOnly, false, "Server referred the operation elsewhere (read-only domain controller?)"},

	ldap.LDAPResultNoSuchObject:           {ErrorCategoryNotFound, false, "Requested object does not exist"},
	ldap.LDAPResultNoSuchAttribute:        {ErrorCategoryNotFound, false, "Requested attribute does not exist"},
	ldap.LDAPResultUndefinedAttributeType: {ErrorCategoryNotFound, false, "Attribute type is not defined (schema not extended?)"},

	ldap.LDAPResultInvalidAttributeSyntax: {ErrorCategoryValidation, false, "Invalid attribute syntax"},
	ldap.LDAPResultConstraintViolation:    {ErrorCategoryValidation, false, "Constraint violation"},
	ldap.LDAPResultInvalidDNSyntax:        {ErrorCategoryValidation, false, "Invalid DN syntax"},
	ldap.LDAPResultNamingViolation:        {ErrorCategoryValidation, false, "Naming violation"},
	ldap.LDAPResultObjectClassViolation:   {ErrorCategoryValidation, false, "Object class violation"},
	ldap.LDAPResultSizeLimitExceeded:      {ErrorCategoryValidation, false, "LDAP size limit exceeded, results are incomplete"},
	ldap.LDAPResultFilterError:            {ErrorCategoryValidation, false, "Invalid search filter"},

	ldap.LDAPResultBusy:               {ErrorCategoryServer, true, "Server is busy"},
	ldap.LDAPResultUnavailable:        {ErrorCategoryServer, true, "Server is unavailable"},
	ldap.LDAPResultServerDown:         {ErrorCategoryServer, true, "Server is down"},
	ldap.LDAPResultTimeLimitExceeded:  {ErrorCategoryServer, true, "LDAP time limit exceeded"},
	ldap.LDAPResultAdminLimitExceeded: {ErrorCategoryServer, false, "Administrative limit exceeded"},
	ldap.LDAPResultTimeout:            {ErrorCategoryServer, false, "Operation timed out"},
	ldap.LDAPResultOperationsError:    {ErrorCategoryServer, false, "LDAP operations error"},

	ldap.LDAPResultConnectError:  {ErrorCategoryConnection, true, "Connection error"},
	ldap.ErrorNetwork:            {ErrorCategoryConnection, false, "Network error"},
	ldap.LDAPResultProtocolError: {ErrorCategoryConnection, false, "LDAP protocol error"},
}

func classifyResult(code uint16) resultClass {
	if class, ok := resultClasses[code]; ok {
		return class
	}
	return resultClass{ErrorCategoryUnknown, false, fmt.Sprintf("Unknown LDAP error (code %d)", code)}
}

// LDAPError describes a failed directory operation.
type LDAPError struct {
	Operation string
	Category  ErrorCategory
	LDAPCode  uint16
	Message   string
	ServerMsg string // diagnostic message from the server
	DN        string
	Retryable bool
	Cause     error
}

func (e *LDAPError) Error() string {
	head := fmt.Sprintf("LDAP %s failed", e.Operation)
	if e.LDAPCode > 0 {
		head = fmt.Sprintf("LDAP %s failed (code %d)", e.Operation, e.LDAPCode)
	}
	parts := []string{head}

	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.ServerMsg != "" && e.ServerMsg != e.Message {
		parts = append(parts, "server: "+e.ServerMsg)
	}
	if e.DN != "" {
		parts = append(parts, "DN: "+e.DN)
	}
	return strings.Join(parts, " - ")
}

func (e *LDAPError) IsRetryable() bool { return e.Retryable }

func (e *LDAPError) Unwrap() error { return e.Cause }

// NewLDAPError classifies err, which may be nil.
func NewLDAPError(operation string, err error) *LDAPError {
	if err == nil {
		return nil
	}

	out := &LDAPError{Operation: operation, Cause: err}

	var resultErr *ldap.Error
	if errors.As(err, &resultErr) {
		class := classifyResult(resultErr.ResultCode)
		out.LDAPCode = resultErr.ResultCode
		out.Category = class.category
		out.Retryable = class.retryable
		out.Message = class.message
		if resultErr.Err != nil {
			out.ServerMsg = resultErr.Err.Error()
		}
		return out
	}

	out.Category = categorizeGenericError(err)
	out.Retryable = isGenericErrorRetryable(err)
	out.Message = err.Error()
	return out
}

// NewLDAPErrorWithDN is NewLDAPError for an operation on one entry.
func NewLDAPErrorWithDN(operation, dn string, err error) *LDAPError {
	out := NewLDAPError(operation, err)
	if out != nil {
		out.DN = dn
	}
	return out
}

// categorizeGenericError classifies transport and Kerberos errors that carry
// no result code.
func categorizeGenericError(err error) ErrorCategory {
	msg := strings.ToLower(err.Error())

	switch {
	case containsAny(msg, "connection", "network", "timeout", "no such host", "broken pipe"):
		return ErrorCategoryConnection
	case containsAny(msg, "authentication", "credentials", "kerberos"):
		return ErrorCategoryAuthentication
	case containsAny(msg, "permission", "access", "denied"):
		return ErrorCategoryPermission
	default:
		return ErrorCategoryUnknown
	}
}

func isGenericErrorRetryable(err error) bool {
	return containsAny(strings.ToLower(err.Error()),
		"connection", "timeout", "network", "broken pipe",
		"temporary failure", "server temporarily unavailable")
}

func containsAny(s string, patterns ...string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// RetryableError is an error that knows whether retrying can help.
type RetryableError interface {
	error
	IsRetryable() bool
}

// ConnectionError reports a failure to reach or set up a session with a
// server.
type ConnectionError struct {
	message   string
	retryable bool
	cause     error
}

// NewConnectionError returns a ConnectionError.
func NewConnectionError(message string, retryable bool, cause error) *ConnectionError {
	return &ConnectionError{message: message, retryable: retryable, cause: cause}
}

func (e *ConnectionError) Error() string {
	if e.cause != nil {
		return e.message + ": " + e.cause.Error()
	}
	return e.message
}

func (e *ConnectionError) IsRetryable() bool { return e.retryable }

func (e *ConnectionError) Unwrap() error { return e.cause }

// IsRetryableError reports whether err is worth retrying.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var retryable RetryableError
	if errors.As(err, &retryable) {
		return retryable.IsRetryable()
	}

	var resultErr *ldap.Error
	if errors.As(err, &resultErr) {
		return classifyResult(resultErr.ResultCode).retryable
	}

	return isGenericErrorRetryable(err)
}

// GetErrorCategory returns the category of err.
func GetErrorCategory(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryUnknown
	}

	var ldapErr *LDAPError
	if errors.As(err, &ldapErr) {
		return ldapErr.Category
	}

	var resultErr *ldap.Error
	if errors.As(err, &resultErr) {
		return classifyResult(resultErr.ResultCode).category
	}

	return categorizeGenericError(err)
}

// IsPermissionError reports whether err was an access check failure.
func IsPermissionError(err error) bool {
	return GetErrorCategory(err) == ErrorCategoryPermission
}
