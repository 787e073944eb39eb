package laps

import (
	"context"
	"errors"
	"fmt"
	"time"

	ldapclient "github.com/isometry/adlaps/internal/ldap"
)

// Operation selects what AttributeTool.Operate does.
type Operation int

const (
	OpReadExpiration Operation = iota
	OpProbeWritable
	OpSetPassword
)

// String returns the operation name used in logs and errors.
func (o Operation) String() string {
	switch o {
	case OpReadExpiration:
		return "read_expiration"
	case OpProbeWritable:
		return "probe_writable"
	case OpSetPassword:
		return "set_password"
	default:
		return fmt.Sprintf("operation(%d)", int(o))
	}
}

// Credential is a new password and its raw expiration.
type Credential struct {
	Password   string
	Expiration string
}

// AttributeTool reads and writes the password attributes of a computer
// record. A record must pass ProbeWritable before SetPassword accepts it.
type AttributeTool struct {
	schema  Schema
	account string
	logger  ldapclient.Logger
	now     func() time.Time
	probed  map[string]bool
}

// NewAttributeTool creates a tool for schema. account is the managed local
// account name, recorded in schemas that store it.
func NewAttributeTool(schema Schema, account string, logger ldapclient.Logger) *AttributeTool {
	if logger == nil {
		logger = ldapclient.NopLogger{}
	}
	return &AttributeTool{
		schema:  schema,
		account: account,
		logger:  logger,
		now:     time.Now,
		probed:  make(map[string]bool),
	}
}

// Operate runs op against the single record in records. It returns the
// expiration for OpReadExpiration and "" otherwise.
func (t *AttributeTool) Operate(ctx context.Context, records []Record, op Operation, cred Credential) (string, error) {
	if len(records) != 1 {
		return "", newError(ErrAmbiguousRecord, op.String(), fmt.Sprintf("%d records", len(records)), nil)
	}
	record := records[0]

	switch op {
	case OpReadExpiration:
		return t.ReadExpiration(ctx, record), nil
	case OpProbeWritable:
		return "", t.ProbeWritable(ctx, record)
	case OpSetPassword:
		return "", t.SetPassword(ctx, record, cred)
	default:
		return "", newError(ErrUnknownOperation, op.String(), "", nil)
	}
}

// ReadExpiration returns the stored expiration exactly as read. A record
// without one yields NeverRotatedExpiration and a warning.
func (t *AttributeTool) ReadExpiration(ctx context.Context, record Record) string {
	expiration, err := record.ReadAttribute(ctx, t.schema.ExpirationAttribute)
	if err == nil {
		t.logger.Debug("Read password expiration", map[string]any{
			"dn":         record.DN(),
			"attribute":  t.schema.ExpirationAttribute,
			"expiration": expiration,
		})
		return expiration
	}

	fields := map[string]any{
		"warning":   WarningMissingExpiration,
		"dn":        record.DN(),
		"attribute": t.schema.ExpirationAttribute,
	}
	if !errors.Is(err, ErrAttributeNotFound) {
		fields["error"] = err.Error()
	}
	t.logger.Warn("There has never been a random password generated for this device. Setting a default expiration date of 01/01/2001 in Active Directory to force a password change...", fields)

	return NeverRotatedExpiration
}

// ProbeWritable checks that the record can be written. It writes the current
// expiration back unchanged, or the placeholder password when the record has
// no expiration yet. Nothing is written if the expiration cannot be read.
func (t *AttributeTool) ProbeWritable(ctx context.Context, record Record) error {
	fields := map[string]any{"dn": record.DN()}

	expiration, err := record.ReadAttribute(ctx, t.schema.ExpirationAttribute)
	switch {
	case err == nil:
		fields["attribute"] = t.schema.ExpirationAttribute
		err = record.WriteAttribute(ctx, t.schema.ExpirationAttribute, expiration)
	case !errors.Is(err, ErrAttributeNotFound):
		fields["attribute"] = t.schema.ExpirationAttribute
		fields["error"] = err.Error()
		t.logger.Error("Unable to read the current expiration time from Active Directory. The record was not modified.", fields)
		return newError(ErrNotWritable, OpProbeWritable.String(), record.DN(), err)
	default:
		fields["attribute"] = t.schema.PasswordAttribute
		var placeholder string
		placeholder, err = t.schema.EncodePassword(t.account, PlaceholderPassword, t.now())
		if err == nil {
			err = record.WriteAttribute(ctx, t.schema.PasswordAttribute, placeholder)
		}
	}

	if err != nil {
		fields["error"] = err.Error()
		fields["category"] = string(ldapclient.GetErrorCategory(err))
		fields["permission_denied"] = ldapclient.IsPermissionError(err)
		t.logger.Error("Unable to test setting the current expiration time in Active Directory to the same value. Either the record is not writable or the domain controller is not writable.", fields)
		return newError(ErrNotWritable, OpProbeWritable.String(), record.DN(), err)
	}

	t.probed[record.DN()] = true
	t.logger.Debug("Record is writable", fields)
	return nil
}

// SetPassword writes the password and then its expiration. The expiration is
// never written if the password write fails, and a failed expiration write
// is only a warning.
func (t *AttributeTool) SetPassword(ctx context.Context, record Record, cred Credential) error {
	op := OpSetPassword.String()

	if !t.probed[record.DN()] {
		return newError(ErrNotProbed, op, record.DN(), nil)
	}
	if cred.Password == "" {
		return newError(ErrInvalidCredential, op, "empty password", nil)
	}
	if cred.Expiration == "" {
		return newError(ErrInvalidCredential, op, "empty expiration", nil)
	}

	fields := map[string]any{"dn": record.DN()}

	encoded, err := t.schema.EncodePassword(t.account, cred.Password, t.now())
	if err == nil {
		err = record.WriteAttribute(ctx, t.schema.PasswordAttribute, encoded)
	}
	if err != nil {
		fields["error"] = err.Error()
		fields["category"] = string(ldapclient.GetErrorCategory(err))
		t.logger.Error("There was an error setting the password for this device...", fields)
		return newError(ErrSetPassword, op, record.DN(), err)
	}

	if err := record.WriteAttribute(ctx, t.schema.ExpirationAttribute, cred.Expiration); err != nil {
		fields["warning"] = WarningSetExpiration
		fields["error"] = err.Error()
		t.logger.Warn("There was an error setting the new password expiration for this device...", fields)
		return nil
	}

	fields["expiration"] = cred.Expiration
	t.logger.Info("Password and expiration updated in Active Directory", fields)
	return nil
}
