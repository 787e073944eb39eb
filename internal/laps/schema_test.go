package laps

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ldapclient "github.com/isometry/adlaps/internal/ldap"
)

func expectedHexFileTime(t time.Time) string {
	return strconv.FormatInt(ldapclient.TimeToFileTime(t), 16)
}

func TestSchemaByName(t *testing.T) {
	tests := []struct {
		name    string
		want    Schema
		wantErr bool
	}{
		{name: "", want: LegacySchema},
		{name: "legacy", want: LegacySchema},
		{name: " Windows ", want: WindowsSchema},
		{name: "gpo", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SchemaByName(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.Name, got.Name)
			assert.Equal(t, tt.want.PasswordAttribute, got.PasswordAttribute)
			assert.Equal(t, tt.want.ExpirationAttribute, got.ExpirationAttribute)
		})
	}
}

func TestEncodePassword(t *testing.T) {
	legacy, err := LegacySchema.EncodePassword("admin", "secret", fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "secret", legacy)

	windows, err := WindowsSchema.EncodePassword("admin", `quo"te`, fixedNow)
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":"admin","t":"`+expectedHexFileTime(fixedNow)+`","p":"quo\"te"}`, windows)
}
