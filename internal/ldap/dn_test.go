package ldap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDNCase(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{name: "lowercase types", input: "cn=host,cn=computers,dc=example,dc=com", expected: "CN=host,CN=computers,DC=example,DC=com"},
		{name: "already canonical", input: "CN=HOST,OU=Macs,DC=example,DC=com", expected: "CN=HOST,OU=Macs,DC=example,DC=com"},
		{name: "escaped comma kept", input: `cn=Doe\, John,dc=example,dc=com`, expected: `CN=Doe\, John,DC=example,DC=com`},
		{name: "whitespace only", input: "   ", expected: ""},
		{name: "invalid", input: "not a dn", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeDNCase(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestValidateDNSyntax(t *testing.T) {
	assert.NoError(t, ValidateDNSyntax("DC=example,DC=com"))
	assert.Error(t, ValidateDNSyntax(""))
	assert.Error(t, ValidateDNSyntax("example.com"))
}

func TestExtractRDNValue(t *testing.T) {
	got, err := ExtractRDNValue("CN=HOST,CN=Computers,DC=example,DC=com", "cn")
	require.NoError(t, err)
	assert.Equal(t, "HOST", got)

	_, err = ExtractRDNValue("CN=HOST,DC=example,DC=com", "OU")
	assert.Error(t, err)
	_, err = ExtractRDNValue("", "CN")
	assert.Error(t, err)
}

func TestDomainToBaseDN(t *testing.T) {
	assert.Equal(t, "DC=example,DC=com", DomainToBaseDN("example.com"))
	assert.Equal(t, "DC=corp,DC=example,DC=com", DomainToBaseDN("corp.example.com."))
	assert.Empty(t, DomainToBaseDN(""))
}

func TestEscapeDNValue(t *testing.T) {
	tests := map[string]string{
		"HOST":      "HOST",
		"Doe, John": `Doe\, John`,
		" lead":     `\ lead`,
		"trail ":    `trail\ `,
		"#1":        `\#1`,
		"a#1":       "a#1",
		"a<b>":      `a\<b\>`,
		"nul\x00":   `nul\00`,
	}
	for input, want := range tests {
		assert.Equal(t, want, EscapeDNValue(input), input)
	}
}
