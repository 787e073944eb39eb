package ldap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// resolveKrb5Conf returns the krb5.conf path to use. When the configured file
// is missing, a runtime configuration relying on DNS KDC discovery is written
// to a temporary file; cleanup removes it.
func resolveKrb5Conf(cfg *ConnectionConfig, logger Logger) (string, func(), error) {
	path := cfg.KerberosConfig
	if path == "" {
		path = "/etc/krb5.conf"
	}

	if fileExists(path) {
		return path, func() {}, nil
	}

	logger.Debug("Kerberos configuration not found, generating runtime krb5.conf", map[string]any{
		"missing_path": path,
		"realm":        cfg.KerberosRealm,
	})

	content, err := generateRuntimeKrb5Conf(cfg, logger)
	if err != nil {
		return "", nil, fmt.Errorf("kerberos configuration file not found at %s and could not generate one: %w", path, err)
	}

	f, err := os.CreateTemp("", "adlaps-krb5-*.conf")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create runtime krb5.conf: %w", err)
	}
	cleanup := func() { _ = os.Remove(f.Name()) }

	if _, err := f.WriteString(content); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("failed to write runtime krb5.conf: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to write runtime krb5.conf: %w", err)
	}

	return f.Name(), cleanup, nil
}

// generateRuntimeKrb5Conf renders a minimal krb5.conf for the realm. KDCs are
// found through DNS SRV records unless cfg.KerberosKDC pins one.
func generateRuntimeKrb5Conf(cfg *ConnectionConfig, logger Logger) (string, error) {
	if cfg.KerberosRealm == "" {
		return "", fmt.Errorf("kerberos realm is required for auto-discovery")
	}

	realm := strings.ToUpper(cfg.KerberosRealm)
	domain := strings.ToLower(cfg.KerberosRealm)
	if cfg.Domain != "" {
		domain = strings.ToLower(cfg.Domain)
	}
	lookupKDC := cfg.KerberosKDC == ""

	logger.Debug("Generating runtime krb5.conf", map[string]any{
		"realm":          realm,
		"domain":         domain,
		"dns_lookup_kdc": lookupKDC,
		"kdc":            cfg.KerberosKDC,
	})

	var b strings.Builder
	b.WriteString("[libdefaults]\n")
	fmt.Fprintf(&b, "    default_realm = %s\n", realm)
	fmt.Fprintf(&b, "    dns_lookup_kdc = %s\n", strconv.FormatBool(lookupKDC))
	b.WriteString("    dns_lookup_realm = false\n")
	b.WriteString("    rdns = false\n")
	b.WriteString("    ticket_lifetime = 10h\n")

	b.WriteString("\n[realms]\n")
	fmt.Fprintf(&b, "    %s = {\n", realm)
	if !lookupKDC {
		fmt.Fprintf(&b, "        kdc = %s\n", cfg.KerberosKDC)
	}
	b.WriteString("    }\n")

	b.WriteString("\n[domain_realm]\n")
	fmt.Fprintf(&b, "    .%s = %s\n", domain, realm)
	fmt.Fprintf(&b, "    %s = %s\n", domain, realm)

	return b.String(), nil
}

// extractRealmFromDomain returns the conventional realm for an AD domain.
func extractRealmFromDomain(domain string) string {
	return strings.ToUpper(domain)
}
