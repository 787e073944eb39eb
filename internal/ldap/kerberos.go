package ldap

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/go-ldap/ldap/v3/gssapi"
	krb5client "github.com/jcmturner/gokrb5/v8/client"
)

// performKerberosAuth binds c with GSSAPI.
func performKerberosAuth(c conn, cfg *ConnectionConfig, serverInfo *ServerInfo, logger Logger) error {
	kcfg := cfg.Clone()
	if err := prepareKerberosConfig(kcfg); err != nil {
		return fmt.Errorf("kerberos configuration error: %w", err)
	}

	krb5confPath, cleanup, err := resolveKrb5Conf(kcfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	gssapiClient, err := createGSSAPIClient(kcfg, krb5confPath, logger)
	if err != nil {
		return fmt.Errorf("failed to create GSSAPI client: %w", err)
	}
	defer func() {
		_ = gssapiClient.DeleteSecContext()
	}()

	spn, err := buildServicePrincipal(kcfg, serverInfo)
	if err != nil {
		return fmt.Errorf("failed to build service principal: %w", err)
	}

	logger.Debug("Performing GSSAPI bind", map[string]any{
		"principal": kcfg.Username,
		"realm":     kcfg.KerberosRealm,
		"spn":       spn,
	})

	if err := c.GSSAPIBind(gssapiClient, spn, ""); err != nil {
		return fmt.Errorf("GSSAPI bind failed: %w", err)
	}
	return nil
}

type credentialKind int

const (
	credentialNone credentialKind = iota
	credentialCCache
	credentialKeytab
	credentialPassword
)

type krbCredential struct {
	kind credentialKind
	path string
}

// selectCredential picks, in order: the configured ccache, the configured
// keytab, the default keytab, the default ccache, then the password. The
// default keytab holds the computer account's key and comes before the
// default ccache, which normally belongs to whoever ran the command.
func selectCredential(cfg *ConnectionConfig) krbCredential {
	if cfg.KerberosCCache != "" && fileExists(cfg.KerberosCCache) {
		return krbCredential{credentialCCache, cfg.KerberosCCache}
	}
	if cfg.KerberosKeytab != "" && fileExists(cfg.KerberosKeytab) {
		return krbCredential{credentialKeytab, cfg.KerberosKeytab}
	}
	if cfg.Username != "" {
		if keytab := getDefaultKeytabPath(); fileExists(keytab) {
			return krbCredential{credentialKeytab, keytab}
		}
	}
	if ccache := getDefaultCCachePath(); fileExists(ccache) {
		return krbCredential{credentialCCache, ccache}
	}
	if cfg.Username != "" && cfg.Password != "" {
		return krbCredential{kind: credentialPassword}
	}
	return krbCredential{}
}

// createGSSAPIClient builds a GSSAPI client from the selected credential.
func createGSSAPIClient(cfg *ConnectionConfig, krb5confPath string, logger Logger) (ldap.GSSAPIClient, error) {
	cred := selectCredential(cfg)
	noFAST := krb5client.DisablePAFXFAST(true)

	switch cred.kind {
	case credentialCCache:
		logger.Debug("Using Kerberos credential cache", map[string]any{"ccache": cred.path})
		return gssapi.NewClientFromCCache(cred.path, krb5confPath, noFAST)
	case credentialKeytab:
		logger.Debug("Using Kerberos keytab", map[string]any{"keytab": cred.path, "principal": cfg.Username})
		return gssapi.NewClientWithKeytab(cfg.Username, cfg.KerberosRealm, cred.path, krb5confPath, noFAST)
	case credentialPassword:
		return gssapi.NewClientWithPassword(cfg.Username, cfg.KerberosRealm, cfg.Password, krb5confPath, noFAST)
	default:
		return nil, fmt.Errorf("no suitable credentials found for Kerberos authentication")
	}
}

// buildServicePrincipal returns cfg.KerberosSPN, or ldap/<host> for the
// server.
func buildServicePrincipal(cfg *ConnectionConfig, serverInfo *ServerInfo) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("configuration is required for service principal")
	}
	if cfg.KerberosSPN != "" {
		return cfg.KerberosSPN, nil
	}
	if serverInfo == nil {
		return "", fmt.Errorf("server info is required for service principal")
	}

	host, _, _ := strings.Cut(serverInfo.Host, ":")
	if host == "" {
		return "", fmt.Errorf("hostname is required for service principal")
	}
	return "ldap/" + host, nil
}

// prepareKerberosConfig splits a principal@REALM username, fills the realm
// from the domain if needed, and checks that some credential is available.
func prepareKerberosConfig(cfg *ConnectionConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration cannot be nil")
	}

	if user, realm, ok := strings.Cut(cfg.Username, "@"); ok {
		cfg.Username = user
		if cfg.KerberosRealm == "" {
			cfg.KerberosRealm = realm
		}
	}
	if cfg.KerberosRealm == "" && cfg.Domain != "" {
		cfg.KerberosRealm = extractRealmFromDomain(cfg.Domain)
	}

	switch {
	case cfg.KerberosRealm == "":
		return fmt.Errorf("kerberos realm is required (set binding.realm or include the realm in ldap.username)")
	case cfg.Username == "" && cfg.KerberosCCache == "":
		return fmt.Errorf("username (principal) is required for Kerberos authentication")
	case selectCredential(cfg).kind == credentialNone:
		return fmt.Errorf("no suitable Kerberos credentials found: provide ldap.kerberos_ccache, ldap.kerberos_keytab or ldap.password, or make sure the machine keytab is readable")
	}
	return nil
}

// getDefaultCCachePath honours KRB5CCNAME.
func getDefaultCCachePath() string {
	if ccache := os.Getenv("KRB5CCNAME"); ccache != "" {
		return strings.TrimPrefix(ccache, "FILE:")
	}
	return fmt.Sprintf("/tmp/krb5cc_%d", os.Getuid())
}

// getDefaultKeytabPath honours KRB5_KTNAME.
func getDefaultKeytabPath() string {
	if keytab := os.Getenv("KRB5_KTNAME"); keytab != "" {
		return strings.TrimPrefix(keytab, "FILE:")
	}
	return "/etc/krb5.keytab"
}

// fileExists reports whether path can be opened for reading.
func fileExists(path string) bool {
	if path == "" {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	f.Close()
	return true
}
