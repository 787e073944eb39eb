// Package config loads adlaps settings from a YAML file, the environment and
// struct defaults.
package config

import (
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/isometry/adlaps/internal/laps"
	ldapclient "github.com/isometry/adlaps/internal/ldap"
)

// EnvPrefix prefixes every environment variable, e.g. ADLAPS_LDAP_TIMEOUT.
const EnvPrefix = "ADLAPS"

// DefaultConfigPath is read when no --config flag is given. A missing file is
// not an error.
const DefaultConfigPath = "/etc/adlaps/config.yaml"

// Config is the complete adlaps configuration.
//
// Sources, highest precedence first:
//  1. Environment variables (ADLAPS_*, "." replaced by "_")
//  2. Configuration file (YAML)
//  3. Struct defaults
type Config struct {
	// PreferredDC pins the session to one domain controller.
	PreferredDC string `mapstructure:"preferreddc"`

	// Schema selects the password attributes: legacy or windows.
	Schema string `mapstructure:"schema" default:"legacy" validate:"oneof=legacy windows"`

	// ManagedAccount is the local administrator whose password is stored.
	ManagedAccount string `mapstructure:"managed_account" default:"admin" validate:"required"`

	Binding BindingConfig `mapstructure:"binding"`
	LDAP    LDAPConfig    `mapstructure:"ldap"`
	Log     LogConfig     `mapstructure:"log"`
}

// BindingConfig selects where the host's domain binding is read from.
type BindingConfig struct {
	Source   string `mapstructure:"source" default:"sssd" validate:"oneof=sssd static"`
	SSSDConf string `mapstructure:"sssd_conf" default:"/etc/sssd/sssd.conf"`

	// Static binding, used when Source is "static".
	NodeName     string `mapstructure:"node_name"`
	Domain       string `mapstructure:"domain" validate:"required_if=Source static"`
	TrustAccount string `mapstructure:"trust_account" validate:"required_if=Source static"`
	Realm        string `mapstructure:"realm"`
}

// LDAPConfig holds transport and credential settings.
type LDAPConfig struct {
	BaseDN        string `mapstructure:"base_dn"`
	NoTLS         bool   `mapstructure:"no_tls"`
	SkipTLSVerify bool   `mapstructure:"skip_tls_verify"`
	CACertFile    string `mapstructure:"ca_cert_file" validate:"omitempty,file"`

	Timeout        time.Duration `mapstructure:"timeout" default:"30s" validate:"gt=0"`
	MaxRetries     int           `mapstructure:"max_retries" validate:"gte=0"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff" default:"500ms" validate:"gt=0"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff" default:"30s" validate:"gtefield=InitialBackoff"`
	PageSize       uint32        `mapstructure:"page_size" default:"500" validate:"gt=0"`

	// Auth is "kerberos" (machine account unless Username is set) or
	// "simple". Password is only used with simple binds.
	Auth     string `mapstructure:"auth" default:"kerberos" validate:"oneof=kerberos simple"`
	Username string `mapstructure:"username" validate:"required_if=Auth simple"`
	Password string `mapstructure:"password" validate:"required_if=Auth simple"`

	KerberosKeytab string `mapstructure:"kerberos_keytab"`
	KerberosConfig string `mapstructure:"kerberos_config" default:"/etc/krb5.conf"`
	KerberosCCache string `mapstructure:"kerberos_ccache"`
	KerberosSPN    string `mapstructure:"kerberos_spn"`
	KerberosKDC    string `mapstructure:"kerberos_kdc"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `mapstructure:"level" default:"info" validate:"oneof=trace debug info warn error"`
	Format string `mapstructure:"format" default:"text" validate:"oneof=text json"`
	// Path is a file to append to; empty means stderr.
	Path string `mapstructure:"path"`
}

// keys lists every setting so that each can be overridden from the
// environment even when absent from the file.
var keys = []string{
	"preferreddc",
	"schema",
	"managed_account",
	"binding.source",
	"binding.sssd_conf",
	"binding.node_name",
	"binding.domain",
	"binding.trust_account",
	"binding.realm",
	"ldap.base_dn",
	"ldap.no_tls",
	"ldap.skip_tls_verify",
	"ldap.ca_cert_file",
	"ldap.timeout",
	"ldap.max_retries",
	"ldap.initial_backoff",
	"ldap.max_backoff",
	"ldap.page_size",
	"ldap.auth",
	"ldap.username",
	"ldap.password",
	"ldap.kerberos_keytab",
	"ldap.kerberos_config",
	"ldap.kerberos_ccache",
	"ldap.kerberos_spn",
	"ldap.kerberos_kdc",
	"log.level",
	"log.format",
	"log.path",
}

// Load reads configuration from configPath (DefaultConfigPath when empty),
// after loading envFile into the environment when set. It returns the viper
// instance as well, for components that look settings up by key.
func Load(configPath, envFile string) (*Config, *viper.Viper, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	v := viper.New()
	if err := setupViper(v); err != nil {
		return nil, nil, err
	}

	explicit := configPath != ""
	if !explicit {
		configPath = DefaultConfigPath
	}
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound), errors.Is(err, os.ErrNotExist) && !explicit:
		default:
			return nil, nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := ApplyDefaults(&cfg); err != nil {
		return nil, nil, err
	}

	if err := Validate(&cfg); err != nil {
		return nil, nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, v, nil
}

func setupViper(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	// The macOSLAPS-style name is accepted too.
	return v.BindEnv("preferreddc", EnvPrefix+"_PREFERREDDC", EnvPrefix+"_PREFERRED_DC")
}

// ApplyDefaults fills unset fields from their default tags and normalizes
// case-insensitive values.
func ApplyDefaults(cfg *Config) error {
	if err := defaults.Set(cfg); err != nil {
		return fmt.Errorf("failed to apply defaults: %w", err)
	}
	cfg.Schema = strings.ToLower(cfg.Schema)
	cfg.Binding.Source = strings.ToLower(cfg.Binding.Source)
	cfg.LDAP.Auth = strings.ToLower(cfg.LDAP.Auth)
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)
	return nil
}

// Validate checks the configuration.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return err
	}
	if cfg.LDAP.BaseDN != "" {
		if err := ldapclient.ValidateDNSyntax(cfg.LDAP.BaseDN); err != nil {
			return fmt.Errorf("ldap.base_dn: %w", err)
		}
	}
	return nil
}

// AttributeSchema returns the configured attribute schema.
func (c *Config) AttributeSchema() (laps.Schema, error) {
	return laps.SchemaByName(c.Schema)
}

// BindingSource returns the configured binding source.
func (c *Config) BindingSource() laps.BindingSource {
	if c.Binding.Source == "static" {
		return laps.NewStaticSource(laps.BindingInfo{
			NodeName:      c.Binding.NodeName,
			DomainNameDns: c.Binding.Domain,
			TrustAccount:  c.Binding.TrustAccount,
			Realm:         c.Binding.Realm,
		})
	}
	return laps.NewSSSDSource(c.Binding.SSSDConf, nil)
}

// ConnectionConfig builds the LDAP connection configuration. Domain and
// servers are left for the connector to fill from the binding.
func (c *Config) ConnectionConfig() (*ldapclient.ConnectionConfig, error) {
	l := c.LDAP
	cfg := ldapclient.DefaultConfig()

	cfg.BaseDN = l.BaseDN
	cfg.Timeout = l.Timeout
	cfg.PageSize = l.PageSize
	cfg.MaxRetries = l.MaxRetries
	cfg.InitialBackoff = l.InitialBackoff
	cfg.MaxBackoff = l.MaxBackoff

	cfg.UseTLS = !l.NoTLS
	cfg.SkipTLS = l.NoTLS
	cfg.TLSConfig.InsecureSkipVerify = l.SkipTLSVerify

	if l.CACertFile != "" {
		pem, err := os.ReadFile(l.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", l.CACertFile)
		}
		cfg.TLSConfig.RootCAs = pool
	}

	cfg.Username = l.Username
	if l.Auth == "simple" {
		cfg.Password = l.Password
	} else {
		cfg.KerberosRealm = strings.ToUpper(c.Binding.Realm)
		cfg.KerberosKeytab = l.KerberosKeytab
		cfg.KerberosCCache = l.KerberosCCache
	}
	cfg.KerberosConfig = l.KerberosConfig
	cfg.KerberosSPN = l.KerberosSPN
	cfg.KerberosKDC = l.KerberosKDC

	return cfg, nil
}
