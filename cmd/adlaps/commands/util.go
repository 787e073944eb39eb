package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/isometry/adlaps/internal/config"
	"github.com/isometry/adlaps/internal/laps"
	ldapclient "github.com/isometry/adlaps/internal/ldap"
)

// loadConfig reads configuration using the global flags.
func loadConfig() (*config.Config, laps.Settings, error) {
	cfg, v, err := config.Load(cfgFile, envFile)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = strings.ToLower(logLevel)
		if err := config.Validate(cfg); err != nil {
			return nil, nil, fmt.Errorf("invalid --log-level: %w", err)
		}
	}
	return cfg, v, nil
}

// newLogger builds the root logger. The returned closer releases the log
// file and is nil when logging to stderr.
func newLogger(cfg config.LogConfig, stderr io.Writer) (*ldapclient.HCLogger, io.Closer, error) {
	output := stderr
	var closer io.Closer

	if cfg.Path != "" {
		f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		output = f
		closer = f
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:       "adlaps",
		Level:      hclog.LevelFromString(cfg.Level),
		Output:     output,
		JSONFormat: cfg.Format == "json",
	})
	return ldapclient.NewHCLogger(logger), closer, nil
}

// session is a located, connected computer record ready for attribute
// operations.
type session struct {
	cfg       *config.Config
	logger    *ldapclient.HCLogger
	connector *laps.Connector
	tool      *laps.AttributeTool
	records   []laps.Record
	logCloser io.Closer
}

// openSession locates the binding, connects to the directory and resolves
// the computer record.
func openSession(ctx context.Context, stderr io.Writer) (*session, error) {
	cfg, settings, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, logCloser, err := newLogger(cfg.Log, stderr)
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, logger: logger, logCloser: logCloser}

	schema, err := cfg.AttributeSchema()
	if err != nil {
		s.Close()
		return nil, err
	}
	connCfg, err := cfg.ConnectionConfig()
	if err != nil {
		s.Close()
		return nil, err
	}

	path, info, err := laps.NewLocator(cfg.BindingSource(), logger.Named("locator")).Locate(ctx)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.connector = laps.NewConnector(settings, connCfg, schema, logger.Named("connector"))
	records, err := s.connector.Connect(ctx, path, info)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.records = records
	s.tool = laps.NewAttributeTool(schema, cfg.ManagedAccount, logger.Named("attributes"))

	return s, nil
}

func (s *session) operate(ctx context.Context, op laps.Operation, cred laps.Credential) (string, error) {
	return s.tool.Operate(ctx, s.records, op, cred)
}

// Close releases the directory connection and the log file.
func (s *session) Close() error {
	var errs []error
	if s.connector != nil {
		errs = append(errs, s.connector.Close())
	}
	if s.logCloser != nil {
		errs = append(errs, s.logCloser.Close())
	}
	return errors.Join(errs...)
}
