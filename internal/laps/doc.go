// Package laps implements the directory side of local administrator password
// rotation for a host joined to Active Directory.
//
// A run moves through three components in order:
//
//   - Locator: reads the host's domain binding and derives the directory
//     path and the computer trust account name. It never touches the network.
//   - Connector: opens a single LDAP session against the domain (pinned to
//     the PreferredDC setting when present) and resolves exactly one computer
//     account by sAMAccountName.
//   - AttributeTool: reads the stored password expiration, probes that the
//     record is writable, and writes a new password followed by its
//     expiration.
//
// Nothing in this package exits the process. Fatal conditions are returned as
// *Error values whose Kind is one of the Err* sentinels, matched with
// errors.Is. Non-fatal conditions are logged as warnings.
//
// Basic usage:
//
//	path, info, err := laps.NewLocator(laps.NewSSSDSource("", nil), logger).Locate(ctx)
//	connector := laps.NewConnector(v, connCfg, laps.LegacySchema, logger)
//	defer connector.Close()
//	records, err := connector.Connect(ctx, path, info)
//	tool := laps.NewAttributeTool(laps.LegacySchema, "admin", logger)
//	expiration, err := tool.Operate(ctx, records, laps.OpReadExpiration, laps.Credential{})
package laps
