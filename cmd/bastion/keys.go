package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"bastion-hq/aegis/pkg/audit/recorder"
	"bastion-hq/aegis/pkg/cli"
	"bastion-hq/aegis/pkg/security/envelope"
)

var keysFlags struct {
	keyID  string
	fields []string
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Inspect and rotate audit encryption keys",
	Long: `Inspect and rotate the keys audit payloads are sealed under.

Subcommands:
  validate  - Check that the master key is usable
  rotate    - Generate fresh data keys for the audit fields`,
}

var keysValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that the master key is usable",
	RunE:  runKeysValidate,
}

var keysRotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Generate fresh data keys",
	Long: `Generate fresh data keys under the master key for each audit field.

Running servers pick up new data keys when their cached keys expire
(keys.cache_ttl). Events sealed under earlier keys stay readable because
every envelope carries its own wrapped key.

Examples:
  # Rotate data keys for every audit field
  bastion keys rotate

  # Rotate only the security context key under another master key
  bastion keys rotate --key-id audit-2026 --field security_context`,
	RunE: runKeysRotate,
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysValidateCmd, keysRotateCmd)

	keysCmd.PersistentFlags().StringVar(&keysFlags.keyID, "key-id", "", "master key id (default: keys.key_id from config)")
	keysRotateCmd.Flags().StringSliceVar(&keysFlags.fields, "field", []string{recorder.FieldDetails, recorder.FieldSecurityContext}, "audit field to rotate (repeatable)")
}

func keysComponents() (*components, string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, "", err
	}
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, "", err
	}
	c := newComponents(cfg, logger)
	if err := c.buildKeyring(); err != nil {
		return nil, "", err
	}
	keyID := keysFlags.keyID
	if keyID == "" {
		keyID = cfg.Keys.KeyID
	}
	return c, keyID, nil
}

func runKeysValidate(cmd *cobra.Command, args []string) error {
	c, keyID, err := keysComponents()
	if err != nil {
		return err
	}
	defer c.Close()

	ok, err := c.keyring.ValidateKey(cmd.Context(), keyID)
	if err != nil {
		return cli.NewCommandError("keys validate", err)
	}
	if !ok {
		return cli.NewExitError(cli.ExitFailure, fmt.Errorf("master key %s is not usable", keyID))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "master key %s is valid\n", keyID)
	return nil
}

func runKeysRotate(cmd *cobra.Command, args []string) error {
	for _, f := range keysFlags.fields {
		if f != recorder.FieldDetails && f != recorder.FieldSecurityContext {
			return cli.NewExitError(cli.ExitUsage, fmt.Errorf("unknown audit field %q", f))
		}
	}
	c, keyID, err := keysComponents()
	if err != nil {
		return err
	}
	defer c.Close()

	for _, field := range keysFlags.fields {
		dk, err := c.keyring.RotateKey(cmd.Context(), keyID, recorder.EncryptionContext(field))
		if err != nil {
			return cli.NewCommandError("keys rotate", err)
		}
		envelope.Zero(dk.Plaintext)
		fmt.Fprintf(cmd.OutOrStdout(), "rotated data key for %s (%d byte wrapped key)\n", field, len(dk.Wrapped))
	}
	return nil
}
