// Package config loads the bastion configuration.
//
// Configuration comes from a YAML file with environment variable overrides:
//
//	cfg, err := config.LoadConfigWithEnvOverrides("bastion.yaml")
//
// Values are applied in this order, later overriding earlier:
//
//  1. Default values (defaults.go)
//  2. Values from the YAML file
//  3. BASTION_SECTION_FIELD environment variables
//  4. Validation, which fails fast and reports every invalid field
//
// For example BASTION_SERVER_LISTEN_ADDRESS overrides server.listen_address
// and BASTION_KEYS_TOKEN overrides keys.token.
//
// There is no package-level configuration. Callers load a Config once and
// pass the relevant sections to constructors.
package config
