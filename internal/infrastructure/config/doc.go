// Package config handles loading and validating PumaGuard presence configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Loading a .env file when one is present
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// The static configuration here describes infrastructure (API listener, MQTT,
// InfluxDB, logging, identity patterns). Mutable runtime settings such as the
// heartbeat interval live in the state file managed by package statefile.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Site.Name)
package config
