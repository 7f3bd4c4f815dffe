// Package config handles loading and validating devicelink configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - The device password should be set via DEVICELINK_DEVICE_PASSWORD
//   - The config file should have restricted permissions (0600)
//   - The client private key is referenced by path only, never embedded
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Device.ID)
package config
