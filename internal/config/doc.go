// Package config loads the skiff client configuration from YAML.
//
// Configuration is optional: with no file present, Default() describes a
// local engine on the well-known port. Files support ${VAR} environment
// variable expansion and human-readable duration strings ("500ms", "2s").
package config
