// Package config loads process-level settings for papermill from a YAML or
// TOML file, optional .env file and PAPERMILL_* environment variables.
package config
