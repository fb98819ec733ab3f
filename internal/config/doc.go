// Package config defines the updater settings and helpers to load, validate
// and save them.
//
// Settings are read with viper from JSON (the historical settings.json) or
// YAML, and can be overridden from ONEC_UPDATER_* environment variables.
package config
