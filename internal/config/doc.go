// Package config loads server settings from config.yaml, MATRX_ prefixed
// environment variables and defaults, and validates them before any
// component is built.
package config
