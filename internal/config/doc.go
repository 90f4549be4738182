// Package config loads and validates application configuration.
//
// Precedence is built-in defaults, then the YAML config file, then
// MACROPIPE_-prefixed environment variables. Dataset definitions (which
// series to fetch, how to clean them, which price series is the merge axis)
// only come from the file; credentials like the FRED API key usually come
// from the environment.
package config
