// Package config loads client configuration from YAML files and the
// environment.
//
// Configuration is resolved in three layers, later layers winning:
// built-in defaults, the YAML config file, then environment variables.
// A .env file in the working directory is folded into the environment
// before resolution.
package config
