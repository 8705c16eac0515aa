// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} and ${VAR:-default} interpolation.
// LoadAndValidate loads .env files into the environment first (see LoadDotenv).
package config
