// Package config loads and merges phiscrub configuration from multiple sources.
//
// Precedence (highest to lowest):
//  1. CLI flags
//  2. Environment variables (PHISCRUB_CLASSIFIER_PROVIDER, PHISCRUB_FAIL_ON, ...)
//  3. A .env file in the working directory
//  4. Config file ($XDG_CONFIG_HOME/phiscrub/config.yaml)
//  5. Built-in defaults
//
// Every key in [Keys] maps to an environment variable through [EnvName].
// Use [Load] to obtain a merged [Config], and [LoadFile], [SetField] and
// [Save] to edit the config file.
package config
