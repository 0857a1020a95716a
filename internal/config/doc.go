// Package config provides configuration structures and utilities for the
// crawler. It defines scheduling, politeness, identity, and session
// settings, plus the YAML file loader and validation.
package config
