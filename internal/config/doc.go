// Package config provides configuration loading and validation for the voice gateway.
// It handles YAML-based configuration with per-section struct validation covering
// the UDP server, session lifecycle, dispatcher, and collaborator clients.
package config
