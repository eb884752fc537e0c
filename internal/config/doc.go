// Package config provides configuration structures and utilities for BoxHunt.
// It defines the quality filter policy, the duplicate threshold, per-source
// pacing and credentials, website spider limits and report preferences, and
// loads them from an optional YAML file and the environment.
package config
