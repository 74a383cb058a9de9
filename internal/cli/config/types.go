// Package config provides configuration management for the tephra CLI.
package config

import "time"

// Config holds all CLI configuration options.
type Config struct {
	// WorkspaceDir is the directory commands operate on when no
	// directory argument is given.
	WorkspaceDir string `koanf:"workspace_dir"`
	// CatalogDir is the root of the local dataset catalog.
	CatalogDir string `koanf:"catalog_dir"`
	// Stores mounts additional catalog stores by name.
	Stores map[string]StoreConfig `koanf:"stores"`
	// Workers bounds parallel resource evaluation.
	Workers      int          `koanf:"workers"`
	Verbose      bool         `koanf:"verbose"`
	OutputFormat string       `koanf:"output"`
	Server       ServerConfig `koanf:"server"`
}

// StoreConfig describes a catalog store mounted at startup.
type StoreConfig struct {
	// Type is the store backend: "local" or "duckdb".
	Type string `koanf:"type"`
	// Path is the store root directory or database file.
	Path string `koanf:"path"`
}

// ServerConfig holds settings for the workspace service.
type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Default configuration values.
const (
	DefaultWorkspaceDir    = "."
	DefaultWorkers         = 4
	DefaultOutput          = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultServerAddr      = "127.0.0.1:9090"
	DefaultShutdownTimeout = 5 * time.Second
)
