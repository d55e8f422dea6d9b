// Copyright 2026 The crater Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package registry persists what crater has fetched, built and
// installed, one record per package name.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/crater-dev/crater/internal/config"
)

// Record holds the fetch, build and install metadata for one package.
type Record struct {
	FetchWith string    `json:"fetch_with,omitempty"`
	FetchFrom string    `json:"fetch_from,omitempty"`
	Dest      string    `json:"dest,omitempty"`
	Artifacts []string  `json:"artifacts,omitempty"`
	BuiltWith string    `json:"built_with,omitempty"`
	BuildDate time.Time `json:"build_date,omitzero"`
}

// Database is the process-wide registry. It owns the path to the global
// config file and lazily materializes the config on open. A single
// Database is constructed per invocation and passed by reference; all
// mutation goes through it and is flushed once by Save.
type Database struct {
	Packages map[string]Record `json:"packages"`
	CfgFile  string            `json:"cfgfile"`

	path string
	cfg  *config.Config
}

// DefaultPath returns the default registry location (~/.crater/db).
func DefaultPath() (string, error) {
	root, err := config.Root()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "db"), nil
}

// Open loads the registry at path, or initializes an empty one. A fresh
// registry is written out immediately so subsequent opens are
// idempotent. The global config referenced by the registry is loaded
// (and created if needed) as part of opening.
func Open(path string) (*Database, error) {
	path, err := config.ExpandPath(path)
	if err != nil {
		return nil, err
	}
	db := &Database{Packages: make(map[string]Record), path: path}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		if db.CfgFile, err = config.DefaultPath(); err != nil {
			return nil, err
		}
		if err := db.write(); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("failed to read registry %s: %w", path, err)
	default:
		if err := json.Unmarshal(data, db); err != nil {
			return nil, fmt.Errorf("failed to parse registry %s: %w", path, err)
		}
		if db.Packages == nil {
			db.Packages = make(map[string]Record)
		}
		if db.CfgFile == "" {
			if db.CfgFile, err = config.DefaultPath(); err != nil {
				return nil, err
			}
		}
	}

	if db.cfg, err = config.Load(db.CfgFile); err != nil {
		return nil, err
	}
	return db, nil
}

// Config returns the global config owned by this registry.
func (db *Database) Config() *config.Config { return db.cfg }

// Path returns the registry file location.
func (db *Database) Path() string { return db.path }

// Contains reports whether a record exists for name.
func (db *Database) Contains(name string) bool {
	_, ok := db.Packages[name]
	return ok
}

// Get returns the record for name, if any.
func (db *Database) Get(name string) (Record, bool) {
	rec, ok := db.Packages[name]
	return rec, ok
}

// Set inserts or overwrites the record for name. The change is in-memory
// only until Save runs.
func (db *Database) Set(name string, rec Record) {
	db.Packages[name] = rec
}

// Save writes the registry followed by the global config. The two writes
// are sequential, not transactional: a crash between them leaves the
// registry ahead of the config.
func (db *Database) Save() error {
	if err := db.write(); err != nil {
		return err
	}
	return db.cfg.Save(db.CfgFile)
}

func (db *Database) write() error {
	if err := os.MkdirAll(filepath.Dir(db.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(db, "", "\t")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}
	return os.WriteFile(db.path, data, 0o644)
}
