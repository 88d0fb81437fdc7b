// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package vfile

import (
	"log"
	"os"

	"sigs.k8s.io/yaml"
)

// Logger is the package-level logger for stream diagnostics (one line
// per split boundary; cache misses are not logged), overridable by the
// embedder.
var Logger = log.New(os.Stderr, "vfile: ", log.LstdFlags)

// ReaderConfig is the only configuration surface this package exposes:
// table/dataset definitions and CLI flags are out of scope.
type ReaderConfig struct {
	// InitialReadSize is the configured size of the first trailing read.
	// Opening a file does not use it: ReadFooter fetches the fixed-size
	// trailer, then exactly the footer and schema ranges it points at.
	InitialReadSize int64 `json:"initialReadSize"`
	// MessageCacheBudget is handed to the stream's message cache, which
	// records it but never evicts, so retained bytes are not bounded.
	MessageCacheBudget int64 `json:"messageCacheBudget"`
	// MaxConcurrentFetches bounds how many outstanding ReadMore byte
	// ranges the buffered layout reader issues at once.
	MaxConcurrentFetches int `json:"maxConcurrentFetches"`
}

// DefaultReaderConfig returns the 8 MiB initial-read default.
func DefaultReaderConfig() ReaderConfig {
	return ReaderConfig{
		InitialReadSize:      DefaultInitialReadSize,
		MessageCacheBudget:   0,
		MaxConcurrentFetches: 8,
	}
}

// LoadReaderConfig parses a YAML document into a ReaderConfig, starting
// from DefaultReaderConfig so omitted fields keep their defaults.
func LoadReaderConfig(data []byte) (ReaderConfig, error) {
	cfg := DefaultReaderConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return ReaderConfig{}, err
	}
	return cfg, nil
}
