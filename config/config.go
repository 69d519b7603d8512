// Package config loads the library configuration records from env files.
// Unknown keys in a file are rejected rather than ignored.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/sysprog/idmcore/directory"
	"github.com/sysprog/idmcore/tablesync"
)

var directoryKeys = map[string]bool{
	"ADS_USER":     true,
	"ADS_PASSWORD": true,
	"ADS_DOMAIN":   true,
	"ADS_SERVER":   true,
	"ADS_PORT":     true,
	"ADS_SSL":      true,
	"ADS_TIMEOUT":  true,
	"ADS_PAGESIZE": true,
	"ADS_DEBUG":    true,
	"ADS_BASEDN":   true,
	"ADS_USE_GC":   true,
}

// LoadDirectory reads a directory.Config from an env file.
func LoadDirectory(file string) (directory.Config, error) {
	var cfg directory.Config

	vars, err := godotenv.Read(file)
	if err != nil {
		return cfg, fmt.Errorf("read %s: %w", file, err)
	}
	for key := range vars {
		if !directoryKeys[key] {
			return cfg, fmt.Errorf("%s: unknown option %s", file, key)
		}
	}

	cfg.User = vars["ADS_USER"]
	cfg.Password = vars["ADS_PASSWORD"]
	cfg.Domain = vars["ADS_DOMAIN"]
	cfg.Server = vars["ADS_SERVER"]
	cfg.BaseDN = vars["ADS_BASEDN"]

	if v := vars["ADS_PORT"]; v != "" {
		if cfg.Port, err = strconv.Atoi(v); err != nil {
			return cfg, fmt.Errorf("%s: bad ADS_PORT %q: %w", file, v, err)
		}
	}
	if v := vars["ADS_SSL"]; v != "" {
		ssl, err := parseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("%s: bad ADS_SSL %q: %w", file, v, err)
		}
		cfg.DisableTLS = !ssl
	}
	if v := vars["ADS_TIMEOUT"]; v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("%s: bad ADS_TIMEOUT %q: %w", file, v, err)
		}
		cfg.Timeout = time.Duration(secs) * time.Second
	}
	if v := vars["ADS_PAGESIZE"]; v != "" {
		size, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return cfg, fmt.Errorf("%s: bad ADS_PAGESIZE %q: %w", file, v, err)
		}
		cfg.PageSize = uint32(size)
	}
	if v := vars["ADS_DEBUG"]; v != "" {
		if cfg.Debug, err = parseBool(v); err != nil {
			return cfg, fmt.Errorf("%s: bad ADS_DEBUG %q: %w", file, v, err)
		}
	}
	if v := vars["ADS_USE_GC"]; v != "" {
		if cfg.GlobalCatalog, err = parseBool(v); err != nil {
			return cfg, fmt.Errorf("%s: bad ADS_USE_GC %q: %w", file, v, err)
		}
	}

	return cfg, nil
}

var syncKeys = map[string]bool{
	"SYNC_TABLE":       true,
	"SYNC_ALIAS":       true,
	"SYNC_WHERE":       true,
	"SYNC_UNIQUE_KEYS": true,
	"SYNC_EXCL_COLS":   true,
	"SYNC_MASK_COLS":   true,
	"SYNC_MAX_INSERTS": true,
	"SYNC_MAX_DELETES": true,
	"SYNC_FORCE":       true,
	"SYNC_DRY_RUN":     true,
	"SYNC_NO_DUPS":     true,
	"SYNC_DEBUG":       true,
}

// LoadSync reads a tablesync.Config from an env file. Sessions and logging
// are wired by the caller.
//
// SYNC_UNIQUE_KEYS is semicolon-separated key sets of comma-separated
// columns ("a,b;c"); SYNC_MASK_COLS is comma-separated col=literal pairs.
func LoadSync(file string) (tablesync.Config, error) {
	var cfg tablesync.Config

	vars, err := godotenv.Read(file)
	if err != nil {
		return cfg, fmt.Errorf("read %s: %w", file, err)
	}
	for key := range vars {
		if !syncKeys[key] {
			return cfg, fmt.Errorf("%s: unknown option %s", file, key)
		}
	}

	cfg.Table = vars["SYNC_TABLE"]
	cfg.Alias = vars["SYNC_ALIAS"]
	cfg.Where = vars["SYNC_WHERE"]

	if v := vars["SYNC_UNIQUE_KEYS"]; v != "" {
		for _, keySet := range strings.Split(v, ";") {
			var cols []string
			for _, col := range strings.Split(keySet, ",") {
				if col = strings.TrimSpace(col); col != "" {
					cols = append(cols, col)
				}
			}
			if len(cols) > 0 {
				cfg.UniqueKeys = append(cfg.UniqueKeys, cols)
			}
		}
	}
	if v := vars["SYNC_EXCL_COLS"]; v != "" {
		for _, col := range strings.Split(v, ",") {
			if col = strings.TrimSpace(col); col != "" {
				cfg.ExcludeCols = append(cfg.ExcludeCols, col)
			}
		}
	}
	if v := vars["SYNC_MASK_COLS"]; v != "" {
		cfg.MaskCols = make(map[string]string)
		for _, pair := range strings.Split(v, ",") {
			col, lit, ok := strings.Cut(pair, "=")
			if !ok {
				return cfg, fmt.Errorf("%s: bad SYNC_MASK_COLS entry %q", file, pair)
			}
			cfg.MaskCols[strings.TrimSpace(col)] = lit
		}
	}

	for key, dst := range map[string]*int{
		"SYNC_MAX_INSERTS": &cfg.MaxInserts,
		"SYNC_MAX_DELETES": &cfg.MaxDeletes,
	} {
		if v := vars[key]; v != "" {
			if *dst, err = strconv.Atoi(v); err != nil {
				return cfg, fmt.Errorf("%s: bad %s %q: %w", file, key, v, err)
			}
		}
	}
	for key, dst := range map[string]*bool{
		"SYNC_FORCE":   &cfg.Force,
		"SYNC_DRY_RUN": &cfg.DryRun,
		"SYNC_NO_DUPS": &cfg.NoDups,
		"SYNC_DEBUG":   &cfg.Debug,
	} {
		if v := vars[key]; v != "" {
			if *dst, err = parseBool(v); err != nil {
				return cfg, fmt.Errorf("%s: bad %s %q: %w", file, key, v, err)
			}
		}
	}

	return cfg, nil
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean")
}
