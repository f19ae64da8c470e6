package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Setting key names.
const (
	KeyServerHost      = "server.host"
	KeyServerPort      = "server.port"
	KeyServerEnableTCP = "server.enable_tcp"

	KeyProxyInputInterfaces = "proxy.input_interfaces"
	KeyProxyOutputInterface = "proxy.output_interface"
	KeyProxyNAT64Prefix     = "proxy.nat64_prefix"
	KeyProxyForceAAAASynth  = "proxy.force_aaaa_synthesis"

	KeyUpstreamServers = "upstream.servers"
	KeyUpstreamTimeout = "upstream.timeout"

	KeyLoggingLevel            = "logging.level"
	KeyLoggingStructured       = "logging.structured"
	KeyLoggingStructuredFormat = "logging.structured_format"
	KeyLoggingIncludePID       = "logging.include_pid"

	KeyAPIEnabled = "api.enabled"
	KeyAPIHost    = "api.host"
	KeyAPIPort    = "api.port"
	KeyAPIKey     = "api.api_key"
)

// Set stores a setting value.
func (db *DB) Set(key, value string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	query := `
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := db.conn.Exec(query, key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Get retrieves a setting value.
func (db *DB) Get(key string) (string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var value string
	err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("setting not found: %s", key)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, nil
}

// GetWithDefault retrieves a setting or returns the default.
func (db *DB) GetWithDefault(key, defaultValue string) string {
	value, err := db.Get(key)
	if err != nil {
		return defaultValue
	}
	return value
}

// GetInt retrieves an integer setting or returns the default.
func (db *DB) GetInt(key string, defaultValue int) int {
	value, err := db.Get(key)
	if err != nil {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

// GetBool retrieves a boolean setting or returns the default.
func (db *DB) GetBool(key string, defaultValue bool) bool {
	value, err := db.Get(key)
	if err != nil {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

// GetList retrieves a comma-separated list setting.
func (db *DB) GetList(key string) []string {
	value, err := db.Get(key)
	if err != nil || strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SetList stores a list setting as comma-separated values.
func (db *DB) SetList(key string, values []string) error {
	return db.Set(key, strings.Join(values, ","))
}
