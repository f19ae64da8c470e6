package database

import "fmt"

// DefaultUpstreamServers are the recursive servers used until configured
// otherwise.
var DefaultUpstreamServers = []string{
	"9.9.9.9:53", // Quad9 (primary)
	"1.1.1.1:53", // Cloudflare (fallback)
}

// InitDefaults seeds a fresh database with default settings. Existing
// values are never overwritten.
func (db *DB) InitDefaults() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRow("SELECT COUNT(*) FROM settings").Scan(&count); err != nil {
		return fmt.Errorf("failed to check settings count: %w", err)
	}
	if count > 0 {
		return nil
	}

	defaults := map[string]string{
		KeyServerHost:      "0.0.0.0",
		KeyServerPort:      "53",
		KeyServerEnableTCP: "true",

		KeyProxyInputInterfaces: "",
		KeyProxyOutputInterface: "",
		KeyProxyNAT64Prefix:     "",
		KeyProxyForceAAAASynth:  "false",

		KeyUpstreamServers: "9.9.9.9:53,1.1.1.1:53",
		KeyUpstreamTimeout: "3s",

		KeyLoggingLevel:            "INFO",
		KeyLoggingStructured:       "false",
		KeyLoggingStructuredFormat: "text",
		KeyLoggingIncludePID:       "false",

		KeyAPIEnabled: "false",
		KeyAPIHost:    "127.0.0.1",
		KeyAPIPort:    "8080",
		KeyAPIKey:     "",
	}
	for key, value := range defaults {
		if _, err := tx.Exec(
			"INSERT OR IGNORE INTO settings (key, value) VALUES (?, ?)", key, value,
		); err != nil {
			return fmt.Errorf("failed to seed %s: %w", key, err)
		}
	}

	return tx.Commit()
}
