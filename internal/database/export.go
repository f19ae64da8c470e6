package database

import "github.com/jroosing/relaydns/internal/config"

// ExportToConfig materializes the stored settings into a config.Config.
func (db *DB) ExportToConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:      db.GetWithDefault(KeyServerHost, "0.0.0.0"),
			Port:      db.GetInt(KeyServerPort, 53),
			EnableTCP: db.GetBool(KeyServerEnableTCP, true),
		},
		Proxy: config.ProxyConfig{
			InputInterfaces:    db.GetList(KeyProxyInputInterfaces),
			OutputInterface:    db.GetWithDefault(KeyProxyOutputInterface, ""),
			NAT64Prefix:        db.GetWithDefault(KeyProxyNAT64Prefix, ""),
			ForceAAAASynthesis: db.GetBool(KeyProxyForceAAAASynth, false),
		},
		Upstream: config.UpstreamConfig{
			Servers: db.GetList(KeyUpstreamServers),
			Timeout: db.GetWithDefault(KeyUpstreamTimeout, "3s"),
		},
		Logging: config.LoggingConfig{
			Level:            db.GetWithDefault(KeyLoggingLevel, "INFO"),
			Structured:       db.GetBool(KeyLoggingStructured, false),
			StructuredFormat: db.GetWithDefault(KeyLoggingStructuredFormat, "text"),
			IncludePID:       db.GetBool(KeyLoggingIncludePID, false),
		},
		API: config.APIConfig{
			Enabled: db.GetBool(KeyAPIEnabled, false),
			Host:    db.GetWithDefault(KeyAPIHost, "127.0.0.1"),
			Port:    db.GetInt(KeyAPIPort, 8080),
			APIKey:  db.GetWithDefault(KeyAPIKey, ""),
		},
	}
}

// SaveProxyConfig persists proxy settings changed through the API.
func (db *DB) SaveProxyConfig(pc config.ProxyConfig) error {
	if err := db.SetList(KeyProxyInputInterfaces, pc.InputInterfaces); err != nil {
		return err
	}
	if err := db.Set(KeyProxyOutputInterface, pc.OutputInterface); err != nil {
		return err
	}
	if err := db.Set(KeyProxyNAT64Prefix, pc.NAT64Prefix); err != nil {
		return err
	}
	if pc.ForceAAAASynthesis {
		return db.Set(KeyProxyForceAAAASynth, "true")
	}
	return db.Set(KeyProxyForceAAAASynth, "false")
}
