// Package config defines the configuration records the daemon runs with.
// Values are persisted in the settings database and exported into these
// structs at startup; command-line flags override individual fields.
package config

// ServerConfig contains DNS listener settings.
type ServerConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	EnableTCP bool   `json:"enable_tcp"`
}

// ProxyConfig contains the relay engine settings: which interfaces may
// originate queries, which interface resolver traffic egresses on, and
// the optional NAT64 prefix enabling DNS64.
type ProxyConfig struct {
	// InputInterfaces lists interface names admitted by the input
	// filter.
	InputInterfaces []string `json:"input_interfaces"`

	// OutputInterface names the egress interface for upstream queries.
	// Empty means unbound.
	OutputInterface string `json:"output_interface"`

	// NAT64Prefix is a CIDR prefix (e.g. "64:ff9b::/96"). Empty disables
	// DNS64.
	NAT64Prefix string `json:"nat64_prefix"`

	// ForceAAAASynthesis synthesizes AAAA answers even when the upstream
	// has real AAAA records.
	ForceAAAASynthesis bool `json:"force_aaaa_synthesis"`
}

// UpstreamConfig contains upstream resolver settings.
type UpstreamConfig struct {
	Servers []string `json:"servers"` // host:port
	Timeout string   `json:"timeout"` // e.g. "3s"
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level            string `json:"level"`
	Structured       bool   `json:"structured"`
	StructuredFormat string `json:"structured_format"`
	IncludePID       bool   `json:"include_pid"`
}

// APIConfig contains management API settings. APIKey is a secret and is
// never returned by API endpoints.
type APIConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
	APIKey  string `json:"-"`
}

// Config is the full daemon configuration.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Proxy    ProxyConfig    `json:"proxy"`
	Upstream UpstreamConfig `json:"upstream"`
	Logging  LoggingConfig  `json:"logging"`
	API      APIConfig      `json:"api"`
}
