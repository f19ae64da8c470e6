package proxy

// MaxInputInterfaces bounds the input interface list.
const MaxInputInterfaces = 5

// DNS64Config enables AAAA synthesis and PTR remapping across a NAT64
// prefix (RFC 6147).
type DNS64Config struct {
	Prefix NAT64Prefix

	// ForceAAAASynthesis rewrites every AAAA question to an A question at
	// ingress instead of waiting for a negative AAAA answer.
	ForceAAAASynthesis bool
}

// Config is an immutable snapshot of the engine configuration. Init
// publishes a new snapshot through an atomic handle and Terminate
// publishes a cleared one; callbacks read whichever snapshot was current
// when they started.
type Config struct {
	InputInterfaces [MaxInputInterfaces]uint32
	OutputInterface uint32
	DNS64           *DNS64Config
}

// admits reports whether a datagram arriving on the given interface index
// may enter the engine. Index zero is never admitted.
func (c *Config) admits(ifindex uint32) bool {
	if c == nil || ifindex == 0 {
		return false
	}
	for _, idx := range c.InputInterfaces {
		if idx == ifindex {
			return true
		}
	}
	return false
}

// Init installs the engine configuration: the admitted input interfaces,
// the output interface used for resolver questions, and optionally a
// NAT64 prefix enabling DNS64. A prefix length outside 32/40/48/56/64/96
// disables DNS64 and clears the force flag.
func (p *Proxy) Init(inputIfaces []uint32, outputIface uint32, nat64Prefix []byte, nat64Bits int, forceAAAASynthesis bool) {
	cfg := &Config{OutputInterface: outputIface}
	for i, idx := range inputIfaces {
		if i >= MaxInputInterfaces {
			break
		}
		cfg.InputInterfaces[i] = idx
	}

	if nat64Prefix != nil {
		if prefix, ok := NewNAT64Prefix(nat64Prefix, nat64Bits); ok {
			cfg.DNS64 = &DNS64Config{Prefix: prefix, ForceAAAASynthesis: forceAAAASynthesis}
			p.logger.Info("dns64 enabled", "prefix_bits", nat64Bits, "force_aaaa_synthesis", forceAAAASynthesis)
		} else {
			p.logger.Error("dns64 disabled: invalid prefix length", "prefix_bits", nat64Bits)
		}
	}

	p.cfg.Store(cfg)
	p.logger.Info("proxy configured",
		"input_interfaces", inputIfaces,
		"output_interface", outputIface,
		"dns64", cfg.DNS64 != nil,
	)
}

// Terminate clears the configuration. In-flight clients drain through
// their resolver callbacks; new datagrams fail the interface filter.
func (p *Proxy) Terminate() {
	p.cfg.Store(&Config{})
	p.logger.Info("proxy terminated")
}

// config returns the current snapshot (never nil after New).
func (p *Proxy) config() *Config {
	return p.cfg.Load()
}
