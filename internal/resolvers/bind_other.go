//go:build !linux

package resolvers

// bindToDevice is a no-op where SO_BINDTODEVICE is unavailable; routing
// falls back to the kernel's choice of egress interface.
func bindToDevice(int, string) error {
	return nil
}
