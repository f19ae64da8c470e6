//go:build linux

package resolvers

import "golang.org/x/sys/unix"

// bindToDevice pins a socket to a named interface so the exchange egresses
// where the configuration says it must.
func bindToDevice(fd int, ifname string) error {
	return unix.BindToDevice(fd, ifname)
}
