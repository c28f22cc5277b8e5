// Package env provides information about the host.
package env

import (
	"os"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

// MachineID retrieves the unique ID identifying the machine, hashed with
// appID so the raw ID is not exposed. It falls back to the host name.
func MachineID(appID string) string {
	id, err := machineid.ProtectedID(appID)
	if err == nil {
		return id
	}
	glog.Warningf("machine ID unavailable: %v", err)
	if host, err := os.Hostname(); err == nil {
		return host
	}
	return "unknown"
}

// ShortMachineID returns the leading 12 characters of MachineID.
func ShortMachineID(appID string) string {
	id := MachineID(appID)
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
