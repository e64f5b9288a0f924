// Package factory selects a hypervisor backend for a requested guest
// architecture.
package factory

import (
	"fmt"

	"github.com/nxp-qoriq/ppchv/internal/hv"
	"github.com/nxp-qoriq/ppchv/internal/hv/ppc"
)

// NewWithArchitecture selects a hypervisor backend for the requested guest
// architecture. There is no host-accelerated path: every backend here is a
// from-scratch software hypervisor, since the e500mc target has no general
// host hardware to accelerate against.
func NewWithArchitecture(arch hv.CpuArchitecture) (hv.Hypervisor, error) {
	switch arch {
	case hv.ArchitecturePPC32E500MC:
		return ppc.Open()
	default:
		return nil, fmt.Errorf("factory: unsupported architecture %q", arch)
	}
}

// OpenWithArchitecture mirrors NewWithArchitecture but treats an invalid
// architecture as "use the only supported target".
func OpenWithArchitecture(arch hv.CpuArchitecture) (hv.Hypervisor, error) {
	if arch == hv.ArchitectureInvalid {
		return ppc.Open()
	}
	return NewWithArchitecture(arch)
}
