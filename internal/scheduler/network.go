package scheduler

import (
	"context"
	"slices"
	"usd/internal/providers"

	"github.com/shirou/gopsutil/v3/net"
)

type NetworkProbeInterface interface {
	Available(ctx context.Context) bool
}

// NetworkProbe reports the network as available when at least one interface
// is up, is not a loopback and carries an address.
type NetworkProbe struct {
	interfaces func(ctx context.Context) (net.InterfaceStatList, error)
	logger     providers.Logger
}

func NewNetworkProbe(logger providers.Logger) NetworkProbeInterface {
	return &NetworkProbe{
		interfaces: net.InterfacesWithContext,
		logger:     logger,
	}
}

func (p *NetworkProbe) Available(ctx context.Context) bool {
	list, err := p.interfaces(ctx)
	if err != nil {
		p.logger.Warnf(providers.TypeScheduler, "Could not list network interfaces: %s", err)
		return false
	}
	for _, iface := range list {
		if !slices.Contains(iface.Flags, "up") || slices.Contains(iface.Flags, "loopback") {
			continue
		}
		if len(iface.Addrs) > 0 {
			return true
		}
	}
	return false
}
