package transport

import (
	"fmt"
	"net"

	"go.uber.org/zap"
)

// groupJoiner is the subset of *ipv4.PacketConn used to join a group.
type groupJoiner interface {
	JoinGroup(*net.Interface, net.Addr) error
}

// multicastInterfaces returns the interfaces that are up and multicast
// capable. Point-to-point, loopback and link-local-only interfaces are kept.
func multicastInterfaces(all []net.Interface) []net.Interface {
	ifaces := make([]net.Interface, 0, len(all))
	for _, i := range all {
		if i.Flags&net.FlagUp == 0 || i.Flags&net.FlagMulticast == 0 {
			continue
		}
		ifaces = append(ifaces, i)
	}
	return ifaces
}

// joinGroup joins the multicast group on each of the given interfaces. It
// succeeds if at least one interface joined.
func joinGroup(
	pc groupJoiner,
	group net.IP,
	ifaces []net.Interface,
	logger *zap.Logger,
) ([]net.Interface, error) {
	if len(ifaces) == 0 {
		return nil, errNoInterfaces
	}

	addr := &net.UDPAddr{
		IP: group,
	}

	joined := make([]net.Interface, 0, len(ifaces))

	for _, i := range ifaces {
		i := i
		if err := pc.JoinGroup(&i, addr); err != nil {
			logger.Debug("Unable to join multicast group on interface",
				zap.String("group", addr.IP.String()),
				zap.String("interface", i.Name),
				zap.Error(err),
			)
			continue
		}
		joined = append(joined, i)
	}

	if len(joined) > 0 {
		return joined, nil
	}

	return nil, fmt.Errorf(
		"unable to join the '%s' multicast group on any of %d interfaces",
		addr.IP,
		len(ifaces),
	)
}

// interfaceNames is used for log fields.
func interfaceNames(ifaces []net.Interface) []string {
	names := make([]string, len(ifaces))
	for n, i := range ifaces {
		names[n] = i.Name
	}
	return names
}
