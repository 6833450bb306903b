package main

import (
	"net"
	"strconv"

	"github.com/huin/goupnp/dcps/internetgateway1"
	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"
)

// mapPort asks the first UPnP gateway found to forward port to this host and
// returns the gateway's external address for that port.
func mapPort(port int) (string, error) {
	clients, errs, err := internetgateway1.NewWANIPConnection1Clients()
	if err != nil {
		return "", xerrors.Errorf("failed to discover gateway: %w", err)
	}
	for _, e := range errs {
		log.Debug().Err(e).Msg("gateway discovery")
	}
	if len(clients) == 0 {
		return "", xerrors.New("no UPnP gateway found")
	}
	client := clients[0]

	external, err := client.GetExternalIPAddress()
	if err != nil {
		return "", xerrors.Errorf("failed to get external address: %w", err)
	}

	local := localAddress()
	err = client.AddPortMapping("", uint16(port), "TCP", uint16(port), local, true, "chord", 0)
	if err != nil {
		return "", xerrors.Errorf("failed to map port %d: %w", port, err)
	}

	log.Info().Str("external", external).Str("local", local).Int("port", port).Msg("port mapped")
	return net.JoinHostPort(external, strconv.Itoa(port)), nil
}

// localAddress returns the first non loopback IPv4 address of this host.
func localAddress() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, _ := iface.Addrs()
		for _, a := range addrs {
			if ipnet, ok := a.(*net.IPNet); ok && ipnet.IP.To4() != nil {
				return ipnet.IP.String()
			}
		}
	}
	return ""
}
