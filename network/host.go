package network

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strings"
)

// HostLink drives a Linux network interface. Association is delegated to an
// external command (typically nmcli or wpa_cli); the link counts as connected
// once the interface is up and carries a non link-local IPv4 address.
type HostLink struct {
	iface       string
	joinCommand []string
	run         func(ctx context.Context, name string, args ...string) ([]byte, error)
	lookup      func(name string) (*net.Interface, []net.Addr, error)
}

// NewHostLink returns a link for iface. joinCommand may contain the
// placeholders {ssid}, {secret} and {interface}; an empty command leaves
// association to the operating system.
func NewHostLink(iface string, joinCommand []string) *HostLink {
	return &HostLink{
		iface:       iface,
		joinCommand: joinCommand,
		run:         runCommand,
		lookup:      lookupInterface,
	}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

func lookupInterface(name string) (*net.Interface, []net.Addr, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return nil, nil, err
	}
	addrs, err := ifi.Addrs()
	if err != nil {
		return nil, nil, err
	}
	return ifi, addrs, nil
}

// Name implements Link.
func (h *HostLink) Name() string { return h.iface }

// Connected implements Link.
func (h *HostLink) Connected() bool {
	return h.Address() != ""
}

// Address implements Link.
func (h *HostLink) Address() string {
	ifi, addrs, err := h.lookup(h.iface)
	if err != nil || ifi.Flags&net.FlagUp == 0 {
		return ""
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipNet.IP.To4()
		if ip == nil || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
			continue
		}
		return ipNet.String()
	}
	return ""
}

// Activate implements Link.
func (h *HostLink) Activate(ctx context.Context) error {
	ifi, _, err := h.lookup(h.iface)
	if err != nil {
		return err
	}
	if ifi.Flags&net.FlagUp != 0 {
		return nil
	}
	if out, err := h.run(ctx, "ip", "link", "set", h.iface, "up"); err != nil {
		return fmt.Errorf("ip link set %s up: %w: %s", h.iface, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Join implements Link.
func (h *HostLink) Join(ctx context.Context, creds Credentials) error {
	if len(h.joinCommand) == 0 {
		return nil
	}

	replacer := strings.NewReplacer(
		"{ssid}", creds.SSID,
		"{secret}", creds.Secret,
		"{interface}", h.iface,
	)
	args := make([]string, len(h.joinCommand))
	for i, arg := range h.joinCommand {
		args[i] = replacer.Replace(arg)
	}

	if out, err := h.run(ctx, args[0], args[1:]...); err != nil {
		// The secret may appear in args; report only the program name.
		return fmt.Errorf("%s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}
