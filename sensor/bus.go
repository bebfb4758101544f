package sensor

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// ScanBus lists the 7-bit addresses of devices the kernel enumerated on I2C
// bus number bus. root is normally /sys/bus/i2c/devices, whose entries are
// named "<bus>-<addr>", e.g. "1-0076".
func ScanBus(root string, bus int) ([]uint16, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("scan i2c bus %d: %w", bus, err)
	}

	prefix := strconv.Itoa(bus) + "-"
	var addrs []uint16
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		addr, err := strconv.ParseUint(strings.TrimPrefix(name, prefix), 16, 16)
		if err != nil || addr > 0x7f {
			continue
		}
		addrs = append(addrs, uint16(addr))
	}

	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs, nil
}
