// Package sensor provides the default SoC temperature collaborator,
// reading the kernel's sysfs thermal zone.
package sensor

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// DefaultZonePath is the first thermal zone on most single-board computers.
const DefaultZonePath = "/sys/class/thermal/thermal_zone0/temp"

// ThermalZone reads the SoC temperature from a sysfs thermal zone file.
// The kernel reports millidegrees Celsius; readings are returned in
// degrees Celsius.
type ThermalZone struct {
	path string
}

// NewThermalZone creates a reader for the given zone path.
// An empty path selects DefaultZonePath.
func NewThermalZone(path string) *ThermalZone {
	if path == "" {
		path = DefaultZonePath
	}
	return &ThermalZone{path: path}
}

// ReadTemperature implements telemetry.Sensor.
func (z *ThermalZone) ReadTemperature() (float64, error) {
	data, err := os.ReadFile(z.path)
	if err != nil {
		return 0, fmt.Errorf("reading thermal zone %s: %w", z.path, err)
	}

	milli, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parsing thermal zone %s: %w", z.path, err)
	}

	return float64(milli) / 1000, nil
}
