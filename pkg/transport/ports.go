package transport

import (
	"fmt"
	"sort"

	"github.com/roffe/gocan/adapter"
	"go.bug.st/serial/enumerator"
)

// Port is a serial port an adapter may be attached to.
type Port struct {
	Name    string
	USB     bool
	VID     string
	PID     string
	Serial  string
	Product string
}

func (p Port) String() string {
	if !p.USB {
		return p.Name
	}
	return fmt.Sprintf("%s [%s:%s] %s %s", p.Name, p.VID, p.PID, p.Product, p.Serial)
}

// SerialPorts lists the serial ports present on the system.
func SerialPorts() ([]Port, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}
	out := make([]Port, 0, len(ports))
	for _, p := range ports {
		out = append(out, Port{
			Name:    p.Name,
			USB:     p.IsUSB,
			VID:     p.VID,
			PID:     p.PID,
			Serial:  p.SerialNumber,
			Product: p.Product,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Adapters lists the adapter names gocan was built with, plus socketcan.
func Adapters() []string {
	names := append([]string{SocketCANName}, adapter.List()...)
	sort.Strings(names[1:])
	return names
}
