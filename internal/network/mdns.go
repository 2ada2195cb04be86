package network

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/hashicorp/mdns"
)

const serviceType = "_sketchboard._tcp"

// Advertise publishes the host on the local network until the returned
// closer is closed.
func Advertise(port int) (io.Closer, error) {
	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("could not get hostname: %w", err)
	}

	service, err := mdns.NewMDNSService(host, serviceType, "", "", port, nil, []string{"SketchBoard"})
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to start mDNS server: %w", err)
	}
	log.Printf("[MDNS] advertising %s on port %d", host, port)
	return shutdowner{server}, nil
}

type shutdowner struct{ s *mdns.Server }

func (s shutdowner) Close() error { return s.s.Shutdown() }

// Discover returns the first host that answers within timeout.
func Discover(timeout time.Duration) (string, error) {
	entries := make(chan *mdns.ServiceEntry, 8)
	found := make(chan string, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range entries {
			if e.AddrV4 == nil || e.Port == 0 {
				continue
			}
			select {
			case found <- fmt.Sprintf("%s:%d", e.AddrV4, e.Port):
			default:
			}
		}
	}()

	params := mdns.DefaultParams(serviceType)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true
	err := mdns.Query(params)
	close(entries)
	<-done
	if err != nil {
		return "", fmt.Errorf("mdns query: %w", err)
	}

	select {
	case addr := <-found:
		log.Printf("[MDNS] found host at %s", addr)
		return addr, nil
	default:
		return "", fmt.Errorf("no host answered within %s", timeout)
	}
}
