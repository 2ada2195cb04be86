package network

import (
	"fmt"
	"log"
	"net"
	"strings"
)

// Scheme prefixes share links handed to participants.
const Scheme = "sketchboard://"

// OutgoingIP finds the preferred local IP address for the host to share.
func OutgoingIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		// offline LAN: fall back to interfaces
		return localIPFallback()
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String(), nil
}

func localIPFallback() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}
	for _, address := range addrs {
		if ipnet, ok := address.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipnet.IP.To4() != nil {
				return ipnet.IP.String(), nil
			}
		}
	}
	log.Println("[NET] no suitable local IP found, share link uses loopback")
	return "127.0.0.1", nil
}

// ShareLink formats the link a participant passes on the command line.
func ShareLink(ip string, port int) string {
	return fmt.Sprintf("%s%s", Scheme, net.JoinHostPort(ip, fmt.Sprint(port)))
}

// ParseLink extracts host:port from a share link. An empty address means
// the link carried no host and the caller should discover one.
func ParseLink(link string) (string, error) {
	if !strings.HasPrefix(link, Scheme) {
		return "", fmt.Errorf("link %q does not start with %s", link, Scheme)
	}
	addr := strings.TrimSuffix(strings.TrimPrefix(link, Scheme), "/")
	if addr == "" {
		return "", nil
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return "", fmt.Errorf("link %q: %w", link, err)
	}
	return addr, nil
}
