// Package discovery advertises bridges on the local network over mDNS and
// finds them again.
package discovery

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/grandcat/zeroconf"
)

const (
	ServiceType = "_nemonic-bridge._tcp"
	Domain      = "local."
	APIPath     = "/v1"
)

// Advertise registers a bridge serving channel on port. Call Shutdown on the
// returned server to withdraw it.
func Advertise(instance string, port int, channel string) (*zeroconf.Server, error) {
	if instance == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("instance name: %w", err)
		}
		instance = "nemonic-bridge@" + host
	}
	text := []string{"channel=" + channel, "path=" + APIPath}
	server, err := zeroconf.Register(instance, ServiceType, Domain, port, text, nil)
	if err != nil {
		return nil, fmt.Errorf("register mDNS service: %w", err)
	}
	return server, nil
}

// Bridge is an advertised bridge.
type Bridge struct {
	Instance string
	Host     string
	Port     int
	Channel  string
	Path     string
	Addrs    []net.IP
}

// BaseURL returns the HTTP base URL of the bridge, preferring IPv4.
func (b Bridge) BaseURL() string {
	host := strings.TrimSuffix(b.Host, ".")
	if len(b.Addrs) > 0 {
		host = b.Addrs[0].String()
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(b.Port))
}

// Browse reports every bridge seen until ctx is done.
func Browse(ctx context.Context, found func(Bridge)) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for entry := range entries {
			found(fromEntry(entry))
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, Domain, entries); err != nil {
		return fmt.Errorf("browse %s: %w", ServiceType, err)
	}
	// the resolver closes entries once ctx is done
	<-done
	return nil
}

func fromEntry(e *zeroconf.ServiceEntry) Bridge {
	b := Bridge{
		Instance: e.Instance,
		Host:     e.HostName,
		Port:     e.Port,
		Path:     APIPath,
	}
	b.Addrs = append(b.Addrs, e.AddrIPv4...)
	b.Addrs = append(b.Addrs, e.AddrIPv6...)
	for _, kv := range e.Text {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		switch k {
		case "channel":
			b.Channel = v
		case "path":
			b.Path = v
		}
	}
	return b
}
