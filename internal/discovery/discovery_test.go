package discovery

import (
	"net"
	"testing"

	"github.com/grandcat/zeroconf"
	"github.com/stretchr/testify/assert"
)

func TestFromEntry(t *testing.T) {
	e := zeroconf.NewServiceEntry("desk", ServiceType, Domain)
	e.HostName = "desk.local."
	e.Port = 8642
	e.Text = []string{"channel=nemonic_sdk", "path=/v2", "junk"}
	e.AddrIPv4 = []net.IP{net.IPv4(192, 168, 1, 20)}

	b := fromEntry(e)
	assert.Equal(t, "desk", b.Instance)
	assert.Equal(t, "nemonic_sdk", b.Channel)
	assert.Equal(t, "/v2", b.Path)
	assert.Equal(t, "http://192.168.1.20:8642", b.BaseURL())
}

func TestBaseURLFallsBackToHost(t *testing.T) {
	b := Bridge{Host: "desk.local.", Port: 80}
	assert.Equal(t, "http://desk.local:80", b.BaseURL())

	b.Addrs = []net.IP{net.ParseIP("fe80::1")}
	assert.Equal(t, "http://[fe80::1]:80", b.BaseURL())
}

func TestFromEntryDefaultsPath(t *testing.T) {
	e := zeroconf.NewServiceEntry("x", ServiceType, Domain)
	assert.Equal(t, APIPath, fromEntry(e).Path)
}
