// Package connectivity reports whether the device can reach the network.
// Association and reconnection are handled outside this process (pi-helper,
// NetworkManager, the MQTT client's own retry); this package only reads status.
package connectivity

import (
	"context"
	"net"
	"os"
	"sync"
	"time"
)

// Provider reports the current online state. Implementations must be cheap or cached:
// Online is called once per loop tick.
type Provider interface {
	Online() bool
}

// Func adapts a function to Provider.
type Func func() bool

func (f Func) Online() bool { return f() }

// Static is a Provider with a fixed, settable answer. Used in tests.
type Static struct {
	mu     sync.Mutex
	online bool
}

// NewStatic creates a Static provider.
func NewStatic(online bool) *Static {
	return &Static{online: online}
}

func (s *Static) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// Set changes the reported state.
func (s *Static) Set(online bool) {
	s.mu.Lock()
	s.online = online
	s.mu.Unlock()
}

// All is online only when every provider is. An empty All is online.
func All(providers ...Provider) Provider {
	return Func(func() bool {
		for _, p := range providers {
			if !p.Online() {
				return false
			}
		}
		return true
	})
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	EnvNetworkType       = "NETWORK_TYPE"
	EnvNetworkIP         = "NETWORK_IP"
	EnvNetworkStatus     = "NETWORK_STATUS"
	EnvNetworkGateway    = "NETWORK_GATEWAY"
	EnvNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	EnvNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

// StatusConnected is the NETWORK_STATUS value for a usable link.
const StatusConnected = "connected"

// NetworkInfo is the network state published by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// ReadNetworkInfo returns the pi-helper network state, or nil when NETWORK_STATUS is unset.
func ReadNetworkInfo(getenv func(string) string) *NetworkInfo {
	if getenv == nil {
		getenv = os.Getenv
	}
	s := getenv(EnvNetworkStatus)
	if s == "" {
		return nil
	}
	return &NetworkInfo{
		Type:       getenv(EnvNetworkType),
		IP:         getenv(EnvNetworkIP),
		Status:     s,
		Gateway:    getenv(EnvNetworkGateway),
		WifiStatus: getenv(EnvNetworkWifiStatus),
		SSID:       getenv(EnvNetworkWifiSSID),
	}
}

// EnvProvider derives online state from pi-helper's environment.
// Without NETWORK_STATUS the state is unknown and counts as online.
// When wantSSID is set, a Wi-Fi link to any other network counts as offline.
type EnvProvider struct {
	getenv   func(string) string
	wantSSID string
}

// NewEnvProvider creates an EnvProvider. A nil getenv uses os.Getenv.
func NewEnvProvider(getenv func(string) string, wantSSID string) *EnvProvider {
	if getenv == nil {
		getenv = os.Getenv
	}
	return &EnvProvider{getenv: getenv, wantSSID: wantSSID}
}

func (e *EnvProvider) Online() bool {
	info := ReadNetworkInfo(e.getenv)
	if info == nil {
		return true
	}
	if info.Status != StatusConnected {
		return false
	}
	if e.wantSSID != "" && info.Type == "wifi" && info.SSID != e.wantSSID {
		return false
	}
	return true
}

// DialFunc matches net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Probe checks reachability of a TCP endpoint, caching the answer for an interval so
// the loop never waits on a dial more than once per interval.
type Probe struct {
	addr    string
	timeout time.Duration
	every   time.Duration
	dial    DialFunc
	now     func() time.Time

	mu      sync.Mutex
	checked time.Time
	online  bool
}

// DefaultProbeTimeout bounds a dial when NewProbe is given a non-positive timeout.
const DefaultProbeTimeout = 5 * time.Second

// NewProbe creates a Probe for addr (host:port).
func NewProbe(addr string, timeout, every time.Duration) *Probe {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	d := &net.Dialer{}
	return &Probe{
		addr:    addr,
		timeout: timeout,
		every:   every,
		dial:    d.DialContext,
		now:     time.Now,
	}
}

func (p *Probe) Online() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if !p.checked.IsZero() && now.Sub(p.checked) < p.every {
		return p.online
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	conn, err := p.dial(ctx, "tcp", p.addr)
	if err == nil {
		conn.Close()
	}
	p.online = err == nil
	p.checked = now
	return p.online
}
