// Package gatewayfake provides a scriptable CapabilityGateway for tests.
package gatewayfake

import (
	"context"
	"sync"

	"github.com/alem-hub/proximity-attendance/internal/domain/proximity"
)

var _ proximity.CapabilityGateway = (*Gateway)(nil)
var _ proximity.ScanHandle = (*Scan)(nil)

// Gateway is an in-memory CapabilityGateway. Zero value has no permissions
// and bluetooth off; use New for a cooperative device.
type Gateway struct {
	lock sync.Mutex

	permitted  bool
	grantOnAsk bool
	network    string
	hasNetwork bool
	poweredOn  bool
	scanErr    error
	// Replayed into every new scan before it is returned.
	preloaded []proximity.Advertisement

	scans          []*Scan
	networkQueries int
	permissionAsks int
}

// New returns a gateway with permissions granted, bluetooth on and no WiFi.
func New() *Gateway {
	return &Gateway{permitted: true, grantOnAsk: true, poweredOn: true}
}

// SetPermissions controls the current grant and what a request yields.
func (g *Gateway) SetPermissions(granted, grantOnRequest bool) *Gateway {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.permitted, g.grantOnAsk = granted, grantOnRequest
	return g
}

// SetNetwork sets the connected SSID. An empty name means disconnected.
func (g *Gateway) SetNetwork(name string) *Gateway {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.network, g.hasNetwork = name, name != ""
	return g
}

// SetBluetooth powers the radio on or off.
func (g *Gateway) SetBluetooth(on bool) *Gateway {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.poweredOn = on
	return g
}

// FailScans makes ScanForBeacon return err.
func (g *Gateway) FailScans(err error) *Gateway {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.scanErr = err
	return g
}

// Preload queues advertisements delivered as soon as a scan starts.
func (g *Gateway) Preload(ads ...proximity.Advertisement) *Gateway {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.preloaded = append(g.preloaded, ads...)
	return g
}

func (g *Gateway) HasRequiredPermissions(context.Context) bool {
	g.lock.Lock()
	defer g.lock.Unlock()
	return g.permitted
}

func (g *Gateway) RequestPermissions(context.Context) bool {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.permissionAsks++
	if g.grantOnAsk {
		g.permitted = true
	}
	return g.permitted
}

func (g *Gateway) CurrentNetworkName(context.Context) (string, bool) {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.networkQueries++
	return g.network, g.hasNetwork
}

func (g *Gateway) BluetoothPoweredOn(context.Context) bool {
	g.lock.Lock()
	defer g.lock.Unlock()
	return g.poweredOn
}

func (g *Gateway) ScanForBeacon(_ context.Context, fragment string) (proximity.ScanHandle, error) {
	g.lock.Lock()
	defer g.lock.Unlock()

	if g.scanErr != nil {
		return nil, g.scanErr
	}
	s := &Scan{fragment: fragment, ch: make(chan proximity.Advertisement, 64)}
	for _, ad := range g.preloaded {
		s.Emit(ad)
	}
	g.scans = append(g.scans, s)
	return s, nil
}

// Starts returns how many scans were started.
func (g *Gateway) Starts() int {
	g.lock.Lock()
	defer g.lock.Unlock()
	return len(g.scans)
}

// Cancels returns how many started scans have been cancelled.
func (g *Gateway) Cancels() int {
	g.lock.Lock()
	defer g.lock.Unlock()
	n := 0
	for _, s := range g.scans {
		if s.Cancelled() {
			n++
		}
	}
	return n
}

// NetworkQueries returns how often the SSID was read.
func (g *Gateway) NetworkQueries() int {
	g.lock.Lock()
	defer g.lock.Unlock()
	return g.networkQueries
}

// PermissionRequests returns how often permissions were requested.
func (g *Gateway) PermissionRequests() int {
	g.lock.Lock()
	defer g.lock.Unlock()
	return g.permissionAsks
}

// Scan returns the i-th started scan, or nil.
func (g *Gateway) Scan(i int) *Scan {
	g.lock.Lock()
	defer g.lock.Unlock()
	if i < 0 || i >= len(g.scans) {
		return nil
	}
	return g.scans[i]
}

// LastScan returns the most recently started scan, or nil.
func (g *Gateway) LastScan() *Scan {
	g.lock.Lock()
	defer g.lock.Unlock()
	if len(g.scans) == 0 {
		return nil
	}
	return g.scans[len(g.scans)-1]
}

// Scan is a fake ScanHandle driven by Emit and Finish.
type Scan struct {
	lock      sync.Mutex
	fragment  string
	ch        chan proximity.Advertisement
	cancelled int
	closed    bool
}

func (s *Scan) Devices() <-chan proximity.Advertisement {
	return s.ch
}

func (s *Scan) Cancel() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.cancelled++
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Emit delivers an advertisement. It reports false if the scan was
// already cancelled or finished, meaning nobody can observe it.
func (s *Scan) Emit(ad proximity.Advertisement) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- ad:
		return true
	default:
		return false
	}
}

// Finish simulates the scanner stopping without being cancelled.
func (s *Scan) Finish() {
	s.lock.Lock()
	defer s.lock.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Cancelled reports whether Cancel was called at least once.
func (s *Scan) Cancelled() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.cancelled > 0
}

// Fragment returns the fragment the scan was started with.
func (s *Scan) Fragment() string {
	return s.fragment
}
