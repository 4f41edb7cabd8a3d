// Package proximity describes the device capabilities the detection engine
// consumes and the value types it produces. It knows nothing about sessions
// or people, only about a target network name and a beacon fragment.
package proximity

import (
	"context"
	"sync"

	"github.com/alem-hub/proximity-attendance/internal/domain/shared"
)

// Advertisement is one observed Bluetooth peripheral.
type Advertisement struct {
	Name      string `json:"name,omitempty"`
	LocalName string `json:"local_name,omitempty"`
	// RSSI is nil when the device reported no signal strength.
	RSSI *int `json:"rssi,omitempty"`
}

// Strength returns the reported signal, or shared.MissingRSSI.
func (a Advertisement) Strength() shared.RSSI {
	if a.RSSI == nil {
		return shared.MissingRSSI
	}
	return shared.RSSI(*a.RSSI)
}

// ScanHandle is a running beacon scan.
//
// Cancel stops the scan and is synchronous: once it returns, nothing more
// is delivered on Devices. Cancel may be called any number of times.
// Devices is closed if the scanner stops on its own.
type ScanHandle interface {
	Devices() <-chan Advertisement
	Cancel()
}

// CapabilityGateway abstracts platform permissions and the two raw sensors.
type CapabilityGateway interface {
	// HasRequiredPermissions reports whether location and bluetooth access is granted.
	HasRequiredPermissions(ctx context.Context) bool

	// RequestPermissions asks for the missing permissions and reports the outcome.
	RequestPermissions(ctx context.Context) bool

	// CurrentNetworkName returns the SSID of the connected WiFi network.
	CurrentNetworkName(ctx context.Context) (string, bool)

	// BluetoothPoweredOn reports whether the radio can scan right now.
	BluetoothPoweredOn(ctx context.Context) bool

	// ScanForBeacon starts a scan. The fragment is a hint; filtering is
	// the caller's job.
	ScanForBeacon(ctx context.Context, fragment string) (ScanHandle, error)
}

// Method is the signal that proved presence.
type Method string

const (
	MethodWiFi      Method = "wifi"
	MethodBluetooth Method = "bluetooth"
)

// Result is the transient outcome of one detection. Never persisted.
type Result struct {
	Detected bool   `json:"detected"`
	Method   Method `json:"method,omitempty"`
}

// NotDetected is the zero result.
var NotDetected = Result{}

// Detected builds a positive result for the given method.
func Detected(m Method) Result {
	return Result{Detected: true, Method: m}
}

// Detector runs one detection against a target network and beacon fragment.
type Detector interface {
	Detect(ctx context.Context, networkName, beaconFragment string) (Result, error)
}

// PermissionPrompt remembers the outcome of one permission request so a
// batch of detections asks the user at most once.
type PermissionPrompt struct {
	mu      sync.Mutex
	asked   bool
	granted bool
}

type permissionPromptKey struct{}

// WithPermissionPrompt returns a context whose detections share one
// permission request. An existing prompt on ctx is kept.
func WithPermissionPrompt(ctx context.Context) context.Context {
	if PermissionPromptFrom(ctx) != nil {
		return ctx
	}
	return context.WithValue(ctx, permissionPromptKey{}, &PermissionPrompt{})
}

// PermissionPromptFrom returns the prompt carried by ctx, or nil.
func PermissionPromptFrom(ctx context.Context) *PermissionPrompt {
	p, _ := ctx.Value(permissionPromptKey{}).(*PermissionPrompt)
	return p
}

// Ask calls request on first use and replays its outcome afterwards.
// A nil prompt always calls request.
func (p *PermissionPrompt) Ask(request func() bool) bool {
	if p == nil {
		return request()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.asked {
		p.granted = request()
		p.asked = true
	}
	return p.granted
}

// DefaultRSSIThreshold is the weakest signal, exclusive, that counts as nearby.
const DefaultRSSIThreshold shared.RSSI = -75

// MatchPolicy decides whether an advertisement is the session's beacon.
// It is deliberately permissive: a substring of the name and a strong
// enough signal are all it takes.
type MatchPolicy struct {
	Threshold shared.RSSI
}

// Matches reports whether adv carries the fragment in its name or local
// name and is strictly stronger than the threshold.
func (p MatchPolicy) Matches(adv Advertisement, fragment string) bool {
	if !shared.BeaconFragment(fragment).FoundIn(adv.Name, adv.LocalName) {
		return false
	}
	return adv.Strength().StrongerThan(p.Threshold)
}
