// Package detectorfake provides a scriptable proximity.Detector for ledger tests.
package detectorfake

import (
	"context"
	"sync"

	"github.com/alem-hub/proximity-attendance/internal/domain/proximity"
)

var _ proximity.Detector = (*Detector)(nil)

// Outcome is what the fake returns for one target.
type Outcome struct {
	Result proximity.Result
	Err    error
}

// Call records one Detect invocation.
type Call struct {
	NetworkName    string
	BeaconFragment string
}

// Detector answers Detect from a table keyed by network name or beacon
// fragment. Unknown targets are not detected.
type Detector struct {
	lock      sync.Mutex
	byNetwork map[string]Outcome
	byBeacon  map[string]Outcome
	calls     []Call
	// Hook runs before answering, e.g. to block or to race another call.
	Hook func(ctx context.Context, c Call)
}

// New returns an empty fake.
func New() *Detector {
	return &Detector{
		byNetwork: make(map[string]Outcome),
		byBeacon:  make(map[string]Outcome),
	}
}

// OnNetwork scripts the outcome for sessions with the given network name.
func (d *Detector) OnNetwork(name string, o Outcome) *Detector {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.byNetwork[name] = o
	return d
}

// OnBeacon scripts the outcome for sessions with the given fragment.
func (d *Detector) OnBeacon(fragment string, o Outcome) *Detector {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.byBeacon[fragment] = o
	return d
}

// Detect implements proximity.Detector. Network outcomes win over beacon ones.
func (d *Detector) Detect(ctx context.Context, networkName, beaconFragment string) (proximity.Result, error) {
	c := Call{NetworkName: networkName, BeaconFragment: beaconFragment}
	d.lock.Lock()
	d.calls = append(d.calls, c)
	hook := d.Hook
	d.lock.Unlock()

	if hook != nil {
		hook(ctx, c)
	}

	d.lock.Lock()
	defer d.lock.Unlock()
	if o, ok := d.byNetwork[networkName]; ok && networkName != "" {
		return o.Result, o.Err
	}
	if o, ok := d.byBeacon[beaconFragment]; ok && beaconFragment != "" {
		return o.Result, o.Err
	}
	return proximity.NotDetected, nil
}

// Calls returns a copy of every recorded call.
func (d *Detector) Calls() []Call {
	d.lock.Lock()
	defer d.lock.Unlock()
	return append([]Call(nil), d.calls...)
}

// CallCount returns how many detections ran.
func (d *Detector) CallCount() int {
	d.lock.Lock()
	defer d.lock.Unlock()
	return len(d.calls)
}

// Hit is a positive outcome for the given method.
func Hit(m proximity.Method) Outcome {
	return Outcome{Result: proximity.Detected(m)}
}

// Miss is a negative outcome carrying err.
func Miss(err error) Outcome {
	return Outcome{Result: proximity.NotDetected, Err: err}
}
