// Package sensor turns a device-reported observation into a
// CapabilityGateway, so check-ins submitted by mobile clients run through
// the same detection engine as on-device scans.
package sensor

import (
	"context"
	"sync"
	"time"

	"github.com/alem-hub/proximity-attendance/internal/domain/proximity"
)

// MaxAdvertisements bounds how many advertisements one observation carries.
const MaxAdvertisements = 256

// Observation is what a client saw at check-in time.
type Observation struct {
	PermissionsGranted bool                      `json:"permissions_granted"`
	BluetoothOn        bool                      `json:"bluetooth_on"`
	NetworkName        string                    `json:"network_name,omitempty" validate:"max=64"`
	Advertisements     []proximity.Advertisement `json:"advertisements,omitempty" validate:"max=256"`
}

type observationKey struct{}

// WithObservation attaches an observation to ctx.
func WithObservation(ctx context.Context, obs Observation) context.Context {
	return context.WithValue(ctx, observationKey{}, obs)
}

// ObservationFrom returns the observation attached to ctx.
func ObservationFrom(ctx context.Context) (Observation, bool) {
	obs, ok := ctx.Value(observationKey{}).(Observation)
	return obs, ok
}

var _ proximity.CapabilityGateway = (*Snapshot)(nil)

// Snapshot answers every capability question from the observation in the
// request context. Without one it behaves like a device that never granted
// permissions.
type Snapshot struct {
	spacing time.Duration
}

// Option configures a Snapshot.
type Option func(*Snapshot)

// WithReplaySpacing delays each replayed advertisement after the first.
func WithReplaySpacing(d time.Duration) Option {
	return func(s *Snapshot) {
		if d > 0 {
			s.spacing = d
		}
	}
}

// NewSnapshot creates the gateway.
func NewSnapshot(opts ...Option) *Snapshot {
	s := &Snapshot{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Snapshot) HasRequiredPermissions(ctx context.Context) bool {
	obs, ok := ObservationFrom(ctx)
	return ok && obs.PermissionsGranted
}

// RequestPermissions cannot prompt anyone; it reports the observed grant.
func (s *Snapshot) RequestPermissions(ctx context.Context) bool {
	return s.HasRequiredPermissions(ctx)
}

func (s *Snapshot) CurrentNetworkName(ctx context.Context) (string, bool) {
	obs, ok := ObservationFrom(ctx)
	if !ok || obs.NetworkName == "" {
		return "", false
	}
	return obs.NetworkName, true
}

func (s *Snapshot) BluetoothPoweredOn(ctx context.Context) bool {
	obs, ok := ObservationFrom(ctx)
	return ok && obs.BluetoothOn
}

// ScanForBeacon replays the observed advertisements and then closes the
// device channel, which the engine reads as "nothing found".
func (s *Snapshot) ScanForBeacon(ctx context.Context, _ string) (proximity.ScanHandle, error) {
	obs, _ := ObservationFrom(ctx)
	ads := obs.Advertisements
	if len(ads) > MaxAdvertisements {
		ads = ads[:MaxAdvertisements]
	}

	sc := &replay{
		out:  make(chan proximity.Advertisement),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go sc.run(ctx, ads, s.spacing)
	return sc, nil
}

type replay struct {
	out  chan proximity.Advertisement
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func (r *replay) run(ctx context.Context, ads []proximity.Advertisement, spacing time.Duration) {
	defer close(r.done)
	defer close(r.out)

	for i, ad := range ads {
		if i > 0 && spacing > 0 {
			t := time.NewTimer(spacing)
			select {
			case <-t.C:
			case <-r.stop:
				t.Stop()
				return
			case <-ctx.Done():
				t.Stop()
				return
			}
		}
		select {
		case r.out <- ad:
		case <-r.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (r *replay) Devices() <-chan proximity.Advertisement {
	return r.out
}

// Cancel stops the replay and waits for it to exit.
func (r *replay) Cancel() {
	r.once.Do(func() { close(r.stop) })
	<-r.done
}
