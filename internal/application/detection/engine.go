// Package detection implements the proximity detection engine: a WiFi check
// first and, failing that, a bounded Bluetooth beacon scan.
package detection

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alem-hub/proximity-attendance/internal/domain/proximity"
	"github.com/alem-hub/proximity-attendance/internal/domain/shared"
	"github.com/alem-hub/proximity-attendance/pkg/logger"
)

const tracerName = "github.com/alem-hub/proximity-attendance/detection"

// Default timings for the beacon scan.
const (
	DefaultSoftDeadline = 15 * time.Second
	DefaultHardCap      = 30 * time.Second
)

var _ proximity.Detector = (*Engine)(nil)

// ══════════════════════════════════════════════════════════════════════════════
// ENGINE
// ══════════════════════════════════════════════════════════════════════════════

// Engine races the WiFi and Bluetooth signals for one target. Each Detect
// call is independent; the engine holds no state between calls.
type Engine struct {
	gateway      proximity.CapabilityGateway
	policy       proximity.MatchPolicy
	softDeadline time.Duration
	hardCap      time.Duration
	log          *logger.Logger
	tracer       trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithRSSIThreshold sets the weakest signal, exclusive, accepted as nearby.
func WithRSSIThreshold(dbm int) Option {
	return func(e *Engine) {
		e.policy.Threshold = shared.RSSI(dbm)
	}
}

// WithSoftDeadline bounds how long a scan waits for a matching beacon.
func WithSoftDeadline(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.softDeadline = d
		}
	}
}

// WithHardCap bounds the whole detection, gateway calls included. A cap
// shorter than the soft deadline is raised to the soft deadline.
func WithHardCap(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.hardCap = d
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithTracerProvider sets where detection spans go.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) {
		if tp != nil {
			e.tracer = tp.Tracer(tracerName)
		}
	}
}

// NewEngine creates an engine over the given gateway.
func NewEngine(gateway proximity.CapabilityGateway, opts ...Option) *Engine {
	e := &Engine{
		gateway:      gateway,
		policy:       proximity.MatchPolicy{Threshold: proximity.DefaultRSSIThreshold},
		softDeadline: DefaultSoftDeadline,
		hardCap:      DefaultHardCap,
		log:          logger.Nop(),
		tracer:       otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With(logger.Component("detection"))
	if e.hardCap < e.softDeadline {
		e.log.Warn("hard cap below soft deadline, raising it",
			logger.Duration("hard_cap", e.hardCap),
			logger.Duration("soft_deadline", e.softDeadline),
		)
		e.hardCap = e.softDeadline
	}
	return e
}

// Detect reports whether the device is near the target.
//
// A matching WiFi network wins immediately and no scan is started. Otherwise
// a beacon scan runs until a match, the soft deadline, the hard cap, or ctx
// cancellation. The scan is cancelled on every exit path.
//
// A not-detected result may come with ErrPermissionDenied,
// ErrBluetoothUnavailable or ErrDetectionTimeout describing why.
func (e *Engine) Detect(ctx context.Context, networkName, beaconFragment string) (result proximity.Result, err error) {
	network := shared.NetworkName(networkName)
	fragment := shared.BeaconFragment(beaconFragment)

	if network.IsEmpty() && fragment.IsEmpty() {
		return proximity.NotDetected, nil
	}

	ctx, span := e.tracer.Start(ctx, "proximity.Detect", trace.WithAttributes(
		attribute.Bool("proximity.has_network", !network.IsEmpty()),
		attribute.Bool("proximity.has_beacon", !fragment.IsEmpty()),
	))
	start := time.Now()
	defer func() {
		span.SetAttributes(
			attribute.Bool("proximity.detected", result.Detected),
			attribute.String("proximity.method", string(result.Method)),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		e.log.Debug("detection finished",
			logger.Bool("detected", result.Detected),
			logger.Method(string(result.Method)),
			logger.Latency(time.Since(start)),
			logger.Err(err),
		)
	}()

	// Gateway calls can block on the platform; the hard cap covers them too.
	ctx, cancel := context.WithTimeout(ctx, e.hardCap)
	defer cancel()

	if !e.ensurePermissions(ctx) {
		return proximity.NotDetected, shared.ErrPermissionDenied
	}

	if !network.IsEmpty() {
		if current, ok := e.gateway.CurrentNetworkName(ctx); ok && network.Matches(shared.NetworkName(current)) {
			return proximity.Detected(proximity.MethodWiFi), nil
		}
	}

	if fragment.IsEmpty() {
		return proximity.NotDetected, nil
	}

	if !e.gateway.BluetoothPoweredOn(ctx) {
		return proximity.NotDetected, shared.ErrBluetoothUnavailable
	}

	return e.scan(ctx, string(fragment))
}

// ensurePermissions asks for missing permissions. Under a
// proximity.WithPermissionPrompt context the request is made once and its
// outcome reused for the rest of the batch.
func (e *Engine) ensurePermissions(ctx context.Context) bool {
	if e.gateway.HasRequiredPermissions(ctx) {
		return true
	}
	return proximity.PermissionPromptFrom(ctx).Ask(func() bool {
		return e.gateway.RequestPermissions(ctx)
	})
}

// scan waits for the first matching advertisement. ctx already carries the
// hard cap; the soft deadline is an independent timer.
func (e *Engine) scan(ctx context.Context, fragment string) (proximity.Result, error) {
	soft := time.NewTimer(e.softDeadline)
	defer soft.Stop()

	handle, err := e.gateway.ScanForBeacon(ctx, fragment)
	if err != nil {
		return proximity.NotDetected, shared.WrapError("proximity", "Scan", shared.ErrBluetoothUnavailable, "could not start beacon scan", err)
	}
	defer handle.Cancel()

	devices := handle.Devices()
	for {
		select {
		case ad, ok := <-devices:
			if !ok {
				// Scanner gave up on its own.
				return proximity.NotDetected, shared.ErrDetectionTimeout
			}
			if e.policy.Matches(ad, fragment) {
				return proximity.Detected(proximity.MethodBluetooth), nil
			}
		case <-soft.C:
			return proximity.NotDetected, shared.ErrDetectionTimeout
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return proximity.NotDetected, shared.ErrDetectionTimeout
			}
			return proximity.NotDetected, ctx.Err()
		}
	}
}
