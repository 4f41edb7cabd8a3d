package sensor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/proximity-attendance/internal/application/detection"
	"github.com/alem-hub/proximity-attendance/internal/domain/proximity"
	"github.com/alem-hub/proximity-attendance/internal/domain/shared"
)

func ad(name string, dbm int) proximity.Advertisement {
	return proximity.Advertisement{Name: name, RSSI: &dbm}
}

func engine() *detection.Engine {
	return detection.NewEngine(NewSnapshot(), detection.WithSoftDeadline(2*time.Second), detection.WithHardCap(3*time.Second))
}

func TestSnapshot_NoObservationIsPermissionDenied(t *testing.T) {
	_, err := engine().Detect(t.Context(), "Net", "ATD_ABC123")
	assert.ErrorIs(t, err, shared.ErrPermissionDenied)
}

func TestSnapshot_WiFi(t *testing.T) {
	ctx := WithObservation(t.Context(), Observation{PermissionsGranted: true, NetworkName: "net "})
	res, err := engine().Detect(ctx, "NET", "")
	require.NoError(t, err)
	assert.Equal(t, proximity.Detected(proximity.MethodWiFi), res)
}

func TestSnapshot_ReplaysAdvertisements(t *testing.T) {
	ctx := WithObservation(t.Context(), Observation{
		PermissionsGranted: true,
		BluetoothOn:        true,
		Advertisements:     []proximity.Advertisement{ad("ATD_ABC123", -90), {Name: "ATD_ABC123"}, ad("Room ATD_ABC123", -60)},
	})
	res, err := engine().Detect(ctx, "", "ATD_ABC123")
	require.NoError(t, err)
	assert.Equal(t, proximity.Detected(proximity.MethodBluetooth), res)
}

func TestSnapshot_ExhaustedReplayEndsDetectionEarly(t *testing.T) {
	ctx := WithObservation(t.Context(), Observation{
		PermissionsGranted: true,
		BluetoothOn:        true,
		Advertisements:     []proximity.Advertisement{ad("Headphones", -40)},
	})
	start := time.Now()
	_, err := engine().Detect(ctx, "", "ATD_ABC123")
	assert.ErrorIs(t, err, shared.ErrDetectionTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSnapshot_BluetoothOff(t *testing.T) {
	ctx := WithObservation(t.Context(), Observation{PermissionsGranted: true})
	_, err := engine().Detect(ctx, "", "ATD_ABC123")
	assert.ErrorIs(t, err, shared.ErrBluetoothUnavailable)
}

func TestReplay_CancelStopsDelivery(t *testing.T) {
	ctx := WithObservation(t.Context(), Observation{
		Advertisements: []proximity.Advertisement{ad("a", -50), ad("b", -50), ad("c", -50)},
	})
	handle, err := NewSnapshot(WithReplaySpacing(time.Hour)).ScanForBeacon(ctx, "x")
	require.NoError(t, err)

	first := <-handle.Devices()
	assert.Equal(t, "a", first.Name)

	handle.Cancel()
	handle.Cancel()
	_, open := <-handle.Devices()
	assert.False(t, open)
}
