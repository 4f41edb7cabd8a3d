package proximity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alem-hub/proximity-attendance/internal/domain/shared"
)

func rssi(v int) *int { return &v }

func TestMatchPolicy(t *testing.T) {
	policy := MatchPolicy{Threshold: DefaultRSSIThreshold}

	tests := []struct {
		name string
		adv  Advertisement
		want bool
	}{
		{"name contains fragment, strong", Advertisement{Name: "Phone ATD_ABC123", RSSI: rssi(-60)}, true},
		{"local name contains fragment", Advertisement{LocalName: "ATD_ABC123", RSSI: rssi(-74)}, true},
		{"exactly at threshold", Advertisement{Name: "ATD_ABC123", RSSI: rssi(-75)}, false},
		{"too weak", Advertisement{Name: "ATD_ABC123", RSSI: rssi(-90)}, false},
		{"missing rssi", Advertisement{Name: "ATD_ABC123"}, false},
		{"wrong name", Advertisement{Name: "ATD_ZZZ999", RSSI: rssi(-40)}, false},
		{"case differs", Advertisement{Name: "atd_abc123", RSSI: rssi(-40)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.Matches(tt.adv, "ATD_ABC123"))
		})
	}
}

func TestMatchPolicy_EmptyFragmentNeverMatches(t *testing.T) {
	policy := MatchPolicy{Threshold: DefaultRSSIThreshold}
	assert.False(t, policy.Matches(Advertisement{Name: "anything", RSSI: rssi(-10)}, " "))
}

func TestAdvertisementStrength(t *testing.T) {
	assert.Equal(t, shared.MissingRSSI, Advertisement{}.Strength())
	assert.Equal(t, shared.RSSI(-50), Advertisement{RSSI: rssi(-50)}.Strength())
}

func TestNetworkNameMatches(t *testing.T) {
	assert.True(t, shared.NetworkName(" Campus-WiFi ").Matches("campus-wifi"))
	assert.False(t, shared.NetworkName("").Matches(""))
	assert.False(t, shared.NetworkName("NetA").Matches("NetB"))
}
