package attendance

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/proximity-attendance/internal/domain/shared"
)

var t0 = time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)

func TestNewSession(t *testing.T) {
	s, err := NewSession("s-1", NewSessionParams{
		Name:           "  Algorithms  ",
		BeaconFragment: " ATD_ABC123 ",
		OwnerID:        "admin-1",
	}, t0, "2026-03-09")
	require.NoError(t, err)

	assert.Equal(t, "Algorithms", s.Name)
	assert.Equal(t, "ATD_ABC123", s.BeaconFragment)
	assert.True(t, s.Active)
	assert.Nil(t, s.EndedAt)
	assert.False(t, s.Undetectable())
}

func TestNewSession_Validation(t *testing.T) {
	_, err := NewSession("s-1", NewSessionParams{Name: " ", OwnerID: "a"}, t0, "")
	assert.ErrorIs(t, err, shared.ErrSessionNameRequired)
	assert.True(t, shared.IsValidation(err))

	_, err = NewSession("s-1", NewSessionParams{Name: "x"}, t0, "")
	assert.ErrorIs(t, err, shared.ErrOwnerRequired)
}

func TestSession_UndetectableWithoutSignals(t *testing.T) {
	s, err := NewSession("s-1", NewSessionParams{Name: "x", OwnerID: "a", NetworkName: "   "}, t0, "")
	require.NoError(t, err)
	assert.True(t, s.Undetectable())
}

func TestSession_EndOnce(t *testing.T) {
	s, err := NewSession("s-1", NewSessionParams{Name: "x", OwnerID: "a"}, t0, "")
	require.NoError(t, err)

	first := t0.Add(time.Hour)
	assert.True(t, s.End(first))
	assert.False(t, s.End(first.Add(time.Hour)))
	assert.False(t, s.Active)
	assert.Equal(t, first, *s.EndedAt)
	assert.Equal(t, time.Hour, s.Duration(t0.Add(5*time.Hour)))
}

func TestNewRecord(t *testing.T) {
	r, err := NewRecord("r-1", "p-1", "Aru", "s-1", MethodWiFi, t0, "2026-03-09")
	require.NoError(t, err)
	assert.Equal(t, StatusPresent, r.Status)
	assert.Equal(t, PairKey{PersonID: "p-1", SessionID: "s-1"}, r.Key())

	_, err = NewRecord("r-2", "", "Aru", "s-1", MethodWiFi, t0, "")
	assert.ErrorIs(t, err, shared.ErrPersonRequired)

	_, err = NewRecord("r-3", "p-1", "Aru", "s-1", Method("carrier-pigeon"), t0, "")
	assert.ErrorIs(t, err, shared.ErrInvalidMethod)
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod(" WiFi ")
	require.NoError(t, err)
	assert.Equal(t, MethodWiFi, m)

	_, err = ParseMethod("nfc")
	assert.Error(t, err)
}

func TestGenerateBeaconFragment(t *testing.T) {
	pattern := regexp.MustCompile(`^ATD_[A-Z0-9]{6}$`)
	seen := map[string]bool{}
	for range 50 {
		f := GenerateBeaconFragment()
		assert.Regexp(t, pattern, f)
		seen[f] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestRole(t *testing.T) {
	assert.True(t, Person{Role: RoleAdmin}.IsAdmin())
	assert.False(t, Person{Role: RoleStudent}.IsAdmin())
	assert.False(t, Role("guest").IsValid())
}
