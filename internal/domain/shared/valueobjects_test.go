package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNetworkName_Matches(t *testing.T) {
	assert.True(t, NetworkName("  CampusNet ").Matches("campusnet"))
	assert.False(t, NetworkName("").Matches(""))
	assert.False(t, NetworkName("CampusNet").Matches("GuestNet"))
}

func TestBeaconFragment_FoundIn(t *testing.T) {
	assert.True(t, BeaconFragment("ATD_AB12CD").FoundIn("", "Room ATD_AB12CD"))
	assert.False(t, BeaconFragment("atd_ab12cd").FoundIn("ATD_AB12CD"))
	assert.False(t, BeaconFragment("  ").FoundIn("anything"))
}

func TestRSSI_StrongerThan(t *testing.T) {
	assert.True(t, RSSI(-60).StrongerThan(-75))
	assert.False(t, RSSI(-75).StrongerThan(-75))
	assert.False(t, MissingRSSI.StrongerThan(-127))
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	assert.Equal(t, []int{1, 2}, Paginate(items, NewPagination(1, 2)))
	assert.Equal(t, []int{5}, Paginate(items, NewPagination(3, 2)))
	assert.Empty(t, Paginate(items, NewPagination(4, 2)))
	assert.Equal(t, items, Paginate(items, DefaultPagination()))

	p := NewPagination(0, 500)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, MaxPageSize, p.Limit())
	assert.Zero(t, p.Offset())
}
