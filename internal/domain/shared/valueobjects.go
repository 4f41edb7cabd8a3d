package shared

import (
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// Signal Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// RSSI is a received signal strength in dBm. Less negative is stronger.
type RSSI int

// MissingRSSI stands in for devices that advertise without a signal reading.
// It never passes a realistic threshold.
const MissingRSSI RSSI = -999

// StrongerThan reports whether r is strictly stronger than threshold.
func (r RSSI) StrongerThan(threshold RSSI) bool {
	return r > threshold
}

// NetworkName is a WiFi network identity (SSID).
type NetworkName string

// Normalize trims whitespace and folds case for comparison.
func (n NetworkName) Normalize() string {
	return strings.ToLower(strings.TrimSpace(string(n)))
}

// IsEmpty reports whether the name is blank after trimming.
func (n NetworkName) IsEmpty() bool {
	return n.Normalize() == ""
}

// Matches compares two network names after trimming, case-insensitively.
// Blank names never match.
func (n NetworkName) Matches(other NetworkName) bool {
	if n.IsEmpty() || other.IsEmpty() {
		return false
	}
	return n.Normalize() == other.Normalize()
}

// BeaconFragment is a substring expected in a beacon's advertised name.
type BeaconFragment string

// IsEmpty reports whether the fragment is blank after trimming.
func (b BeaconFragment) IsEmpty() bool {
	return strings.TrimSpace(string(b)) == ""
}

// FoundIn reports whether the fragment occurs in any of the given names.
// Matching is case-sensitive, as beacon names are generated upper-case.
func (b BeaconFragment) FoundIn(names ...string) bool {
	frag := strings.TrimSpace(string(b))
	if frag == "" {
		return false
	}
	for _, name := range names {
		if name != "" && strings.Contains(name, frag) {
			return true
		}
	}
	return false
}

// ═══════════════════════════════════════════════════════════════════════════
// Pagination Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Pagination represents pagination parameters.
type Pagination struct {
	Page     int
	PageSize int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Offset returns the offset for database queries.
func (p Pagination) Offset() int {
	if p.Page <= 0 {
		return 0
	}
	return (p.Page - 1) * p.Limit()
}

// Limit returns the limit for database queries.
func (p Pagination) Limit() int {
	if p.PageSize <= 0 {
		return DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		return MaxPageSize
	}
	return p.PageSize
}

// NewPagination creates a new Pagination with defaults.
func NewPagination(page, pageSize int) Pagination {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return Pagination{Page: page, PageSize: pageSize}
}

// DefaultPagination returns default pagination.
func DefaultPagination() Pagination {
	return NewPagination(1, DefaultPageSize)
}

// Paginate returns the page of items selected by p.
func Paginate[T any](items []T, p Pagination) []T {
	start := p.Offset()
	if start >= len(items) {
		return items[:0]
	}
	end := min(start+p.Limit(), len(items))
	return items[start:end]
}
