// Package filter decides which contractors' records are persisted.
package filter

import (
	"strings"

	"go.uber.org/zap"
)

// AllowList answers whether a business number is actively allow-listed.
type AllowList interface {
	IsActiveBusinessNumber(bizno string) (bool, error)
}

// Gate admits records whose contractor business number is on the allow-list.
type Gate struct {
	list    AllowList
	enabled bool
	logger  *zap.Logger
}

// NewGate creates a gate. A disabled gate admits every record.
func NewGate(list AllowList, enabled bool, logger *zap.Logger) *Gate {
	return &Gate{list: list, enabled: enabled, logger: logger}
}

// Enabled reports whether filtering is applied.
func (g *Gate) Enabled() bool { return g.enabled }

// IsAllowed reports whether a record with this business number may be stored.
// Blank numbers are rejected without a lookup.
func (g *Gate) IsAllowed(bizno string) (bool, error) {
	if !g.enabled {
		return true, nil
	}
	if strings.TrimSpace(bizno) == "" {
		return false, nil
	}
	ok, err := g.list.IsActiveBusinessNumber(bizno)
	if err != nil {
		return false, err
	}
	if !ok {
		g.logger.Debug("record filtered out", zap.String("business_number", bizno))
	}
	return ok, nil
}
