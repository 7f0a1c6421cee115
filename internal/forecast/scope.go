package forecast

import (
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// scopeNamespace seeds name-based cache tokens for market lists.
var scopeNamespace = uuid.MustParse("6f1d2a52-3c41-4b0e-9d7e-2f8f0b9c7a11")

// Scope selects the records of one plan year, optionally limited to markets.
// No markets means every market.
type Scope struct {
	Year    int      `json:"year" validate:"required,gte=1900,lte=2200"`
	Markets []string `json:"markets,omitempty" validate:"omitempty,dive,required"`
}

// Normalize trims, dedupes and sorts the market list.
func (s Scope) Normalize() Scope {
	seen := make(map[string]struct{}, len(s.Markets))
	markets := make([]string, 0, len(s.Markets))
	for _, m := range s.Markets {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		markets = append(markets, m)
	}
	sort.Strings(markets)
	if len(markets) == 0 {
		markets = nil
	}
	return Scope{Year: s.Year, Markets: markets}
}

// Contains reports whether a market belongs to the scope.
func (s Scope) Contains(market string) bool {
	if len(s.Markets) == 0 {
		return true
	}
	for _, m := range s.Markets {
		if m == market {
			return true
		}
	}
	return false
}

// Token is a short, deterministic identifier of the normalized scope.
func (s Scope) Token() string {
	n := s.Normalize()
	markets := "all"
	if len(n.Markets) > 0 {
		markets = uuid.NewSHA1(scopeNamespace, []byte(strings.Join(n.Markets, "\x1f"))).String()
	}
	return strconv.Itoa(n.Year) + ":" + markets
}
