package probe

import (
	"fmt"
	"strings"

	"github.com/dmitriimaksimovdevelop/dbprobe/internal/model"
)

// Scope selects which domain tables the anomaly scanner inspects.
type Scope int

const (
	ScopeAll Scope = iota
	ScopeOrders
	ScopeInventory
	ScopeTransactions
)

var scopeNames = map[Scope]string{
	ScopeAll:          "all",
	ScopeOrders:       "orders",
	ScopeInventory:    "inventory",
	ScopeTransactions: "transactions",
}

// ParseScope parses a case-insensitive scope name. The empty string means
// ScopeAll; anything else unknown is an InvalidScopeError.
func ParseScope(s string) (Scope, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return ScopeAll, nil
	}
	for sc, n := range scopeNames {
		if n == name {
			return sc, nil
		}
	}
	return 0, model.NewError(model.KindInvalidScope, "", "tables",
		fmt.Sprintf("unknown scope %q, want one of orders, inventory, transactions, all", s), nil)
}

func (s Scope) String() string {
	if n, ok := scopeNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Scope(%d)", int(s))
}

// Includes reports whether scanning s covers table t.
func (s Scope) Includes(t Scope) bool {
	return s == ScopeAll || s == t
}

// ScopeNames lists valid scope values for help texts and tool schemas.
func ScopeNames() []string {
	return []string{"orders", "inventory", "transactions", "all"}
}
