package departments

import (
	"strings"

	"github.com/dukex/prodflow/pkg/models"
)

// ConditionKind selects which order attribute a skip edge inspects.
type ConditionKind string

const (
	ConditionAlways       ConditionKind = ""
	ConditionNoStockModel ConditionKind = "no_stock_model"
	ConditionFlag         ConditionKind = "flag"
)

const flagPrefix = "flag:"

// Condition gates default routing over a skip edge.
type Condition struct {
	Kind ConditionKind
	Flag string
}

// ParseCondition reads the `when` syntax: empty, "no_stock_model" or "flag:<name>".
func ParseCondition(s string) (Condition, error) {
	s = strings.TrimSpace(s)

	switch {
	case s == "":
		return Condition{Kind: ConditionAlways}, nil
	case s == string(ConditionNoStockModel):
		return Condition{Kind: ConditionNoStockModel}, nil
	case strings.HasPrefix(s, flagPrefix) && len(s) > len(flagPrefix):
		return Condition{Kind: ConditionFlag, Flag: strings.TrimPrefix(s, flagPrefix)}, nil
	default:
		return Condition{}, definitionError("unknown skip condition %q", s)
	}
}

// Matches reports whether o satisfies the condition. Unconditional edges never
// match: they are legal on request but not part of default routing.
func (c Condition) Matches(o *models.ProductionOrder) bool {
	if o == nil {
		return false
	}

	switch c.Kind {
	case ConditionNoStockModel:
		return strings.TrimSpace(o.StockModel) == ""
	case ConditionFlag:
		return o.HasFlag(c.Flag)
	default:
		return false
	}
}

func (c Condition) String() string {
	switch c.Kind {
	case ConditionFlag:
		return flagPrefix + c.Flag
	default:
		return string(c.Kind)
	}
}
