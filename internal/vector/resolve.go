package vector

import (
	"fmt"
	"strings"

	"github.com/forest-guardian/ecosystem-dashboard/internal/properties"
)

type ResolutionKind int

const (
	// Unclassified means no column could be used; the layer collapses into a
	// single synthetic row.
	Unclassified ResolutionKind = iota
	ResolvedConfigured
	ResolvedCaseInsensitive
	ResolvedGeneric
)

func (k ResolutionKind) String() string {
	switch k {
	case ResolvedConfigured:
		return "configured"
	case ResolvedCaseInsensitive:
		return "case_insensitive"
	case ResolvedGeneric:
		return "generic"
	default:
		return "unclassified"
	}
}

func (k ResolutionKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *ResolutionKind) UnmarshalText(text []byte) error {
	for _, kind := range []ResolutionKind{ResolvedConfigured, ResolvedCaseInsensitive, ResolvedGeneric, Unclassified} {
		if kind.String() == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown resolution kind %q", text)
}

// Resolution is the grouping column chosen for a layer.
type Resolution struct {
	Kind   ResolutionKind `json:"kind"`
	Column string         `json:"column,omitempty"`
}

// ResolveGroupingColumn picks the attribute to group by: the configured name,
// then the configured name ignoring case, then the first column, in layer
// order, whose name is one of properties.GenericColumns.
func ResolveGroupingColumn(configured string, columns []string) Resolution {
	if configured != "" {
		for _, column := range columns {
			if column == configured {
				return Resolution{Kind: ResolvedConfigured, Column: column}
			}
		}
		for _, column := range columns {
			if strings.EqualFold(column, configured) {
				return Resolution{Kind: ResolvedCaseInsensitive, Column: column}
			}
		}
	}
	for _, column := range columns {
		for _, candidate := range properties.GenericColumns {
			if strings.EqualFold(column, candidate) {
				return Resolution{Kind: ResolvedGeneric, Column: column}
			}
		}
	}
	return Resolution{Kind: Unclassified}
}
