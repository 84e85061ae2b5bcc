package artifact

import (
	"sort"
	"strings"

	"golang.org/x/exp/maps"

	"github.com/G-Research/popgen/internal/common/popgenerrors"
)

// Kind selects how a request's output is packaged.
type Kind string

const (
	// KindDefault packages the records as a single JSON array member.
	KindDefault Kind = "default"
	// KindCSV additionally packages the tabular files written by the generator.
	KindCSV Kind = "csv"
)

var kindAliases = map[string]Kind{
	"":        KindDefault,
	"default": KindDefault,
	"json":    KindDefault,
	"csv":     KindCSV,
}

// ParseKind resolves s, case-insensitively, to a known Kind. An empty string means KindDefault.
func ParseKind(s string) (Kind, error) {
	kind, ok := kindAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		known := maps.Keys(kindAliases)
		sort.Strings(known)
		return "", &popgenerrors.ErrInvalidIdentifier{
			Name:  "output kind (one of " + strings.Join(known[1:], ", ") + ")",
			Value: s,
		}
	}
	return kind, nil
}

func (k Kind) String() string {
	return string(k)
}

// UnmarshalText lets configuration decoders and encoding/json accept any alias of a kind.
func (k *Kind) UnmarshalText(text []byte) error {
	kind, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}
