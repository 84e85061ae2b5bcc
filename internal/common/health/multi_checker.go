package health

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// MultiChecker is healthy when every checker it holds is. Failures are reported under the name the
// checker was added with.
type MultiChecker struct {
	names    []string
	checkers []Checker
}

func NewMultiChecker() *MultiChecker {
	return &MultiChecker{}
}

func (mc *MultiChecker) Add(name string, checker Checker) *MultiChecker {
	mc.names = append(mc.names, name)
	mc.checkers = append(mc.checkers, checker)
	return mc
}

func (mc *MultiChecker) Check() error {
	var result *multierror.Error
	for i, checker := range mc.checkers {
		if err := checker.Check(); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", mc.names[i], err))
		}
	}
	if result == nil {
		return nil
	}
	result.ErrorFormat = func(errs []error) string {
		messages := make([]string, len(errs))
		for i, err := range errs {
			messages[i] = err.Error()
		}
		return strings.Join(messages, "\n")
	}
	return result
}
