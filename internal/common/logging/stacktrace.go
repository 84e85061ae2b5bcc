package logging

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const Stacktrace = "stacktrace"

// Unexported but considered part of the stable interface of pkg/errors.
type stackTracer interface {
	StackTrace() errors.StackTrace
}

// WithStacktrace adds err and, if one was recorded anywhere in its chain, the innermost pkg/errors stack
// trace to logger.
func WithStacktrace(logger *logrus.Entry, err error) *logrus.Entry {
	logger = logger.WithError(err)
	if stack := ExtractStack(err); stack != nil {
		logger = logger.WithField(Stacktrace, stack)
	}
	return logger
}

// ExtractStack returns the stack recorded closest to where err originated, following both Cause and
// Unwrap chains. It returns nil if no error in the chain carries a stack.
func ExtractStack(err error) errors.StackTrace {
	var innermost errors.StackTrace
	for err != nil {
		if st, ok := err.(stackTracer); ok {
			innermost = st.StackTrace()
		}
		err = next(err)
	}
	return innermost
}

func next(err error) error {
	if c, ok := err.(interface{ Cause() error }); ok {
		return c.Cause()
	}
	return errors.Unwrap(err)
}
