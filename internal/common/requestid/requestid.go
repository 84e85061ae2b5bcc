// Package requestid generates and checks the identifiers handed out for generation requests.
package requestid

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/G-Research/popgen/internal/common/popgenerrors"
)

// Only the canonical 8-4-4-4-12 form is accepted. uuid.Parse alone also takes urn: and braced forms,
// which must never reach a filesystem path.
var canonical = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// New returns a fresh random id in canonical lower-case form.
func New() string {
	return strings.ToLower(uuid.NewString())
}

// IsValid reports whether id is a canonical uuid.
func IsValid(id string) bool {
	if !canonical.MatchString(id) {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// Validate returns ErrInvalidIdentifier if id is not a canonical uuid.
func Validate(id string) error {
	if !IsValid(id) {
		return &popgenerrors.ErrInvalidIdentifier{Name: "request id", Value: id}
	}
	return nil
}

// Canonical validates id and returns it in the lower-case form requests are registered and stored under.
func Canonical(id string) (string, error) {
	if err := Validate(id); err != nil {
		return "", err
	}
	return strings.ToLower(id), nil
}
