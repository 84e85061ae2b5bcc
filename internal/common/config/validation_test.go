package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type sample struct {
	Name  string `validate:"required"`
	Count int    `validate:"gte=1"`
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(sample{Name: "a", Count: 1}))
	assert.Error(t, Validate(sample{Count: 1}))
	assert.Error(t, Validate(sample{Name: "a"}))
}

func TestStripPrefix(t *testing.T) {
	assert.Equal(t, "Artifacts.Directory", stripPrefix("PopgenConfiguration.Artifacts.Directory"))
	assert.Equal(t, "Directory", stripPrefix("Directory"))
}

func TestLogValidationErrors_DoesNotPanic(t *testing.T) {
	LogValidationErrors(Validate(sample{}))
	LogValidationErrors(assert.AnError)
	LogValidationErrors(nil)
}
