package request

import (
	"bytes"
	"encoding/json"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"

	"github.com/G-Research/popgen/internal/common/popgenerrors"
	"github.com/G-Research/popgen/internal/popgen/artifact"
)

const (
	DefaultPopulation = 1
	DefaultMinAge     = 0
	DefaultMaxAge     = 140
)

// Configuration describes what a request generates. It is immutable once the request is created and is
// packaged verbatim as the artifact's metadata member.
type Configuration struct {
	Seed       int64             `json:"seed"`
	Population int               `json:"population" validate:"gte=1"`
	Gender     string            `json:"gender,omitempty" validate:"omitempty,oneof=M F"`
	MinAge     int               `json:"minAge" validate:"gte=0,lte=140"`
	MaxAge     int               `json:"maxAge" validate:"gtefield=MinAge,lte=140"`
	State      string            `json:"state,omitempty"`
	City       string            `json:"city,omitempty"`
	OutputKind artifact.Kind     `json:"outputKind" validate:"oneof=default csv"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Policy holds the service-wide rules applied to every configuration.
type Policy struct {
	DefaultPopulation int
	// MaxPopulation of zero means unlimited.
	MaxPopulation int
	// AllowedProperties lists the free-form property keys a caller may set.
	AllowedProperties []string
	// Seed chooses a seed for configurations that do not specify one.
	Seed func() int64
}

func DefaultPolicy() Policy {
	return Policy{DefaultPopulation: DefaultPopulation}
}

func (p Policy) newSeed() int64 {
	if p.Seed != nil {
		return p.Seed()
	}
	return time.Now().UnixMilli()
}

func (p Policy) allowed(key string) bool {
	for _, k := range p.AllowedProperties {
		if k == key {
			return true
		}
	}
	return false
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type fieldSetter func(c *Configuration, raw json.RawMessage) error

func intoInt(target func(c *Configuration) *int) fieldSetter {
	return func(c *Configuration, raw json.RawMessage) error {
		return json.Unmarshal(raw, target(c))
	}
}

func intoString(target func(c *Configuration) *string) fieldSetter {
	return func(c *Configuration, raw json.RawMessage) error {
		return json.Unmarshal(raw, target(c))
	}
}

var knownFields = map[string]fieldSetter{
	"seed": func(c *Configuration, raw json.RawMessage) error {
		return json.Unmarshal(raw, &c.Seed)
	},
	"population": intoInt(func(c *Configuration) *int { return &c.Population }),
	"minAge":     intoInt(func(c *Configuration) *int { return &c.MinAge }),
	"maxAge":     intoInt(func(c *Configuration) *int { return &c.MaxAge }),
	"gender":     intoString(func(c *Configuration) *string { return &c.Gender }),
	"state":      intoString(func(c *Configuration) *string { return &c.State }),
	"city":       intoString(func(c *Configuration) *string { return &c.City }),
	"outputKind": func(c *Configuration, raw json.RawMessage) error {
		return json.Unmarshal(raw, &c.OutputKind)
	},
	// Older clients ask for tabular output with a boolean.
	"generateCSV": func(c *Configuration, raw json.RawMessage) error {
		var csv bool
		if err := json.Unmarshal(raw, &csv); err != nil {
			return err
		}
		if csv {
			c.OutputKind = artifact.KindCSV
		}
		return nil
	},
	"properties": func(c *Configuration, raw json.RawMessage) error {
		var props map[string]json.RawMessage
		if err := json.Unmarshal(raw, &props); err != nil {
			return err
		}
		for k, v := range props {
			c.Properties[k] = propertyValue(v)
		}
		return nil
	},
}

// ParseConfiguration decodes a flat JSON object into a Configuration, applies defaults and validates the
// result against policy. Keys that are neither fields nor allowed properties are rejected, as are
// properties outside the allow-list. An empty body yields the default configuration.
func ParseConfiguration(data []byte, policy Policy) (Configuration, error) {
	config := Configuration{
		Population: policy.DefaultPopulation,
		MinAge:     DefaultMinAge,
		MaxAge:     DefaultMaxAge,
		OutputKind: artifact.KindDefault,
		Properties: map[string]string{},
	}
	if config.Population <= 0 {
		config.Population = DefaultPopulation
	}

	fields := map[string]json.RawMessage{}
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &fields); err != nil {
			return Configuration{}, &popgenerrors.ErrInvalidArgument{
				Name:    "configuration",
				Value:   string(data),
				Message: "must be a JSON object",
			}
		}
	}

	keys := maps.Keys(fields)
	sort.Strings(keys)
	for _, key := range keys {
		raw := fields[key]
		if setter, ok := knownFields[key]; ok {
			if err := setter(&config, raw); err != nil {
				return Configuration{}, &popgenerrors.ErrInvalidArgument{
					Name:    key,
					Value:   string(raw),
					Message: errors.Cause(err).Error(),
				}
			}
			continue
		}
		// Anything else is a free-form property given at the top level.
		config.Properties[key] = propertyValue(raw)
	}
	if _, ok := fields["seed"]; !ok {
		config.Seed = policy.newSeed()
	}
	config.Gender = strings.ToUpper(config.Gender)
	if len(config.Properties) == 0 {
		config.Properties = nil
	}

	if err := config.Validate(policy); err != nil {
		return Configuration{}, err
	}
	return config, nil
}

// Validate checks field constraints, the population ceiling and the property allow-list.
func (c Configuration) Validate(policy Policy) error {
	if err := validate.Struct(c); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			fe := validationErrors[0]
			return &popgenerrors.ErrInvalidArgument{
				Name:    fe.Field(),
				Value:   fe.Value(),
				Message: "failed " + fe.Tag() + " " + fe.Param(),
			}
		}
		return errors.WithStack(err)
	}
	if policy.MaxPopulation > 0 && c.Population > policy.MaxPopulation {
		return &popgenerrors.ErrInvalidArgument{
			Name:    "population",
			Value:   c.Population,
			Message: "exceeds the maximum population",
		}
	}
	keys := maps.Keys(c.Properties)
	sort.Strings(keys)
	for _, key := range keys {
		if !policy.allowed(key) {
			return &popgenerrors.ErrInvalidArgument{
				Name:    key,
				Value:   c.Properties[key],
				Message: "unknown configuration key; allowed properties are [" + strings.Join(policy.AllowedProperties, ", ") + "]",
			}
		}
	}
	return nil
}

// propertyValue keeps strings unquoted and any other JSON value in its literal form.
func propertyValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}
