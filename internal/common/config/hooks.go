package config

import (
	"github.com/mitchellh/mapstructure"
)

// CustomHooks are passed to common.ReadConfig by every application. Types that need parsing from YAML strings
// (output kinds, index types) implement encoding.TextUnmarshaler and are picked up here.
var CustomHooks = []mapstructure.DecodeHookFunc{
	mapstructure.TextUnmarshallerHookFunc(),
}
