package config

import "reflect"

type EnvVar struct {
	Name        string // short name under the SOLDI_ prefix (e.g., "DATADIR")
	FullName    string // e.g., "SOLDI_DATADIR"
	Type        string // human-readable type
	Default     string // default value as a string ("" if none)
	Description string // one-liner for docs
}

// EnvSpecs lists every environment variable the daemon reads, derived from
// the Config struct tags so the docs cannot drift from the code.
func EnvSpecs() []EnvVar {
	const prefix = "SOLDI_"

	t := reflect.TypeOf(Config{})
	specs := make([]EnvVar, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Tag.Get("mapstructure")
		if name == "" {
			continue
		}
		specs = append(specs, EnvVar{
			Name:        name,
			FullName:    prefix + name,
			Type:        f.Type.String(),
			Default:     f.Tag.Get("envDefault"),
			Description: f.Tag.Get("envInfo"),
		})
	}
	return specs
}

//go:generate go run ../../tools/gen-env-doc/main.go
