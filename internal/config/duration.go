package config

import (
	"fmt"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"
)

// UnmarshalYAML decodes the file like the default decoder, except that
// duration fields also accept bare seconds ("2", "0.5") the way the
// environment overrides and the CLI flags do.
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	if err := normalizeDurations(node, reflect.TypeFor[Config]()); err != nil {
		return err
	}

	type plain Config
	return node.Decode((*plain)(c))
}

// normalizeDurations rewrites duration scalars under node into Go duration
// strings, which yaml.v3 knows how to decode into time.Duration.
func normalizeDurations(node *yaml.Node, t reflect.Type) error {
	if node.Kind != yaml.MappingNode || t.Kind() != reflect.Struct {
		return nil
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]

		field, ok := yamlField(t, key.Value)
		if !ok {
			continue
		}

		switch {
		case field.Type == durationType && value.Kind == yaml.ScalarNode && value.Tag != "!!null":
			d, err := ParseDuration(strings.TrimSpace(value.Value))
			if err != nil {
				return fmt.Errorf("line %d: invalid duration for %s: %q", value.Line, key.Value, value.Value)
			}
			value.Value = d.String()
			value.Tag = "!!str"
			value.Style = 0
		case field.Type.Kind() == reflect.Struct:
			if err := normalizeDurations(value, field.Type); err != nil {
				return err
			}
		}
	}
	return nil
}

func yamlField(t reflect.Type, key string) (reflect.StructField, bool) {
	for i := range t.NumField() {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "" {
			name = strings.ToLower(f.Name)
		}
		if name == key {
			return f, true
		}
	}
	return reflect.StructField{}, false
}
