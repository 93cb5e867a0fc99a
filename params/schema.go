package params

import (
	"encoding/json"
	"strconv"

	"github.com/invopop/jsonschema"
)

// Schema exports the set as a JSON schema object: one property per declared
// slot, in declaration order, with descriptions and numeric bounds carried
// over. Useful for documenting a stage's inputs to a host UI.
func (s *Set) Schema(title string) *jsonschema.Schema {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reflector := jsonschema.Reflector{
		ExpandedStruct:            true,
		DoNotReference:            true,
		AllowAdditionalProperties: false,
	}

	props := jsonschema.NewProperties()
	for _, name := range s.order {
		sl := s.slots[name]

		sub := reflector.ReflectFromType(sl.typ)
		sub.Version = ""
		if sl.spec.Doc != "" {
			sub.Description = sl.spec.Doc
		}
		if sl.spec.Min != nil {
			sub.Minimum = floatToNumber(*sl.spec.Min)
		}
		if sl.spec.Max != nil {
			sub.Maximum = floatToNumber(*sl.spec.Max)
		}
		if sl.spec.Default != nil {
			sub.Default = sl.spec.Default
		}
		props.Set(name, sub)
	}

	return &jsonschema.Schema{
		Title:                title,
		Type:                 "object",
		Properties:           props,
		AdditionalProperties: jsonschema.FalseSchema,
	}
}

func floatToNumber(f float64) json.Number {
	return json.Number(strconv.FormatFloat(f, 'f', -1, 64))
}
