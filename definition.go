package pipeline

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// StageDefinition is the serializable declaration of one stage in a pipeline
// document. The referenced factory must have been registered with
// RegisterStageFactory before the definition is built.
type StageDefinition struct {
	// Name is the unique stage name within the pipeline.
	Name string `yaml:"name"`
	// Uses is the registered factory ID that produces the stage.
	Uses string `yaml:"uses"`
	// Options carries the stage's transition metadata (ready, auto_advance,
	// next, no_inherit, doc).
	Options map[string]interface{} `yaml:"options,omitempty"`
	// Params holds initial values applied to the stage's declared
	// parameters when it is instantiated.
	Params map[string]interface{} `yaml:"params,omitempty"`
}

// Definition is the serializable representation of a whole pipeline:
// the stages in declaration order and, optionally, the transition graph.
// Without a graph the stages form a linear chain.
type Definition struct {
	// Name is a human-readable name for the pipeline.
	Name string `yaml:"name"`
	// Stages lists the stage declarations in chain order.
	Stages []StageDefinition `yaml:"stages"`
	// Graph maps a stage name to its ordered successors.
	Graph map[string][]string `yaml:"graph,omitempty"`
}

// ParseDefinition decodes a YAML pipeline document and validates its shape.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parsing pipeline definition: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate checks the definition's structure without touching the factory
// registry: stage names are unique and non-empty, every stage names a
// factory, and the graph, if declared, is a valid DAG over the stage names.
func (d *Definition) Validate() error {
	if len(d.Stages) == 0 {
		return fmt.Errorf("pipeline definition %q has no stages", d.Name)
	}

	order := make([]string, 0, len(d.Stages))
	seen := make(map[string]bool, len(d.Stages))
	for i, sd := range d.Stages {
		if sd.Name == "" {
			return fmt.Errorf("stage %d has no name", i)
		}
		if sd.Uses == "" {
			return fmt.Errorf("stage %q does not name a factory", sd.Name)
		}
		if seen[sd.Name] {
			return fmt.Errorf("stage %q is declared twice", sd.Name)
		}
		seen[sd.Name] = true
		order = append(order, sd.Name)
	}

	if d.Graph != nil {
		if _, err := ValidateAdjacency(order, d.Graph); err != nil {
			return err
		}
	}
	return nil
}

// Build constructs a pipeline from the definition, resolving stage factories
// from the registry. Initial parameter values from the definition are applied
// when a stage is instantiated, before any inherited values.
func (d *Definition) Build(opts ...Option) (*Pipeline, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	p := New(d.Name, opts...)
	for _, sd := range d.Stages {
		factory, ok := lookupFactory(sd.Uses)
		if !ok {
			return nil, fmt.Errorf("stage %q: factory %q is not registered", sd.Name, sd.Uses)
		}

		stageOpts, err := decodeStageOptions(sd.Options)
		if err != nil {
			return nil, fmt.Errorf("stage %q: %w", sd.Name, err)
		}

		sd := sd
		wrapped := func() (Stage, error) {
			stage, err := factory()
			if err != nil {
				return nil, err
			}
			for name, value := range sd.Params {
				if err := stage.Params().Set(name, value); err != nil {
					return nil, fmt.Errorf("initial parameter: %w", err)
				}
			}
			return stage, nil
		}

		if err := p.AddStageFactory(sd.Name, wrapped, stageOpts); err != nil {
			return nil, err
		}
	}

	if d.Graph != nil {
		if err := p.DefineGraph(d.Graph); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// decodeStageOptions maps the free-form options block onto StageOptions,
// rejecting unknown keys so typos surface at build time.
func decodeStageOptions(raw map[string]interface{}) (StageOptions, error) {
	var opts StageOptions
	if len(raw) == 0 {
		return opts, nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &opts,
		ErrorUnused: true,
	})
	if err != nil {
		return opts, err
	}
	if err := decoder.Decode(raw); err != nil {
		return opts, fmt.Errorf("decoding options: %w", err)
	}
	return opts, nil
}
