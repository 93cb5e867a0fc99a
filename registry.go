package pipeline

import "fmt"

var stageRegistry = make(map[string]Factory)

// RegisterStageFactory registers a stage factory under a unique ID so that
// pipeline definitions can reference it by name. Call it at application
// startup, typically from an init function. Registering the same ID twice
// panics: a duplicate means two packages are fighting over the name.
func RegisterStageFactory(id string, factory Factory) {
	if _, exists := stageRegistry[id]; exists {
		panic(fmt.Sprintf("pipeline: stage factory %q registered twice", id))
	}
	stageRegistry[id] = factory
}

// NewStageFromRegistry instantiates a stage from a registered factory.
func NewStageFromRegistry(id string) (Stage, error) {
	factory, ok := lookupFactory(id)
	if !ok {
		return nil, fmt.Errorf("stage factory %q is not registered", id)
	}
	return factory()
}

func lookupFactory(id string) (Factory, bool) {
	factory, ok := stageRegistry[id]
	return factory, ok
}
