package ml

import (
	"fmt"
	"sort"
)

type Loader func(path string) (MLModel, error)

var loaders = map[string]Loader{
	TypeDecisionTree: func(path string) (MLModel, error) {
		model := &DecisionTree{}
		if err := model.Load(path); err != nil {
			return nil, err
		}
		return model, nil
	},
	TypeLogisticRegression: func(path string) (MLModel, error) {
		model := &LogisticRegression{}
		if err := model.Load(path); err != nil {
			return nil, err
		}
		return model, nil
	},
}

func LoadModel(modelType, path string) (MLModel, error) {
	load, ok := loaders[modelType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedModel, modelType)
	}
	model, err := load(path)
	if err != nil {
		return nil, fmt.Errorf("load %s model from %s: %w", modelType, path, err)
	}
	return model, nil
}

// ModelTypes lists the artifact types LoadModel understands.
func ModelTypes() []string {
	types := make([]string, 0, len(loaders))
	for name := range loaders {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}
