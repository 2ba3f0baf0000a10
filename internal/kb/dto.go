package kb

import (
	"github.com/go-playground/validator/v10"

	"github.com/nvandessel/qualsim/internal/attribute"
	"github.com/nvandessel/qualsim/internal/simulation"
)

// validate checks the structural tags of the file DTOs. Semantic checks
// (references between entries, levels inside spaces) happen while building
// the core types.
var validate = validator.New()

// fileDoc is one knowledge base YAML document.
type fileDoc struct {
	QuantitySpaces []spaceDTO      `yaml:"quantity_spaces" validate:"dive"`
	ObjectTypes    []objectTypeDTO `yaml:"object_types" validate:"dive"`
	Actions        []actionDTO     `yaml:"actions" validate:"dive"`
	Scenarios      []scenarioDTO   `yaml:"scenarios" validate:"dive"`
}

type spaceDTO struct {
	Name   string   `yaml:"name" validate:"required"`
	Levels []string `yaml:"levels" validate:"required,min=1,dive,required"`
}

type attributeDTO struct {
	Name    string `yaml:"name" validate:"required,excludesall=."`
	Space   string `yaml:"space" validate:"required"`
	Mutable *bool  `yaml:"mutable"`
	Default string `yaml:"default"`
}

type partDTO struct {
	Name       string         `yaml:"name" validate:"required,excludesall=."`
	Attributes []attributeDTO `yaml:"attributes" validate:"required,min=1,dive"`
}

type correctionDTO struct {
	Target string `yaml:"target" validate:"required"`
	Value  string `yaml:"value" validate:"required"`
}

type constraintDTO struct {
	Name        string          `yaml:"name" validate:"required"`
	If          *conditionDTO   `yaml:"if" validate:"required"`
	Requires    *conditionDTO   `yaml:"requires" validate:"required"`
	Corrections []correctionDTO `yaml:"corrections" validate:"dive"`
}

type objectTypeDTO struct {
	Name             string          `yaml:"name" validate:"required"`
	Version          string          `yaml:"version"`
	Parts            []partDTO       `yaml:"parts" validate:"dive"`
	GlobalAttributes []attributeDTO  `yaml:"global_attributes" validate:"dive"`
	Constraints      []constraintDTO `yaml:"constraints" validate:"dive"`
}

// conditionDTO is a condition tree node. Exactly one of Attr, And, Or and
// Not is set.
type conditionDTO struct {
	Attr   string         `yaml:"attr"`
	Op     string         `yaml:"op"`
	Value  string         `yaml:"value"`
	Values []string       `yaml:"values"`
	And    []conditionDTO `yaml:"and"`
	Or     []conditionDTO `yaml:"or"`
	Not    *conditionDTO  `yaml:"not"`
}

type effectDTO struct {
	Kind      string        `yaml:"kind" validate:"required,oneof=set step trend"`
	Target    string        `yaml:"target" validate:"required"`
	Value     string        `yaml:"value" validate:"required_if=Kind set"`
	Direction string        `yaml:"direction" validate:"required_unless=Kind set"`
	When      *conditionDTO `yaml:"when"`
}

type actionDTO struct {
	Name          string        `yaml:"name" validate:"required"`
	ObjectType    string        `yaml:"object_type" validate:"required"`
	Parameters    []string      `yaml:"parameters" validate:"dive,required"`
	Preconditions *conditionDTO `yaml:"preconditions"`
	Effects       []effectDTO   `yaml:"effects" validate:"required,min=1,dive"`
}

type scenarioDTO struct {
	Name       string                     `yaml:"name" validate:"required"`
	ObjectType string                     `yaml:"object_type" validate:"required"`
	Initial    map[string]attribute.Value `yaml:"initial"`
	Steps      []simulation.Step          `yaml:"steps" validate:"required,min=1"`
}
