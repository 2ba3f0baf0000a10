// Package objecttest provides object types shared by tests of the packages
// built on top of object.
package objecttest

import (
	"github.com/nvandessel/qualsim/internal/attribute"
	"github.com/nvandessel/qualsim/internal/condition"
	"github.com/nvandessel/qualsim/internal/constraint"
	"github.com/nvandessel/qualsim/internal/object"
	"github.com/nvandessel/qualsim/internal/quantity"
)

var (
	BatteryLevel   = attribute.In("battery", "level")
	SwitchState    = attribute.In("switch", "state")
	BulbState      = attribute.In("bulb", "state")
	BulbBrightness = attribute.In("bulb", "brightness")
)

// Flashlight returns a flashlight with a battery (empty..high, default high),
// a switch and a bulb (off/on, default off) whose brightness runs
// none < dim < bright. A lit bulb needs the switch on, which is corrected by
// turning the bulb off, and a charged battery, which is not corrected. A dark
// bulb has its brightness reset to none.
func Flashlight() *object.Type {
	level := quantity.MustNew("battery_level", "empty", "low", "med", "high")
	onOff := quantity.MustNew("on_off", "off", "on")
	brightness := quantity.MustNew("brightness", "none", "dim", "bright")

	return &object.Type{
		Name:    "flashlight",
		Version: "1",
		Parts: []object.Part{
			{Name: "battery", Attributes: []*attribute.Spec{{Name: "level", Space: level, Mutable: true, Default: "high"}}},
			{Name: "switch", Attributes: []*attribute.Spec{{Name: "state", Space: onOff, Mutable: true, Default: "off"}}},
			{Name: "bulb", Attributes: []*attribute.Spec{
				{Name: "state", Space: onOff, Mutable: true, Default: "off"},
				{Name: "brightness", Space: brightness, Mutable: true, Default: "none"},
			}},
		},
		Constraints: []constraint.Dependency{
			{
				Name:        "bulb_needs_switch",
				Condition:   condition.Attr(BulbState, condition.OpEquals, "on"),
				Requires:    condition.Attr(SwitchState, condition.OpEquals, "on"),
				Corrections: []constraint.Correction{{Target: BulbState, Value: "off"}},
			},
			{
				Name:      "bulb_needs_charge",
				Condition: condition.Attr(BulbState, condition.OpEquals, "on"),
				Requires:  condition.Attr(BatteryLevel, condition.OpNotEquals, "empty"),
			},
			{
				Name:        "bulb_dark_when_off",
				Condition:   condition.Attr(BulbState, condition.OpEquals, "off"),
				Requires:    condition.Attr(BulbBrightness, condition.OpEquals, "none"),
				Corrections: []constraint.Correction{{Target: BulbBrightness, Value: "none"}},
			},
		},
	}
}
