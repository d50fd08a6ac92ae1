package routing

import (
	"fmt"
	"strings"
)

type phrasebook struct {
	// maneuver type -> modifier -> text; the "" modifier applies to any
	// modifier without its own entry.
	phrases map[string]map[string]string
	onto    string
}

var phrasebooks = map[string]phrasebook{
	"en": {
		onto: "%s onto %s",
		phrases: map[string]map[string]string{
			"turn": {
				"left":         "Turn left",
				"right":        "Turn right",
				"slight left":  "Turn slightly left",
				"slight right": "Turn slightly right",
				"sharp left":   "Turn sharp left",
				"sharp right":  "Turn sharp right",
				"uturn":        "Make a U-turn",
			},
			"merge":           {"": "Merge"},
			"depart":          {"": "Depart"},
			"arrive":          {"": "Arrive at your destination"},
			"fork":            {"left": "Keep left", "right": "Keep right"},
			"roundabout":      {"": "Enter the roundabout"},
			"exit roundabout": {"": "Exit the roundabout"},
			"continue":        {"": "Continue straight"},
			"off ramp":        {"left": "Take the exit on the left", "right": "Take the exit on the right"},
			"on ramp":         {"": "Take the ramp"},
		},
	},
	"de": {
		onto: "%s auf %s",
		phrases: map[string]map[string]string{
			"turn": {
				"left":         "Links abbiegen",
				"right":        "Rechts abbiegen",
				"slight left":  "Leicht links abbiegen",
				"slight right": "Leicht rechts abbiegen",
				"sharp left":   "Scharf links abbiegen",
				"sharp right":  "Scharf rechts abbiegen",
				"uturn":        "Wenden",
			},
			"merge":           {"": "Einfädeln"},
			"depart":          {"": "Losfahren"},
			"arrive":          {"": "Ziel erreicht"},
			"fork":            {"left": "Links halten", "right": "Rechts halten"},
			"roundabout":      {"": "Im Kreisverkehr"},
			"exit roundabout": {"": "Kreisverkehr verlassen"},
			"continue":        {"": "Weiter geradeaus"},
			"off ramp":        {"left": "Links abfahren", "right": "Rechts abfahren"},
			"on ramp":         {"": "Auffahren"},
		},
	},
}

// Instruct words a maneuver for the driver. Unknown maneuvers fall back to
// "<type> <modifier>".
func Instruct(lang, maneuver, modifier, road string) string {
	book, ok := phrasebooks[lang]
	if !ok {
		book = phrasebooks["en"]
	}

	text := strings.TrimSpace(maneuver + " " + modifier)
	if byModifier, ok := book.phrases[maneuver]; ok {
		if s, ok := byModifier[modifier]; ok {
			text = s
		} else if s, ok := byModifier[""]; ok {
			text = s
		}
	}

	if road != "" {
		return fmt.Sprintf(book.onto, text, road)
	}
	return text
}
