package display

// SwipeThreshold is the vertical drag in pixels that changes panel state.
const SwipeThreshold = 50.0

// Panel is the visibility of the instruction panel.
type Panel int

const (
	PanelHidden Panel = iota
	PanelCollapsed
	PanelExpanded
)

func (p Panel) String() string {
	switch p {
	case PanelHidden:
		return "hidden"
	case PanelCollapsed:
		return "collapsed"
	case PanelExpanded:
		return "expanded"
	default:
		return "unknown"
	}
}

// MarshalText makes the panel state readable in JSON.
func (p Panel) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Swipe applies a vertical drag of dy pixels, negative being upwards. An
// upward swipe opens the panel one level, a downward swipe closes it one
// level; drags shorter than SwipeThreshold leave it unchanged.
func (p Panel) Swipe(dy float64) Panel {
	switch {
	case dy <= -SwipeThreshold && p < PanelExpanded:
		return p + 1
	case dy >= SwipeThreshold && p > PanelHidden:
		return p - 1
	default:
		return p
	}
}

// Tap toggles between collapsed and expanded. A hidden panel stays hidden.
func (p Panel) Tap() Panel {
	switch p {
	case PanelCollapsed:
		return PanelExpanded
	case PanelExpanded:
		return PanelCollapsed
	default:
		return p
	}
}

// Show brings a hidden panel back as collapsed.
func (p Panel) Show() Panel {
	if p == PanelHidden {
		return PanelCollapsed
	}
	return p
}
