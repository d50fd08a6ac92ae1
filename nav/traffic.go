package nav

// Delay thresholds in minutes.
const (
	HeavyDelayMinutes = 20
	SlowDelayMinutes  = 5
)

// ClassifyDelay maps a traffic delay in minutes to a label.
func ClassifyDelay(minutes float64) TrafficLabel {
	switch {
	case minutes > HeavyDelayMinutes:
		return TrafficHeavy
	case minutes > SlowDelayMinutes:
		return TrafficSlow
	default:
		return TrafficNormal
	}
}
