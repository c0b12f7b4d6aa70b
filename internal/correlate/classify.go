package correlate

import "github.com/rotisserie/eris"

// Thresholds maps a value to one of three labels: below Low gets
// Labels[0], below High gets Labels[1], everything else Labels[2].
type Thresholds struct {
	Low    float64
	High   float64
	Labels [3]string
}

// NewThresholds validates and builds thresholds from configuration.
func NewThresholds(low, high float64, labels []string) (*Thresholds, error) {
	if len(labels) != 3 {
		return nil, eris.Errorf("correlate: thresholds need 3 labels, got %d", len(labels))
	}
	if low > high {
		return nil, eris.Errorf("correlate: low threshold %v exceeds high %v", low, high)
	}
	return &Thresholds{Low: low, High: high, Labels: [3]string{labels[0], labels[1], labels[2]}}, nil
}

// Classify returns the label for v.
func (t Thresholds) Classify(v float64) string {
	switch {
	case v < t.Low:
		return t.Labels[0]
	case v < t.High:
		return t.Labels[1]
	default:
		return t.Labels[2]
	}
}
