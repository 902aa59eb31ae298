package domain

// MouseMetrics summarises pointer movement. Speeds are in px/ms and
// accelerations in px/ms².
type MouseMetrics struct {
	SampleCount     int          `json:"sample_count"`
	RejectedSamples int          `json:"rejected_samples"`
	TotalDistance   float64      `json:"total_distance"`
	TotalTime       float64      `json:"total_time"` // ms between first and last accepted sample
	AverageSpeed    Opt[float64] `json:"average_speed"`
	MaxSpeed        Opt[float64] `json:"max_speed"`
	Acceleration    Opt[float64] `json:"acceleration"`
	Entropy         float64      `json:"entropy"` // bits, over 8 direction buckets
}

// KeyboardMetrics summarises typing cadence. Intervals are in ms.
type KeyboardMetrics struct {
	TotalKeystrokes int          `json:"total_keystrokes"`
	AverageInterval Opt[float64] `json:"average_interval"`
	IntervalStdDev  Opt[float64] `json:"interval_stddev"`
	AverageHold     Opt[float64] `json:"average_hold"`
	Holds           []KeyHold    `json:"holds,omitempty"`
	Entropy         float64      `json:"entropy"` // bits, over 50ms interval buckets
}

// KeyHold is the down-to-up duration of one key press.
type KeyHold struct {
	Key      string  `json:"key"`
	Duration float64 `json:"duration"`
}

// ScrollMetrics summarises scrolling. Speed is |scrollTop delta| per sample.
type ScrollMetrics struct {
	SampleCount      int          `json:"sample_count"`
	AverageSpeed     Opt[float64] `json:"average_speed"`
	MaxSpeed         Opt[float64] `json:"max_speed"`
	Upward           int          `json:"upward"`
	Downward         int          `json:"downward"`
	DirectionChanges int          `json:"direction_changes"`
}

// InteractionCounts counts the event kinds that carry no statistics of their own.
type InteractionCounts struct {
	Clicks        int `json:"clicks"`
	Touches       int `json:"touches"`
	FocusChanges  int `json:"focus_changes"`
	Visibility    int `json:"visibility_changes"`
	ClipboardUses int `json:"clipboard_uses"`
	Resizes       int `json:"resizes"`
	Hovers        int `json:"hovers"`
}

// DerivedFeatures is the deterministic reduction of a finalized session.
type DerivedFeatures struct {
	Mouse           MouseMetrics      `json:"mouse"`
	Keyboard        KeyboardMetrics   `json:"keyboard"`
	Scroll          ScrollMetrics     `json:"scroll"`
	AngularVelocity Opt[float64]      `json:"angular_velocity"` // degrees/ms
	IdleTime        float64           `json:"idle_time"`        // ms
	TimeOnPage      float64           `json:"time_on_page"`     // ms
	Counts          InteractionCounts `json:"counts"`
	// Anomalies lists capture anomalies found while aggregating.
	Anomalies []string `json:"anomalies,omitempty"`
}
