package domain

import "time"

// Contribution is a feature that both ranks high globally and is extreme in the scored row.
type Contribution struct {
	Name       string  `json:"name"`
	Importance float64 `json:"importance"`
	Value      float64 `json:"value"`
	ZScore     float64 `json:"z_score"`
}

// Signal is the output record of the inference adapter.
type Signal struct {
	OpenTime    time.Time      `json:"open_time"`
	Class       SignalClass    `json:"class"`
	Probability float64        `json:"probability"`
	Threshold   float64        `json:"threshold"`
	TopFeatures []Contribution `json:"top_features"`
	ModelID     string         `json:"model_id"`
}

// IsBuy reports whether the signal recommends buying.
func (s Signal) IsBuy() bool {
	return s.Class == ClassBuy
}
