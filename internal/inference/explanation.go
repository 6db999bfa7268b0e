package inference

import (
	"encoding/json"
	"time"

	"cryptoSniper/internal/domain"
)

// ExplanationInput is the structured payload handed to an external narrative generator.
type ExplanationInput struct {
	Symbol      string                `json:"symbol"`
	OpenTime    time.Time             `json:"open_time"`
	Class       domain.SignalClass    `json:"class"`
	Probability float64               `json:"probability"`
	Threshold   float64               `json:"threshold"`
	Features    []domain.Contribution `json:"features"`
	ModelID     string                `json:"model_id"`
}

// Explain converts a signal into narrative input.
func Explain(symbol string, sig domain.Signal) ExplanationInput {
	return ExplanationInput{
		Symbol:      symbol,
		OpenTime:    sig.OpenTime,
		Class:       sig.Class,
		Probability: sig.Probability,
		Threshold:   sig.Threshold,
		Features:    append([]domain.Contribution{}, sig.TopFeatures...),
		ModelID:     sig.ModelID,
	}
}

// JSON renders the payload.
func (e ExplanationInput) JSON() ([]byte, error) {
	return json.MarshalIndent(e, "", "  ")
}
