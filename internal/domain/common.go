package domain

// Label is the binary training target attached to a FeatureRow.
type Label int

const (
	LabelWait Label = 0
	LabelBuy  Label = 1
)

// SignalClass is the predicted action exposed to consumers.
type SignalClass string

const (
	ClassWait SignalClass = "WAIT"
	ClassBuy  SignalClass = "BUY"
)

// Class converts a label into the matching signal class.
func (l Label) Class() SignalClass {
	if l == LabelBuy {
		return ClassBuy
	}
	return ClassWait
}
