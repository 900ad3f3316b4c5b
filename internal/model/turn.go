package model

// Stance is the editorial bias of a generated perspective.
type Stance string

const (
	StanceCritic   Stance = "critic"
	StanceOptimist Stance = "optimist"
)

// Valid reports whether s is one of the two known stances.
func (s Stance) Valid() bool {
	return s == StanceCritic || s == StanceOptimist
}

// Perspective is a stance-biased analysis of the evidence set, generated
// fresh per turn and discarded after arbitration.
type Perspective struct {
	Stance Stance `json:"stance"`
	Text   string `json:"text"`
}

// Arbitration is the outcome of judging two perspectives against each other.
type Arbitration struct {
	ChosenStance Stance  `json:"chosen_stance"`
	Confidence   float64 `json:"confidence"`
	Reasoning    string  `json:"reasoning"`
}

// FactCheckVerdict is one claim-level support judgment against the evidence
// set. A turn's fact-check result is an ordered sequence of these, in claim
// extraction order.
type FactCheckVerdict struct {
	Claim     string `json:"claim"`
	Supported bool   `json:"supported"`
	Evidence  string `json:"evidence"`
}

// TurnStatus tracks a turn through the synthesis pipeline.
type TurnStatus string

const (
	TurnStatusRetrieving   TurnStatus = "retrieving"
	TurnStatusPerspectives TurnStatus = "perspectives"
	TurnStatusArbitrating  TurnStatus = "arbitrating"
	TurnStatusFactChecking TurnStatus = "fact_checking"
	TurnStatusSynthesizing TurnStatus = "synthesizing"
	TurnStatusDone         TurnStatus = "done"
	TurnStatusFailed       TurnStatus = "failed"
)

// Terminal reports whether the status ends the turn.
func (s TurnStatus) Terminal() bool {
	return s == TurnStatusDone || s == TurnStatusFailed
}
