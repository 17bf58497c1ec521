package trade

// DriverID is the closed set of acceptance model features.
type DriverID string

const (
	DriverLineupImpact DriverID = "lineup_impact"
	DriverVORP         DriverID = "vorp"
	DriverMarket       DriverID = "market"
	DriverBehavioral   DriverID = "behavioral"
)

// AllDrivers is ordered as the weight vector is stored.
var AllDrivers = []DriverID{DriverLineupImpact, DriverVORP, DriverMarket, DriverBehavioral}

func (d DriverID) Valid() bool {
	switch d {
	case DriverLineupImpact, DriverVORP, DriverMarket, DriverBehavioral:
		return true
	}
	return false
}

// Driver is one feature's contribution to the acceptance logit.
type Driver struct {
	ID           DriverID `json:"id"`
	Evidence     float64  `json:"evidence"`
	Weight       float64  `json:"weight"`
	Contribution float64  `json:"contribution"`
}

type Label string

const (
	LabelTierJumpWin   Label = "tier_jump_win"
	LabelConsolidation Label = "consolidation"
	LabelDepthPlay     Label = "depth_play"
	LabelPickHeavy     Label = "pick_heavy"
	LabelFairValue     Label = "fair_value"
)

func (l Label) Valid() bool {
	switch l {
	case LabelTierJumpWin, LabelConsolidation, LabelDepthPlay, LabelPickHeavy, LabelFairValue:
		return true
	}
	return false
}

type Warning string

const (
	WarningLopsided         Warning = "lopsided"
	WarningUnresolvedAssets Warning = "unresolved_assets"
	WarningQBScarcity       Warning = "qb_scarcity"
	WarningLowConfidence    Warning = "low_confidence_assets"
	WarningVolatileReturn   Warning = "volatile_return"
)

func (w Warning) Valid() bool {
	switch w {
	case WarningLopsided, WarningUnresolvedAssets, WarningQBScarcity, WarningLowConfidence, WarningVolatileReturn:
		return true
	}
	return false
}

// SideLabel attaches a label to the side it describes.
type SideLabel struct {
	Side  Side  `json:"side"`
	Label Label `json:"label"`
}

type SideWarning struct {
	Side    Side    `json:"side,omitempty"`
	Warning Warning `json:"warning"`
}

type Outcome string

const (
	OutcomePending   Outcome = "PENDING"
	OutcomeAccepted  Outcome = "ACCEPTED"
	OutcomeRejected  Outcome = "REJECTED"
	OutcomeCountered Outcome = "COUNTERED"
	OutcomeExpired   Outcome = "EXPIRED"
)

func ParseOutcome(s string) (Outcome, bool) {
	switch o := Outcome(s); o {
	case OutcomeAccepted, OutcomeRejected, OutcomeCountered, OutcomeExpired:
		return o, true
	}
	return "", false
}

// Resolved reports whether the outcome can be paired with a prediction.
func (o Outcome) Resolved() bool {
	return o != OutcomePending && o != ""
}

// Label is 1 for accepted trades and 0 for every other resolution.
func (o Outcome) Label() float64 {
	if o == OutcomeAccepted {
		return 1
	}
	return 0
}

type FairnessMethod string

const (
	MethodLineup    FairnessMethod = "lineup"
	MethodComposite FairnessMethod = "composite"
)
