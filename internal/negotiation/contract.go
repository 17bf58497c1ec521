package negotiation

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"tradeeval/internal/trade"
)

// ContractAsset is an asset the narrative may reference, by id.
type ContractAsset struct {
	ID    string     `json:"id"`
	Label string     `json:"label"`
	Side  trade.Side `json:"side"`
	Role  string     `json:"role"`
	Value int        `json:"value"`
}

type ContractDriver struct {
	ID        trade.DriverID `json:"id"`
	Evidence  float64        `json:"evidence"`
	Direction string         `json:"direction"`
}

// Contract is the closed payload sent to the narrative collaborator. It has
// no free text other than the deterministic messages being rephrased.
type Contract struct {
	Drivers       []ContractDriver `json:"drivers"`
	AllowedAssets []ContractAsset  `json:"allowed_assets"`
	ScoreA        int              `json:"fairness_score_a"`
	ScoreB        int              `json:"fairness_score_b"`
	Method        string           `json:"fairness_method"`
	AcceptPercent *int             `json:"accept_percent,omitempty"`
	DMMessages    []string         `json:"dm_messages"`
	MaxMessages   int              `json:"max_messages"`

	// forbidden holds labels of assets known to the request but outside the
	// contract. Never serialized.
	forbidden []string
	numbers   []float64
}

// NewContract builds the contract for a toolkit. Traded assets plus any asset
// a counter or sweetener names are allowed; every other asset of either side
// becomes forbidden.
func NewContract(in Input, tk Toolkit, maxMessages int) Contract {
	if maxMessages <= 0 {
		maxMessages = 3
	}
	c := Contract{
		ScoreA:      int(math.Round(in.Fairness.ScoreA)),
		ScoreB:      int(math.Round(in.Fairness.ScoreB)),
		Method:      string(in.Fairness.Method),
		DMMessages:  append([]string(nil), tk.DMMessages...),
		MaxMessages: maxMessages,
	}
	if p := in.Acceptance.Probability; p != nil {
		pct := int(math.Round(*p * 100))
		c.AcceptPercent = &pct
	}
	for _, d := range in.Acceptance.Drivers {
		dir := "neutral"
		switch {
		case d.Contribution > 0.05:
			dir = "favors"
		case d.Contribution < -0.05:
			dir = "against"
		}
		c.Drivers = append(c.Drivers, ContractDriver{ID: d.ID, Evidence: math.Round(d.Evidence*100) / 100, Direction: dir})
	}

	byID := map[string]trade.PricedAsset{}
	owner := map[string]trade.Side{}
	for _, s := range []trade.Side{trade.SideA, trade.SideB} {
		own, _ := sides(in, s)
		for _, group := range [][]trade.PricedAsset{own.Gives, own.Roster, own.OwnedPicks} {
			for _, a := range group {
				if _, ok := byID[a.ID]; !ok {
					byID[a.ID] = a
					owner[a.ID] = s
				}
			}
		}
	}
	allowed := map[string]bool{}
	add := func(id, role string) {
		a, ok := byID[id]
		if !ok || allowed[id] {
			return
		}
		allowed[id] = true
		c.AllowedAssets = append(c.AllowedAssets, ContractAsset{
			ID: id, Label: a.Label, Side: owner[id], Role: role, Value: int(math.Round(a.Value)),
		})
	}
	for _, a := range in.A.Gives {
		add(a.ID, "traded")
	}
	for _, a := range in.B.Gives {
		add(a.ID, "traded")
	}
	for _, ct := range tk.Counters {
		for _, id := range append(append([]string{}, ct.Remove...), ct.Add...) {
			add(id, "counter")
		}
	}
	for _, sw := range tk.Sweeteners {
		if sw.AssetID != "" {
			add(sw.AssetID, "sweetener")
		}
	}
	allowedLabels := map[string]bool{}
	for _, a := range c.AllowedAssets {
		allowedLabels[a.Label] = true
	}
	for id, a := range byID {
		// A pick label can be shared by an allowed pick of the other side.
		if !allowed[id] && strings.TrimSpace(a.Label) != "" && !allowedLabels[a.Label] {
			c.forbidden = append(c.forbidden, a.Label)
		}
	}

	c.numbers = contractNumbers(c, tk)
	return c
}

var numberRe = regexp.MustCompile(`\d+(?:\.\d+)?`)

func contractNumbers(c Contract, tk Toolkit) []float64 {
	var out []float64
	push := func(f float64) { out = append(out, f) }
	push(float64(c.ScoreA))
	push(float64(c.ScoreB))
	if c.AcceptPercent != nil {
		push(float64(*c.AcceptPercent))
	}
	for _, d := range c.Drivers {
		push(math.Abs(d.Evidence))
	}
	for _, a := range c.AllowedAssets {
		push(float64(a.Value))
	}
	texts := append([]string{}, c.DMMessages...)
	for _, a := range c.AllowedAssets {
		texts = append(texts, a.Label)
	}
	for _, ct := range tk.Counters {
		texts = append(texts, ct.Description)
	}
	for _, sw := range tk.Sweeteners {
		texts = append(texts, sw.Description)
	}
	for _, t := range texts {
		for _, m := range numberRe.FindAllString(t, -1) {
			if f, err := strconv.ParseFloat(m, 64); err == nil {
				push(f)
			}
		}
	}
	return out
}

// hasAsset reports whether id is allowed.
func (c Contract) hasAsset(id string) bool {
	for _, a := range c.AllowedAssets {
		if a.ID == id {
			return true
		}
	}
	return false
}

func (c Contract) hasDriver(id string) bool {
	for _, d := range c.Drivers {
		if string(d.ID) == id {
			return true
		}
	}
	return false
}

func (c Contract) supportsNumber(x float64) bool {
	for _, n := range c.numbers {
		if math.Abs(n-x) < 1e-9 || math.Round(n) == x {
			return true
		}
	}
	return false
}
