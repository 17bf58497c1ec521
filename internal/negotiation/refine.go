package negotiation

import (
	"context"
	"encoding/json"
)

// Refiner is an external text generator. It receives the contract as JSON and
// returns raw text that must pass Validate before use.
type Refiner interface {
	Provider() string
	Complete(ctx context.Context, system, user string) (string, error)
}

const refineSystemPrompt = `You rephrase trade negotiation messages.
Reply with one JSON object and nothing else:
{"messages": [...], "explanation": "...", "asset_ids": [...], "driver_ids": [...]}
Rules:
- Refer to assets only by the labels or ids in allowed_assets.
- Refer to drivers only by the ids in drivers.
- Do not introduce numbers that are not in the input.
- Return at most max_messages messages.`

// Refine asks r to rephrase the toolkit messages. The returned toolkit is a
// copy; on any failure its messages equal base's exactly.
func Refine(ctx context.Context, r Refiner, base Toolkit, c Contract) (Toolkit, Validation) {
	out := base.Clone()
	if r == nil {
		inv := Invalid{Reason: InvalidNotConfigured}
		return out, inv
	}
	out.Refinement = Refinement{Attempted: true, Provider: r.Provider()}

	payload, err := json.Marshal(c)
	if err != nil {
		inv := Invalid{Reason: InvalidMalformed, Detail: []string{err.Error()}}
		out.Refinement.Reason = inv.Reason
		return out, inv
	}
	raw, err := r.Complete(ctx, refineSystemPrompt, string(payload))
	if err != nil {
		inv := Invalid{Reason: InvalidProviderError, Detail: []string{err.Error()}}
		out.Refinement.Reason = inv.Reason
		return out, inv
	}

	v := Validate(c, raw)
	switch res := v.(type) {
	case Valid:
		out.DMMessages = append([]string(nil), res.Response.Messages...)
		out.Explanation = res.Response.Explanation
		out.Refinement.Applied = true
	case Invalid:
		out.Refinement.Reason = res.Reason
	}
	return out, v
}
