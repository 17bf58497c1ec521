package negotiation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"tradeeval/internal/trade"
)

const (
	InvalidMalformed     = "malformed"
	InvalidMessageCount  = "message_count"
	InvalidUnknownAsset  = "unknown_asset_id"
	InvalidUnknownDriver = "unknown_driver_id"
	InvalidOutOfContract = "out_of_contract_asset"
	InvalidUnsupported   = "unsupported_claim"
	InvalidProviderError = "provider_error"
	InvalidNotConfigured = "not_configured"
)

// Response is the only shape accepted from the narrative collaborator.
type Response struct {
	Messages    []string `json:"messages"`
	Explanation string   `json:"explanation"`
	AssetIDs    []string `json:"asset_ids"`
	DriverIDs   []string `json:"driver_ids"`
}

// Validation is either Valid or Invalid.
type Validation interface {
	validation()
}

type Valid struct {
	Response Response
}

type Invalid struct {
	Reason string
	Detail []string
}

func (Valid) validation() {}
func (Invalid) validation() {}

func (i Invalid) Error() string {
	if len(i.Detail) == 0 {
		return i.Reason
	}
	return fmt.Sprintf("%s: %s", i.Reason, strings.Join(i.Detail, ", "))
}

var (
	fenceRe    = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")
	idRe       = regexp.MustCompile(`(?i)\b(player|pick):`)
	snakeRe    = regexp.MustCompile(`\b[a-z]+(?:_[a-z]+)+\b`)
	pickPhrase = regexp.MustCompile(`(?i)\b(20\d{2})\s+(?:round\s+(\d+)|(\d+)(?:st|nd|rd|th))\b`)
)

// Validate checks raw collaborator output against the contract. Any
// reference outside the contract invalidates the whole response.
func Validate(c Contract, raw string) Validation {
	body := strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(body); m != nil {
		body = m[1]
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.DisallowUnknownFields()
	var resp Response
	if err := dec.Decode(&resp); err != nil {
		return Invalid{Reason: InvalidMalformed, Detail: []string{err.Error()}}
	}
	if dec.More() {
		return Invalid{Reason: InvalidMalformed, Detail: []string{"trailing data"}}
	}

	if len(resp.Messages) == 0 || len(resp.Messages) > c.MaxMessages {
		return Invalid{Reason: InvalidMessageCount, Detail: []string{strconv.Itoa(len(resp.Messages))}}
	}
	for _, m := range resp.Messages {
		if strings.TrimSpace(m) == "" {
			return Invalid{Reason: InvalidMessageCount, Detail: []string{"empty message"}}
		}
	}

	var bad []string
	for _, id := range resp.AssetIDs {
		if !c.hasAsset(id) {
			bad = append(bad, id)
		}
	}
	if len(bad) > 0 {
		return Invalid{Reason: InvalidUnknownAsset, Detail: bad}
	}
	for _, id := range resp.DriverIDs {
		if !trade.DriverID(id).Valid() || !c.hasDriver(id) {
			bad = append(bad, id)
		}
	}
	if len(bad) > 0 {
		return Invalid{Reason: InvalidUnknownDriver, Detail: bad}
	}

	text := strings.Join(append(append([]string{}, resp.Messages...), resp.Explanation), "\n")
	if inv, ok := c.checkText(text); !ok {
		return inv
	}
	return Valid{Response: resp}
}

func (c Contract) checkText(text string) (Invalid, bool) {
	lower := strings.ToLower(text)

	// Inline asset ids must be allowed ids.
	var bad []string
	for _, loc := range idRe.FindAllStringIndex(lower, -1) {
		rest := lower[loc[0]:]
		matched := false
		for _, a := range c.AllowedAssets {
			if strings.HasPrefix(rest, strings.ToLower(a.ID)) {
				matched = true
				break
			}
		}
		if !matched {
			end := strings.IndexAny(rest, ",.;\n)")
			if end < 0 {
				end = len(rest)
			}
			bad = append(bad, strings.TrimSpace(rest[:end]))
		}
	}
	if len(bad) > 0 {
		return Invalid{Reason: InvalidUnknownAsset, Detail: bad}, false
	}
	// Strip ids so their digits and underscores are not rechecked below.
	for _, a := range c.AllowedAssets {
		lower = strings.ReplaceAll(lower, strings.ToLower(a.ID), " ")
	}

	for _, tok := range snakeRe.FindAllString(lower, -1) {
		if !c.hasDriver(tok) {
			bad = append(bad, tok)
		}
	}
	if len(bad) > 0 {
		return Invalid{Reason: InvalidUnknownDriver, Detail: bad}, false
	}

	norm := " " + trade.NormalizeName(lower) + " "
	for _, label := range c.forbidden {
		n := trade.NormalizeName(label)
		if len(n) < 3 {
			continue
		}
		if strings.Contains(norm, " "+n+" ") {
			bad = append(bad, label)
		}
	}
	for _, m := range pickPhrase.FindAllStringSubmatch(lower, -1) {
		year, _ := strconv.Atoi(m[1])
		round := m[2]
		if round == "" {
			round = m[3]
		}
		r, _ := strconv.Atoi(round)
		if !c.hasPick(year, r) {
			bad = append(bad, m[0])
		}
	}
	if len(bad) > 0 {
		return Invalid{Reason: InvalidOutOfContract, Detail: bad}, false
	}

	for _, m := range numberRe.FindAllString(lower, -1) {
		f, err := strconv.ParseFloat(m, 64)
		if err != nil || !c.supportsNumber(f) {
			bad = append(bad, m)
		}
	}
	if len(bad) > 0 {
		return Invalid{Reason: InvalidUnsupported, Detail: bad}, false
	}
	return Invalid{}, true
}

func (c Contract) hasPick(year, round int) bool {
	prefix := fmt.Sprintf("pick:%d:%d:", year, round)
	for _, a := range c.AllowedAssets {
		if strings.HasPrefix(a.ID, prefix) {
			return true
		}
	}
	return false
}
