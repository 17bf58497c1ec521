package trade

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

var (
	yearRe    = regexp.MustCompile(`\b(20\d{2})\b`)
	ordinalRe = regexp.MustCompile(`\b([1-7])(?:st|nd|rd|th)\b`)
	roundRe   = regexp.MustCompile(`\b(?:round|rd|r)\s*([1-7])\b`)
	rangeRe   = regexp.MustCompile(`\b(early|mid|late)\b`)
)

// ParseAssetText turns a free-text asset into a reference. Text with a draft
// year and a round is treated as a pick; anything else is a player name.
func ParseAssetText(text string) AssetRef {
	raw := strings.TrimSpace(text)
	lower := strings.ToLower(raw)

	year := 0
	if m := yearRe.FindStringSubmatch(lower); m != nil {
		year, _ = strconv.Atoi(m[1])
	}
	round := 0
	if m := roundRe.FindStringSubmatch(lower); m != nil {
		round, _ = strconv.Atoi(m[1])
	} else if m := ordinalRe.FindStringSubmatch(lower); m != nil {
		round, _ = strconv.Atoi(m[1])
	}
	if year > 0 && round > 0 {
		ref := AssetRef{Kind: KindPick, Name: raw, Year: year, Round: round}
		if m := rangeRe.FindStringSubmatch(lower); m != nil {
			ref.ProjectedRange = m[1]
		}
		return ref
	}
	return AssetRef{Kind: KindPlayer, Name: raw}
}

// UnmarshalJSON accepts either a free-text string or a structured object.
func (r *AssetRef) UnmarshalJSON(b []byte) error {
	var text string
	if err := json.Unmarshal(b, &text); err == nil {
		*r = ParseAssetText(text)
		return nil
	}
	type plain AssetRef
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	ref := AssetRef(p)
	if ref.Kind == "" {
		if ref.Year > 0 && ref.Round > 0 {
			ref.Kind = KindPick
		} else {
			ref.Kind = KindPlayer
		}
	}
	ref.Kind = Kind(strings.ToUpper(string(ref.Kind)))
	ref.Position = strings.ToUpper(strings.TrimSpace(ref.Position))
	ref.ProjectedRange = strings.ToLower(strings.TrimSpace(ref.ProjectedRange))
	*r = ref
	return nil
}
