// Package unit assigns a default measurement unit to new items based on
// keywords in the item name.
package unit

import "strings"

// DefaultUnit is used when no keyword rule matches.
const DefaultUnit = "ชิ้น"

// Rule maps name keywords to a unit.
type Rule struct {
	Keywords []string
	Unit     string
}

var rules = []Rule{
	{
		Keywords: []string{"เงิน", "บาท", "dollar", "usd", "ธนบัตร"},
		Unit:     "บาท",
	},
	{
		Keywords: []string{"น้ำ"},
		Unit:     "แก้ว",
	},
	{
		Keywords: []string{"รถ", "ยานพาหนะ"},
		Unit:     "คัน",
	},
}

// Detect returns the unit for an item name. Matching is case-insensitive
// substring search in rule order; unmatched names get DefaultUnit. An empty
// name returns the empty string so callers can tell "no name yet" apart from
// "no rule matched".
func Detect(itemName string) string {
	name := strings.ToLower(strings.TrimSpace(itemName))
	if name == "" {
		return ""
	}
	for _, rule := range rules {
		for _, keyword := range rule.Keywords {
			if strings.Contains(name, strings.ToLower(keyword)) {
				return rule.Unit
			}
		}
	}
	return DefaultUnit
}

// Rules returns a copy of the active rule set.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}
