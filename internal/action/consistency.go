package action

import (
	"sort"
	"strings"
)

// Rank orders sampled completions by popularity of the action they parse
// to. Completions whose action is empty, an error, or terminal are excluded,
// so an all-Done sample ranks nothing. For each distinct action the first
// completion containing it verbatim represents it, so one completion per
// action survives ranking. The returned counts map is the action histogram
// the ordering was derived from.
func Rank(choices []string) (rankedChoices, rankedActions []string, counts map[string]int) {
	counts = map[string]int{}
	var order []string
	for _, choice := range choices {
		act := Parse(choice)
		if !IsValidAction(act) {
			continue
		}
		if _, seen := counts[act]; !seen {
			order = append(order, act)
		}
		counts[act]++
	}

	// Ties keep first-seen order.
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	for _, act := range order {
		for _, choice := range choices {
			if strings.Contains(choice, act) {
				rankedChoices = append(rankedChoices, choice)
				break
			}
		}
	}
	return rankedChoices, order, counts
}
