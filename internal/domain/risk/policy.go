package risk

import "fmt"

// Policy maps a score to a category with two strict lower bounds.
type Policy struct {
	Name   string
	High   float64 // score > High is High
	Medium float64 // score > Medium is Medium
}

// OrchestrationPolicy is used by the HTTP risk lookup and assess endpoints.
var OrchestrationPolicy = Policy{Name: "orchestration", High: 0.8, Medium: 0.5}

// BatchPolicy is used by the batch assess command. It is deliberately kept
// apart from OrchestrationPolicy; both operate on the 0-1 scale.
var BatchPolicy = Policy{Name: "batch", High: 0.7, Medium: 0.4}

// PolicyByName resolves a named policy. An empty name selects the
// orchestration policy.
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", OrchestrationPolicy.Name:
		return OrchestrationPolicy, nil
	case BatchPolicy.Name:
		return BatchPolicy, nil
	}
	return Policy{}, InvalidInput("policy", fmt.Sprintf("%q is not a known policy", name))
}

// Categorize returns the category for score.
func (p Policy) Categorize(score float64) Category {
	switch {
	case score > p.High:
		return CategoryHigh
	case score > p.Medium:
		return CategoryMedium
	}
	return CategoryLow
}

var recommendedActions = map[Category]string{
	CategoryHigh:   "Immediate biopsy recommended",
	CategoryMedium: "Further imaging required",
	CategoryLow:    "Monitor closely",
}

// RecommendedAction returns the follow-up for a category.
func RecommendedAction(c Category) string {
	if a, ok := recommendedActions[c]; ok {
		return a
	}
	return recommendedActions[CategoryLow]
}
