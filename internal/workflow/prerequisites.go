package workflow

// PrerequisiteGraph answers whether a status-to-status transition is allowed
// for the currently configured rule set of one organization.
//
// With zero configured rules the system is ungated: every transition between
// distinct statuses is allowed. The entry status is the one exception and is
// always gated; from "entrada" the only legal target is "orcamentos",
// independent of configuration. This mirrors the intake flow of the shop
// (every engine gets a quote before any work starts) and is a product rule,
// not a derived one.
type PrerequisiteGraph struct {
	rules []StatusPrerequisite
}

// NewPrerequisiteGraph builds a graph over the given rules. Inactive rules
// are kept (they still count as "rules exist") but never match.
func NewPrerequisiteGraph(rules []StatusPrerequisite) *PrerequisiteGraph {
	return &PrerequisiteGraph{rules: rules}
}

// IsAllowed reports whether a move from one status to another is permitted,
// optionally for a specific component (empty component means the move is not
// component-scoped and only component-agnostic rules apply).
func (g *PrerequisiteGraph) IsAllowed(from, to, component string) bool {
	if from == to {
		return false
	}
	if from == StatusKeyDelivered {
		// Terminal status, no outgoing transitions.
		return false
	}
	if from == StatusKeyEntry {
		return to == StatusKeyIntakeReview
	}
	if len(g.rules) == 0 {
		// Open system: nothing configured, nothing gated.
		return true
	}

	for _, rule := range g.matching(from, component) {
		if rule.ToStatus == to {
			return true
		}
	}
	return false
}

// NextAutomatic returns the target of an active automatic-type rule leaving
// the given status, when one exists. Used by auto-advance after a stage is
// completed or an order is reunited in a status.
func (g *PrerequisiteGraph) NextAutomatic(from, component string) (string, bool) {
	for _, rule := range g.matching(from, component) {
		if rule.TransitionType == TransitionAutomatic {
			return rule.ToStatus, true
		}
	}
	return "", false
}

// AllowedTargets lists the statuses reachable from the given one under the
// current rule set (diagnostic helper for the admin UI).
func (g *PrerequisiteGraph) AllowedTargets(from, component string) []string {
	if from == StatusKeyDelivered {
		return nil
	}
	if from == StatusKeyEntry {
		return []string{StatusKeyIntakeReview}
	}
	seen := make(map[string]bool)
	targets := []string{}
	for _, rule := range g.matching(from, component) {
		if !seen[rule.ToStatus] {
			seen[rule.ToStatus] = true
			targets = append(targets, rule.ToStatus)
		}
	}
	return targets
}

// matching selects the active rules governing the given from-status. A
// component-specific rule set shadows the component-agnostic one when both
// exist for the same from-status.
func (g *PrerequisiteGraph) matching(from, component string) []StatusPrerequisite {
	var specific, agnostic []StatusPrerequisite
	for _, rule := range g.rules {
		if !rule.IsActive || rule.FromStatus != from {
			continue
		}
		if rule.Component == nil {
			agnostic = append(agnostic, rule)
		} else if component != "" && *rule.Component == component {
			specific = append(specific, rule)
		}
	}
	if len(specific) > 0 {
		return specific
	}
	return agnostic
}
