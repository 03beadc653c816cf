package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpenSystemDefault(t *testing.T) {
	graph := NewPrerequisiteGraph(nil)

	assert.True(t, graph.IsAllowed("usinagem", "pronto", ""))
	assert.True(t, graph.IsAllowed("metrologia", "montagem", "bloco"))
	assert.False(t, graph.IsAllowed("usinagem", "usinagem", ""), "same status is never a transition")
}

func TestEntryStatusGate(t *testing.T) {
	// The gate holds for every configured rule set, including an empty one
	// and one that tries to route the entry status elsewhere.
	ruleSets := [][]StatusPrerequisite{
		nil,
		{{FromStatus: StatusKeyEntry, ToStatus: "metrologia", TransitionType: TransitionManual, IsActive: true}},
	}

	for _, rules := range ruleSets {
		graph := NewPrerequisiteGraph(rules)
		assert.True(t, graph.IsAllowed(StatusKeyEntry, StatusKeyIntakeReview, ""))
		assert.False(t, graph.IsAllowed(StatusKeyEntry, "metrologia", ""))
		assert.False(t, graph.IsAllowed(StatusKeyEntry, "usinagem", "bloco"))
	}
}

func TestDeliveredStatusIsTerminal(t *testing.T) {
	graph := NewPrerequisiteGraph(nil)

	assert.False(t, graph.IsAllowed(StatusKeyDelivered, "entrada", ""))
	assert.False(t, graph.IsAllowed(StatusKeyDelivered, "pronto", "bloco"))
	assert.Empty(t, graph.AllowedTargets(StatusKeyDelivered, ""))
}

func TestConfiguredRulesGateTransitions(t *testing.T) {
	graph := NewPrerequisiteGraph([]StatusPrerequisite{
		{FromStatus: "metrologia", ToStatus: "usinagem", TransitionType: TransitionManual, IsActive: true},
	})

	assert.True(t, graph.IsAllowed("metrologia", "usinagem", ""))
	assert.False(t, graph.IsAllowed("metrologia", "montagem", ""), "unconfigured target must be rejected")
	assert.False(t, graph.IsAllowed("usinagem", "pronto", ""), "no rules leave usinagem")
}

func TestInactiveRulesStillCloseTheSystem(t *testing.T) {
	graph := NewPrerequisiteGraph([]StatusPrerequisite{
		{FromStatus: "metrologia", ToStatus: "usinagem", TransitionType: TransitionManual, IsActive: false},
	})

	// A rule exists, so the open-system fallback no longer applies, but the
	// inactive rule itself grants nothing.
	assert.False(t, graph.IsAllowed("metrologia", "usinagem", ""))
	assert.False(t, graph.IsAllowed("usinagem", "pronto", ""))
}

func TestComponentSpecificRulesShadowAgnosticOnes(t *testing.T) {
	graph := NewPrerequisiteGraph([]StatusPrerequisite{
		{FromStatus: "usinagem", ToStatus: "pronto", TransitionType: TransitionManual, IsActive: true},
		{FromStatus: "usinagem", ToStatus: "montagem", Component: strPtr("bloco"), TransitionType: TransitionManual, IsActive: true},
	})

	// bloco has its own rule set for usinagem, which replaces the
	// component-agnostic one.
	assert.True(t, graph.IsAllowed("usinagem", "montagem", "bloco"))
	assert.False(t, graph.IsAllowed("usinagem", "pronto", "bloco"))

	// cabecote has no specific rules; the agnostic rule applies.
	assert.True(t, graph.IsAllowed("usinagem", "pronto", "cabecote"))
	assert.False(t, graph.IsAllowed("usinagem", "montagem", "cabecote"))

	// An unscoped move only consults agnostic rules.
	assert.True(t, graph.IsAllowed("usinagem", "pronto", ""))
	assert.False(t, graph.IsAllowed("usinagem", "montagem", ""))
}

func TestNextAutomatic(t *testing.T) {
	graph := NewPrerequisiteGraph([]StatusPrerequisite{
		{FromStatus: "pronto", ToStatus: StatusKeyDelivered, TransitionType: TransitionManual, IsActive: true},
		{FromStatus: "montagem", ToStatus: "pronto", TransitionType: TransitionAutomatic, IsActive: true},
	})

	next, ok := graph.NextAutomatic("montagem", "")
	assert.True(t, ok)
	assert.Equal(t, "pronto", next)

	_, ok = graph.NextAutomatic("pronto", "")
	assert.False(t, ok, "manual rules never auto-advance")
}
