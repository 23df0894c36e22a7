package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restructure-engine/internal/model"
)

func score(v float64) *float64 { return &v }

func TestDefaultRules(t *testing.T) {
	e, err := NewEvaluator(nil)
	require.NoError(t, err)

	tests := []struct {
		name string
		ev   model.HealthEvent
		want bool
	}{
		{"usage drop", model.HealthEvent{Type: model.HealthLowUsage, Data: model.HealthData{Delta: -0.35, Window: "30d"}}, true},
		{"small usage drop", model.HealthEvent{Type: model.HealthLowUsage, Data: model.HealthData{Delta: -0.05}}, false},
		{"long downtime", model.HealthEvent{Type: model.HealthDowntime, Data: model.HealthData{Hours: 72}}, true},
		{"short downtime", model.HealthEvent{Type: model.HealthDowntime, Data: model.HealthData{Hours: 6}}, false},
		{"likely overdue", model.HealthEvent{Type: model.HealthOverduePred, Data: model.HealthData{Prob: 0.8}}, true},
		{"unlikely overdue", model.HealthEvent{Type: model.HealthOverduePred, Data: model.HealthData{Prob: 0.2}}, false},
		{"score under default", model.HealthEvent{Type: model.HealthScoreDrop, Data: model.HealthData{HealthScore: score(45)}}, true},
		{"score over custom threshold", model.HealthEvent{Type: model.HealthScoreDrop, Data: model.HealthData{HealthScore: score(45), Threshold: 40}}, false},
		{"score missing", model.HealthEvent{Type: model.HealthScoreDrop}, false},
		{"score zero", model.HealthEvent{Type: model.HealthScoreDrop, Data: model.HealthData{HealthScore: score(0)}}, true},
		{"manual", model.HealthEvent{Type: model.HealthManualRequest}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason, err := e.Evaluate(tt.ev)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, reason, string(tt.ev.Type))
		})
	}
}

func TestRuleOverride(t *testing.T) {
	e, err := NewEvaluator([]Rule{{Event: model.HealthDowntime, Expression: "input.hours >= 24.0", Reason: "down a full day"}})
	require.NoError(t, err)

	got, reason, err := e.Evaluate(model.HealthEvent{Type: model.HealthDowntime, Data: model.HealthData{Hours: 30}})
	require.NoError(t, err)
	assert.True(t, got)
	assert.Equal(t, "downtime: down a full day", reason)
}

func TestInvalidRulesFailFast(t *testing.T) {
	_, err := NewEvaluator([]Rule{{Event: model.HealthDowntime, Expression: "input.hours >="}})
	assert.Error(t, err)

	_, err = NewEvaluator([]Rule{{Event: model.HealthDowntime, Expression: "1 + 2"}})
	assert.Error(t, err)
}

func TestUnknownEventType(t *testing.T) {
	e, err := NewEvaluator(nil)
	require.NoError(t, err)

	_, _, err = e.Evaluate(model.HealthEvent{Type: "solar_flare"})
	assert.Error(t, err)
}

func TestScore(t *testing.T) {
	assert.Nil(t, Score(model.HealthEvent{Type: model.HealthDowntime}))
	s := Score(model.HealthEvent{Type: model.HealthScoreDrop, Data: model.HealthData{HealthScore: score(52)}})
	require.NotNil(t, s)
	assert.Equal(t, 52.0, *s)
	assert.Nil(t, Score(model.HealthEvent{Type: model.HealthScoreDrop}))
}
