package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScore(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		inst Instance
		want int
	}{
		{
			name: "open com metade da atividade e meio dia",
			inst: Instance{ConnectionState: StateOpen, MessagesCount: 25, CreatedAt: now.Add(-12 * time.Hour)},
			want: 75,
		},
		{
			name: "tudo no teto",
			inst: Instance{ConnectionState: StateOpen, MessagesCount: 5000, CreatedAt: now.Add(-30 * 24 * time.Hour)},
			want: 100,
		},
		{
			name: "fechada e recém criada",
			inst: Instance{ConnectionState: StateClosed, CreatedAt: now},
			want: 25,
		},
		{
			name: "sem createdAt",
			inst: Instance{ConnectionState: StatePairing, MessagesCount: 10},
			want: 30,
		},
		{
			name: "createdAt no futuro",
			inst: Instance{ConnectionState: StateOpen, CreatedAt: now.Add(time.Hour)},
			want: 50,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.inst, now)
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, got, 0)
			assert.LessOrEqual(t, got, 100)
		})
	}
}

func TestTierFor(t *testing.T) {
	assert.Equal(t, TierExcellent, TierFor(80))
	assert.Equal(t, TierGood, TierFor(79.9))
	assert.Equal(t, TierGood, TierFor(60))
	assert.Equal(t, TierWarning, TierFor(40))
	assert.Equal(t, TierCritical, TierFor(39.99))
}

func TestOverall(t *testing.T) {
	got := Overall([]int{90, 70, 30})
	assert.InDelta(t, 63.3, got.AverageScore, 0.001)
	assert.Equal(t, TierGood, got.Status)
	assert.Equal(t, 2, got.Healthy)
	assert.Equal(t, 3, got.Total)

	empty := Overall(nil)
	assert.Equal(t, TierCritical, empty.Status)
	assert.Zero(t, empty.Total)
}

func TestDetectIssues(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	issues := DetectIssues(Instance{ConnectionState: StateClosed, CreatedAt: now.Add(-time.Minute)}, now)
	require.Len(t, issues, 3)
	assert.Equal(t, "connection", issues[0].Type)
	assert.Equal(t, "high", issues[0].Severity)
	assert.Equal(t, "activity", issues[1].Type)
	assert.Equal(t, "medium", issues[1].Severity)
	assert.Equal(t, "stability", issues[2].Type)
	assert.Equal(t, "low", issues[2].Severity)

	healthy := DetectIssues(Instance{ConnectionState: StateOpen, MessagesCount: 3, CreatedAt: now.Add(-time.Hour)}, now)
	assert.NotNil(t, healthy)
	assert.Empty(t, healthy)
}
