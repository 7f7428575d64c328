package registry

import (
	"math"
	"time"
)

const (
	activityTarget = 50
	uptimeTarget   = 24 * time.Hour
	minStableAge   = 5 * time.Minute
	healthyScore   = 60
)

// Score calcula o health score (0-100) a partir do registro e do instante de avaliação.
func Score(inst Instance, now time.Time) int {
	var connection float64
	if inst.ConnectionState == StateOpen {
		connection = 25
	}
	activity := math.Min(float64(inst.MessagesCount)/activityTarget, 1) * 25
	uptime := math.Min(uptimeOf(inst, now).Seconds()/uptimeTarget.Seconds(), 1) * 25
	const stability = 25

	return int(math.Round(connection + activity + uptime + stability))
}

// TierFor classifica uma pontuação (individual ou média).
func TierFor(score float64) Tier {
	switch {
	case score >= 80:
		return TierExcellent
	case score >= 60:
		return TierGood
	case score >= 40:
		return TierWarning
	default:
		return TierCritical
	}
}

func DetectIssues(inst Instance, now time.Time) []Issue {
	issues := []Issue{}
	if inst.ConnectionState == StateClosed {
		issues = append(issues, Issue{Type: "connection", Severity: "high", Message: "instância desconectada"})
	}
	if inst.MessagesCount == 0 {
		issues = append(issues, Issue{Type: "activity", Severity: "medium", Message: "nenhuma mensagem registrada"})
	}
	if uptimeOf(inst, now) < minStableAge {
		issues = append(issues, Issue{Type: "stability", Severity: "low", Message: "instância muito recente"})
	}
	return issues
}

// Overall agrega pontuações. A média é arredondada a uma casa decimal; o
// status usa o valor exato. Sem instâncias o status é critical.
func Overall(scores []int) OverallHealth {
	if len(scores) == 0 {
		return OverallHealth{Status: TierCritical}
	}

	var sum, healthy int
	for _, s := range scores {
		sum += s
		if s >= healthyScore {
			healthy++
		}
	}
	avg := float64(sum) / float64(len(scores))

	return OverallHealth{
		AverageScore: math.Round(avg*10) / 10,
		Status:       TierFor(avg),
		Healthy:      healthy,
		Total:        len(scores),
	}
}

func uptimeOf(inst Instance, now time.Time) time.Duration {
	if inst.CreatedAt.IsZero() || now.Before(inst.CreatedAt) {
		return 0
	}
	return now.Sub(inst.CreatedAt)
}

// derive preenche os campos calculados.
func derive(inst Instance, now time.Time) Instance {
	inst.HealthScore = Score(inst, now)
	inst.HealthTier = TierFor(float64(inst.HealthScore))
	inst.UptimeSeconds = int64(uptimeOf(inst, now).Seconds())
	return inst
}
