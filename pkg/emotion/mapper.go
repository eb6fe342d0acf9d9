package emotion

import (
	"strings"

	"speech-affect/pkg/models"
	"speech-affect/pkg/scorer"
)

// DefaultThreshold is the minimum top score trusted over a Neutral fallback.
const DefaultThreshold = 0.50

// labels maps the IEMOCAP-style tags emitted by the model to coarse classes.
var labels = map[string]models.CoarseLabel{
	"ang": models.Negative,
	"fea": models.Negative,
	"dis": models.Negative,
	"sad": models.Negative,
	"hap": models.Positive,
	"sur": models.Positive,
	"neu": models.Neutral,
	"cal": models.Neutral,
	"bor": models.Neutral,
}

// MapLabel returns the coarse class of a raw label. Unknown labels are Neutral.
func MapLabel(raw string) models.CoarseLabel {
	if c, ok := labels[strings.ToLower(raw)]; ok {
		return c
	}
	return models.Neutral
}

type Mapper struct {
	Threshold float64
}

func NewMapper(threshold float64) *Mapper {
	return &Mapper{Threshold: threshold}
}

// Decide picks the top-scoring label and maps it to a coarse class. Equal top
// scores go to the lexically smallest label; a top score below the threshold
// yields Neutral. Results keep the scorer's order.
func (m *Mapper) Decide(scores []scorer.LabelScore) models.EmotionDecision {
	if len(scores) == 0 {
		return models.EmotionDecision{Label: models.Neutral, Results: []models.ClassificationResult{}}
	}

	results := make([]models.ClassificationResult, 0, len(scores))
	top := -1
	for _, s := range scores {
		raw := strings.ToLower(s.Label)
		results = append(results, models.ClassificationResult{
			Raw:    raw,
			Score:  s.Score,
			Mapped: MapLabel(raw),
		})

		i := len(results) - 1
		if top < 0 || results[i].Score > results[top].Score ||
			(results[i].Score == results[top].Score && results[i].Raw < results[top].Raw) {
			top = i
		}
	}

	label := results[top].Mapped
	if results[top].Score < m.Threshold {
		label = models.Neutral
	}
	return models.EmotionDecision{Label: label, Results: results}
}
