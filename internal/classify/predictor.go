// Package classify predicts categories for imported transactions from past
// reviews using a naive Bayes classifier.
package classify

import (
	"errors"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/Veraticus/spice-reconcile/internal/model"
	"github.com/jbrukh/bayesian"
)

// Confidence levels.
const (
	LevelHigh   = "high"
	LevelMedium = "medium"
	LevelLow    = "low"
)

// ErrTooFewCategories means the training set cannot separate categories.
var ErrTooFewCategories = errors.New("at least two categories are needed to train")

// Prediction is a suggested category for one description.
type Prediction struct {
	Category string
	Level    string
	Score    float64
}

// Predictor suggests categories. It is safe for concurrent use; an untrained
// Predictor predicts nothing.
type Predictor struct {
	classifier *bayesian.Classifier
	classes    []bayesian.Class
	mu         sync.RWMutex
}

// NewPredictor returns an untrained predictor.
func NewPredictor() *Predictor {
	return &Predictor{}
}

// Train replaces the model with one learned from reviewed transactions. On
// ErrTooFewCategories the predictor is left untrained.
func (p *Predictor) Train(examples []model.Transaction) error {
	byClass := make(map[string][][]string)
	for _, txn := range examples {
		category := strings.TrimSpace(txn.EffectiveCategory())
		terms := Terms(txn.Description)
		if category == "" || len(terms) == 0 {
			continue
		}
		byClass[category] = append(byClass[category], terms)
	}

	if len(byClass) < 2 {
		p.mu.Lock()
		p.classifier, p.classes = nil, nil
		p.mu.Unlock()
		return ErrTooFewCategories
	}

	names := make([]string, 0, len(byClass))
	for name := range byClass {
		names = append(names, name)
	}
	sort.Strings(names)

	classes := make([]bayesian.Class, len(names))
	for i, name := range names {
		classes[i] = bayesian.Class(name)
	}

	classifier := bayesian.NewClassifierTfIdf(classes...)
	for _, class := range classes {
		for _, terms := range byClass[string(class)] {
			classifier.Learn(terms, class)
		}
	}
	classifier.ConvertTermsFreqToTfIdf()

	p.mu.Lock()
	p.classifier, p.classes = classifier, classes
	p.mu.Unlock()

	slog.Info("Trained category predictor", "categories", len(classes), "examples", len(examples))
	return nil
}

// Ready reports whether the predictor has been trained.
func (p *Predictor) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.classifier != nil
}

// Categories returns the categories the predictor knows, sorted.
func (p *Predictor) Categories() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]string, len(p.classes))
	for i, c := range p.classes {
		out[i] = string(c)
	}
	return out
}

// Rank scores every known category for a description. Each score is the
// category's softmax share of the log scores, so the scores sum to one.
func (p *Predictor) Rank(description string) model.CategoryRankings {
	terms := Terms(description)
	if len(terms) == 0 {
		return nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.classifier == nil {
		return nil
	}

	scores, _, _ := p.classifier.LogScores(terms)
	rankings := make(model.CategoryRankings, len(scores))
	for i := range scores {
		rankings[i] = model.CategoryRanking{
			Category: string(p.classes[i]),
			Score:    softmax(scores, i),
		}
	}
	rankings.Sort()
	return rankings
}

// Predict returns the most likely category for a description.
func (p *Predictor) Predict(description string) (Prediction, bool) {
	top, ok := p.Rank(description).Top()
	if !ok {
		return Prediction{}, false
	}
	return Prediction{
		Category: top.Category,
		Score:    top.Score,
		Level:    Level(top.Score),
	}, true
}

// Apply fills in predictions on transactions that have none.
func (p *Predictor) Apply(txns []model.Transaction) []model.Transaction {
	out := make([]model.Transaction, len(txns))
	for i, txn := range txns {
		if txn.PredictedCategory == nil {
			if pred, ok := p.Predict(txn.Description); ok {
				score := pred.Score
				txn.PredictedCategory = model.StringPtr(pred.Category)
				txn.ConfidenceScore = &score
				txn.ConfidenceLevel = pred.Level
			}
		}
		out[i] = txn
	}
	return out
}

// Level buckets a confidence score.
func Level(score float64) string {
	switch {
	case score >= 0.8:
		return LevelHigh
	case score >= 0.5:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Terms lowercases a description and splits it into word terms, dropping
// punctuation and purely numeric tokens such as dates and card numbers.
func Terms(description string) []string {
	fields := strings.FieldsFunc(strings.ToLower(description), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	terms := fields[:0]
	for _, f := range fields {
		if strings.IndexFunc(f, unicode.IsLetter) < 0 {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}

func softmax(logScores []float64, index int) float64 {
	peak := logScores[index]
	var sum float64
	for _, s := range logScores {
		sum += math.Exp(s - peak)
	}
	if sum == 0 || math.IsNaN(sum) {
		return 0
	}
	return 1 / sum
}
