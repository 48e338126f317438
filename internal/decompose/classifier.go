package decompose

import (
	"strings"

	"github.com/ShayCichocki/swarmer/pkg/models"
)

// Features are the signals extracted from a project description.
type Features struct {
	NeedsArchitecture  bool
	NeedsTesting       bool
	NeedsDocumentation bool
	// Specializations drive one implementation task each, in order.
	Specializations []string
	Complexity      models.Effort
}

// Classifier extracts Features from free text. Replace it to plug in a
// richer planner; the task shapes built from Features stay the same.
type Classifier interface {
	Classify(description string) Features
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(description string) Features

// Classify calls f.
func (f ClassifierFunc) Classify(description string) Features {
	return f(description)
}

// Keywords configures HeuristicClassifier.
type Keywords struct {
	Architecture  []string
	Documentation []string
	// Specializations maps a specialization to its trigger words; order is kept.
	Specializations []Specialization
}

// Specialization is one implementation track and the words that select it.
type Specialization struct {
	Name  string
	Words []string
}

// DefaultSpecialization is used when no specialization keyword matches.
const DefaultSpecialization = "core"

// DefaultKeywords is the built-in keyword set.
var DefaultKeywords = Keywords{
	Architecture:  []string{"system", "platform"},
	Documentation: []string{"api", "library"},
	Specializations: []Specialization{
		{Name: "frontend", Words: []string{"frontend", "ui", "web app", "dashboard", "react"}},
		{Name: "backend", Words: []string{"backend", "server", "api", "http", "proxy", "service"}},
		{Name: "data", Words: []string{"database", "sql", "schema", "etl", "pipeline"}},
	},
}

// HeuristicClassifier flags features by keyword presence and sizes the work by text length.
type HeuristicClassifier struct {
	Keywords Keywords
}

// NewHeuristicClassifier returns a classifier using DefaultKeywords.
func NewHeuristicClassifier() *HeuristicClassifier {
	return &HeuristicClassifier{Keywords: DefaultKeywords}
}

// Classify implements Classifier.
func (c *HeuristicClassifier) Classify(description string) Features {
	words := tokenize(description)
	f := Features{
		NeedsArchitecture:  containsAny(words, c.Keywords.Architecture),
		NeedsTesting:       true,
		NeedsDocumentation: containsAny(words, c.Keywords.Documentation),
		Complexity:         complexityOf(description),
	}
	for _, s := range c.Keywords.Specializations {
		if containsAny(words, s.Words) {
			f.Specializations = append(f.Specializations, s.Name)
		}
	}
	if len(f.Specializations) == 0 {
		f.Specializations = []string{DefaultSpecialization}
	}
	return f
}

func complexityOf(description string) models.Effort {
	n := len(strings.TrimSpace(description))
	switch {
	case n < 100:
		return models.EffortLow
	case n < 300:
		return models.EffortMedium
	default:
		return models.EffortHigh
	}
}

// tokenize lowercases s and reduces it to single-space separated alphanumeric words.
func tokenize(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
	return strings.Join(fields, " ")
}

// containsAny matches whole words or phrases, allowing a plural "s".
func containsAny(tokens string, words []string) bool {
	padded := " " + tokens + " "
	for _, w := range words {
		if strings.Contains(padded, " "+w+" ") || strings.Contains(padded, " "+w+"s ") {
			return true
		}
	}
	return false
}
