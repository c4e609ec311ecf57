package triage

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed models/*.yaml
var embeddedModels embed.FS

const (
	growthModelFile    = "growth_model.yaml"
	treatmentModelFile = "treatment_model.yaml"
)

// treatmentLabels maps the treatment model's class index to a label.
var treatmentLabels = map[int]string{
	0: "Observation",
	1: "Medication",
	2: "Referral",
	3: "Surgery",
}

// TreatmentLabel returns the label for a class index, or "Unknown".
func TreatmentLabel(index int) string {
	if label, ok := treatmentLabels[index]; ok {
		return label
	}
	return "Unknown"
}

// linearTerms holds the weights shared by both model kinds. Categorical
// weights are one-hot: a value missing from the table contributes nothing.
type linearTerms struct {
	Intercept   float64                       `yaml:"intercept"`
	Numeric     map[string]float64            `yaml:"numeric"`
	Categorical map[string]map[string]float64 `yaml:"categorical"`
}

func (t linearTerms) score(p PatientData) float64 {
	sum := t.Intercept
	numeric := p.numericFeatures()
	for name, w := range t.Numeric {
		sum += w * numeric[name]
	}
	categorical := p.categoricalFeatures()
	for name, weights := range t.Categorical {
		sum += weights[categorical[name]]
	}
	return sum
}

func (t linearTerms) validate() error {
	numeric := PatientData{}.numericFeatures()
	for name := range t.Numeric {
		if _, ok := numeric[name]; !ok {
			return fmt.Errorf("unknown numeric feature %q", name)
		}
	}
	categorical := PatientData{}.categoricalFeatures()
	for name := range t.Categorical {
		if _, ok := categorical[name]; !ok {
			return fmt.Errorf("unknown categorical feature %q", name)
		}
	}
	return nil
}

// GrowthModel is a linear regression over the clinical features.
type GrowthModel struct {
	Name        string `yaml:"name"`
	Version     int    `yaml:"version"`
	linearTerms `yaml:",inline"`
}

// Predict returns the expected growth rounded to two decimals.
func (m *GrowthModel) Predict(p PatientData) float64 {
	return math.Round(m.score(p)*100) / 100
}

type treatmentClass struct {
	Index       int `yaml:"index"`
	linearTerms `yaml:",inline"`
}

// TreatmentModel is a multinomial logistic regression; the predicted class
// is the one with the highest logit.
type TreatmentModel struct {
	Name    string           `yaml:"name"`
	Version int              `yaml:"version"`
	Classes []treatmentClass `yaml:"classes"`
}

// Predict returns the winning class index and the softmax probability of
// every class keyed by label. Ties go to the lower class index.
func (m *TreatmentModel) Predict(p PatientData) (int, map[string]float64) {
	logits := make([]float64, len(m.Classes))
	best := 0
	for i, c := range m.Classes {
		logits[i] = c.score(p)
		if logits[i] > logits[best] || (logits[i] == logits[best] && c.Index < m.Classes[best].Index) {
			best = i
		}
	}

	maxLogit := logits[best]
	var total float64
	exps := make([]float64, len(logits))
	for i, l := range logits {
		exps[i] = math.Exp(l - maxLogit)
		total += exps[i]
	}
	probs := make(map[string]float64, len(m.Classes))
	for i, c := range m.Classes {
		probs[TreatmentLabel(c.Index)] = math.Round(exps[i]/total*10000) / 10000
	}
	return m.Classes[best].Index, probs
}

func (m *TreatmentModel) validate() error {
	if len(m.Classes) == 0 {
		return fmt.Errorf("no classes defined")
	}
	seen := make(map[int]bool, len(m.Classes))
	for _, c := range m.Classes {
		if seen[c.Index] {
			return fmt.Errorf("duplicate class index %d", c.Index)
		}
		seen[c.Index] = true
		if err := c.validate(); err != nil {
			return fmt.Errorf("class %d: %w", c.Index, err)
		}
	}
	sort.Slice(m.Classes, func(i, j int) bool { return m.Classes[i].Index < m.Classes[j].Index })
	return nil
}

// Models bundles the two prediction models.
type Models struct {
	Growth    *GrowthModel
	Treatment *TreatmentModel
}

// LoadModels reads the model files from dir, or from the copies built into
// the binary when dir is empty.
func LoadModels(dir string) (*Models, error) {
	var fsys fs.FS
	if dir == "" {
		sub, err := fs.Sub(embeddedModels, "models")
		if err != nil {
			return nil, err
		}
		fsys = sub
	} else {
		fsys = os.DirFS(dir)
	}
	return LoadModelsFS(fsys)
}

// LoadModelsFS reads growth_model.yaml and treatment_model.yaml from fsys.
func LoadModelsFS(fsys fs.FS) (*Models, error) {
	var growth GrowthModel
	if err := decodeModel(fsys, growthModelFile, &growth); err != nil {
		return nil, err
	}
	if err := growth.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", growthModelFile, err)
	}

	var treatment TreatmentModel
	if err := decodeModel(fsys, treatmentModelFile, &treatment); err != nil {
		return nil, err
	}
	if err := treatment.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", treatmentModelFile, err)
	}

	return &Models{Growth: &growth, Treatment: &treatment}, nil
}

func decodeModel(fsys fs.FS, name string, out any) error {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}
