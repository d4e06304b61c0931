package eligibility

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ScepterCode/project-nest-registrar/internal/domain"
)

// Policy is the campus-wide default rule document. Per-section rules take
// precedence field by field.
type Policy struct {
	MinYearLevel       int      `yaml:"min_year_level"`
	MaxCreditHours     int      `yaml:"max_credit_hours"`
	SectionCreditHours int      `yaml:"section_credit_hours"`
	Prerequisites      []string `yaml:"prerequisites"`
}

func (p Policy) Rules() domain.SectionRules {
	return domain.SectionRules{
		MinYearLevel:        p.MinYearLevel,
		MaxCreditHours:      p.MaxCreditHours,
		SectionCreditHours:  p.SectionCreditHours,
		PrerequisiteCourses: p.Prerequisites,
	}
}

// LoadPolicy reads a YAML policy document. A missing path returns an empty
// policy so the engine runs on per-section rules alone.
func LoadPolicy(path string) (Policy, error) {
	if path == "" {
		return Policy{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy: %w", err)
	}
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("parse policy: %w", err)
	}
	if p.MaxCreditHours < 0 || p.MinYearLevel < 0 {
		return Policy{}, fmt.Errorf("parse policy: negative limits")
	}
	return p, nil
}
