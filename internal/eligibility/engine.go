package eligibility

import (
	"fmt"

	"github.com/ScepterCode/project-nest-registrar/internal/domain"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Reason explains one failed or borderline check. An error-severity reason
// that is not overridable blocks admission outright; overridable reasons
// can be bypassed by an administrative force-admit.
type Reason struct {
	Kind        string   `json:"kind"`
	Message     string   `json:"message"`
	Severity    Severity `json:"severity"`
	Overridable bool     `json:"overridable"`
}

type Result struct {
	Eligible           bool     `json:"eligible"`
	Reasons            []Reason `json:"reasons,omitempty"`
	RecommendedActions []string `json:"recommended_actions,omitempty"`
}

// HardBlocked reports whether any reason rules out admission even under
// administrative override.
func (r Result) HardBlocked() bool {
	for _, reason := range r.Reasons {
		if reason.Severity == SeverityError && !reason.Overridable {
			return true
		}
	}
	return false
}

const (
	ReasonRegistrarHold  = "registrar_hold"
	ReasonPrerequisite   = "missing_prerequisite"
	ReasonProgram        = "program_restricted"
	ReasonYearLevel      = "year_level"
	ReasonCreditOverload = "credit_overload"
	ReasonNotInvited     = "not_invited"
)

// Engine evaluates whether a requester may hold a seat in a section,
// independent of capacity. It is pure: all inputs arrive as arguments and
// it keeps no mutable state, so it is safe for concurrent use.
type Engine struct {
	defaults domain.SectionRules
}

func NewEngine(defaults domain.SectionRules) *Engine {
	return &Engine{defaults: defaults}
}

func (e *Engine) Evaluate(profile domain.RequesterProfile, section domain.Section) Result {
	rules := e.effectiveRules(section.Rules)

	var result Result

	for _, hold := range profile.RegistrarHolds {
		result.Reasons = append(result.Reasons, Reason{
			Kind:        ReasonRegistrarHold,
			Message:     fmt.Sprintf("registrar hold %q blocks registration", hold),
			Severity:    SeverityError,
			Overridable: false,
		})
		result.RecommendedActions = append(result.RecommendedActions,
			fmt.Sprintf("resolve registrar hold %q", hold))
	}

	for _, prereq := range rules.PrerequisiteCourses {
		if profile.HasCompleted(prereq) {
			continue
		}
		result.Reasons = append(result.Reasons, Reason{
			Kind:        ReasonPrerequisite,
			Message:     fmt.Sprintf("prerequisite %s not completed", prereq),
			Severity:    SeverityError,
			Overridable: true,
		})
		result.RecommendedActions = append(result.RecommendedActions,
			fmt.Sprintf("complete prerequisite %s", prereq))
	}

	if section.AdmissionMode == domain.AdmissionModeRestricted && len(rules.AllowedPrograms) > 0 {
		if !contains(rules.AllowedPrograms, profile.Program) {
			result.Reasons = append(result.Reasons, Reason{
				Kind:        ReasonProgram,
				Message:     fmt.Sprintf("section restricted to programs %v", rules.AllowedPrograms),
				Severity:    SeverityError,
				Overridable: true,
			})
			result.RecommendedActions = append(result.RecommendedActions,
				"request a program restriction override from the department")
		}
	}

	if section.AdmissionMode == domain.AdmissionModeInvitation && !profile.InvitedTo(section.ID) {
		result.Reasons = append(result.Reasons, Reason{
			Kind:        ReasonNotInvited,
			Message:     "section is invitation-only",
			Severity:    SeverityError,
			Overridable: false,
		})
	}

	if rules.MinYearLevel > 0 && profile.YearLevel < rules.MinYearLevel {
		result.Reasons = append(result.Reasons, Reason{
			Kind:        ReasonYearLevel,
			Message:     fmt.Sprintf("requires year level %d or above", rules.MinYearLevel),
			Severity:    SeverityWarning,
			Overridable: true,
		})
	}

	if rules.MaxCreditHours > 0 {
		load := profile.CreditHours + rules.SectionCreditHours
		if load > rules.MaxCreditHours {
			result.Reasons = append(result.Reasons, Reason{
				Kind:        ReasonCreditOverload,
				Message:     fmt.Sprintf("enrolling would carry %d credit hours, above the %d limit", load, rules.MaxCreditHours),
				Severity:    SeverityWarning,
				Overridable: true,
			})
			result.RecommendedActions = append(result.RecommendedActions,
				"request a credit overload approval")
		}
	}

	result.Eligible = true
	for _, reason := range result.Reasons {
		if reason.Severity == SeverityError {
			result.Eligible = false
			break
		}
	}
	return result
}

// effectiveRules merges section rules over campus defaults; zero-valued
// section fields inherit the default.
func (e *Engine) effectiveRules(rules domain.SectionRules) domain.SectionRules {
	if rules.MinYearLevel == 0 {
		rules.MinYearLevel = e.defaults.MinYearLevel
	}
	if rules.MaxCreditHours == 0 {
		rules.MaxCreditHours = e.defaults.MaxCreditHours
	}
	if rules.SectionCreditHours == 0 {
		rules.SectionCreditHours = e.defaults.SectionCreditHours
	}
	if len(rules.PrerequisiteCourses) == 0 {
		rules.PrerequisiteCourses = e.defaults.PrerequisiteCourses
	}
	return rules
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
