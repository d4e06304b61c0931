package domain

import "time"

type AdmissionMode string

const (
	AdmissionModeOpen       AdmissionMode = "open"
	AdmissionModeRestricted AdmissionMode = "restricted"
	AdmissionModeInvitation AdmissionMode = "invitation_only"
)

// Section is the capacity-bounded resource: one offering of a course.
// Capacity is enforced by the admission service; nothing else may create
// or release holdings against it.
type Section struct {
	ID               string
	CourseCode       string
	Name             string
	Capacity         int
	WaitlistCapacity int // 0 disables waitlisting
	AdmissionMode    AdmissionMode
	Rules            SectionRules
	CreatedAt        time.Time
}

// SectionRules are the per-section eligibility constraints. Zero values
// fall back to the campus policy defaults.
type SectionRules struct {
	PrerequisiteCourses []string `json:"prerequisite_courses,omitempty"`
	AllowedPrograms     []string `json:"allowed_programs,omitempty"`
	MinYearLevel        int      `json:"min_year_level,omitempty"`
	MaxCreditHours      int      `json:"max_credit_hours,omitempty"`
	SectionCreditHours  int      `json:"section_credit_hours,omitempty"`
}

func ValidAdmissionMode(mode AdmissionMode) bool {
	switch mode {
	case AdmissionModeOpen, AdmissionModeRestricted, AdmissionModeInvitation:
		return true
	}
	return false
}
