package domain

import "time"

// RequesterProfile is the read-only view of a requester supplied by the
// directory. The admission service never mutates it.
type RequesterProfile struct {
	ID               string
	Program          string
	YearLevel        int
	CreditHours      int
	CompletedCourses []string
	RegistrarHolds   []string
	InvitedSections  []string
	UpdatedAt        time.Time
}

func (p RequesterProfile) HasCompleted(courseCode string) bool {
	for _, c := range p.CompletedCourses {
		if c == courseCode {
			return true
		}
	}
	return false
}

func (p RequesterProfile) InvitedTo(sectionID string) bool {
	for _, s := range p.InvitedSections {
		if s == sectionID {
			return true
		}
	}
	return false
}
