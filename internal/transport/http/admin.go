package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ScepterCode/project-nest-registrar/internal/app"
	"github.com/ScepterCode/project-nest-registrar/internal/domain"
)

// AdminSectionService is the minimal interface needed for admin section
// endpoints.
type AdminSectionService interface {
	CreateSection(ctx context.Context, in app.CreateSectionInput) (domain.Section, error)
	GetSection(ctx context.Context, sectionID string) (domain.Section, error)
	ListSections(ctx context.Context) ([]domain.Section, error)
	UpdateSection(ctx context.Context, in app.UpdateSectionInput) (domain.Section, error)
}

// AdminProfileService is the minimal interface needed for the profile
// write path.
type AdminProfileService interface {
	UpsertProfile(ctx context.Context, profile domain.RequesterProfile) error
}

// HandleAdminSections returns an HTTP handler for /admin/sections.
func HandleAdminSections(svc AdminSectionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			sections, err := svc.ListSections(r.Context())
			if err != nil {
				writeUnexpectedError(w, err)
				return
			}
			resp := make([]sectionResponse, 0, len(sections))
			for _, section := range sections {
				resp = append(resp, toSectionResponse(section))
			}
			writeJSON(w, http.StatusOK, resp)
		case http.MethodPost:
			var req createSectionRequest
			dec := json.NewDecoder(r.Body)
			dec.DisallowUnknownFields()
			if err := dec.Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
				return
			}

			section, err := svc.CreateSection(r.Context(), app.CreateSectionInput{
				CourseCode:       req.CourseCode,
				Name:             req.Name,
				Capacity:         req.Capacity,
				WaitlistCapacity: req.WaitlistCapacity,
				AdmissionMode:    domain.AdmissionMode(req.AdmissionMode),
				Rules:            req.Rules,
			})
			if err != nil {
				switch err {
				case domain.ErrCourseCodeRequired:
					writeError(w, http.StatusBadRequest, codeCourseCodeRequired, err.Error())
				case domain.ErrSectionNameRequired:
					writeError(w, http.StatusBadRequest, codeSectionNameRequired, err.Error())
				case domain.ErrInvalidCapacity:
					writeError(w, http.StatusBadRequest, codeInvalidCapacity, err.Error())
				case domain.ErrInvalidAdmissionMode:
					writeError(w, http.StatusBadRequest, codeInvalidMode, err.Error())
				case domain.ErrDuplicateEntry:
					writeError(w, http.StatusConflict, codeDuplicateSection, err.Error())
				default:
					writeUnexpectedError(w, err)
				}
				return
			}
			writeJSON(w, http.StatusCreated, toSectionResponse(section))
		default:
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		}
	}
}

// HandleAdminSection returns an HTTP handler for /admin/sections/{id}.
func HandleAdminSection(svc AdminSectionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sectionID, ok := parseAdminSectionPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		switch r.Method {
		case http.MethodGet:
			section, err := svc.GetSection(r.Context(), sectionID)
			if err != nil {
				writeSectionError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, toSectionResponse(section))
		case http.MethodPatch:
			var req updateSectionRequest
			dec := json.NewDecoder(r.Body)
			dec.DisallowUnknownFields()
			if err := dec.Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
				return
			}

			in := app.UpdateSectionInput{
				SectionID:        sectionID,
				Capacity:         req.Capacity,
				WaitlistCapacity: req.WaitlistCapacity,
				Rules:            req.Rules,
			}
			if req.AdmissionMode != nil {
				mode := domain.AdmissionMode(*req.AdmissionMode)
				in.AdmissionMode = &mode
			}

			section, err := svc.UpdateSection(r.Context(), in)
			if err != nil {
				switch err {
				case domain.ErrInvalidCapacity:
					writeError(w, http.StatusBadRequest, codeInvalidCapacity, err.Error())
				case domain.ErrInvalidAdmissionMode:
					writeError(w, http.StatusBadRequest, codeInvalidMode, err.Error())
				default:
					writeSectionError(w, err)
				}
				return
			}
			writeJSON(w, http.StatusOK, toSectionResponse(section))
		default:
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		}
	}
}

// HandleAdminProfile returns an HTTP handler for PUT /admin/profiles/{id}.
func HandleAdminProfile(svc AdminProfileService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requesterID, ok := parseAdminProfilePath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}
		if r.Method != http.MethodPut {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req profileRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		err := svc.UpsertProfile(r.Context(), domain.RequesterProfile{
			ID:               requesterID,
			Program:          req.Program,
			YearLevel:        req.YearLevel,
			CreditHours:      req.CreditHours,
			CompletedCourses: req.CompletedCourses,
			RegistrarHolds:   req.RegistrarHolds,
			InvitedSections:  req.InvitedSections,
		})
		if err != nil {
			switch err {
			case domain.ErrRequesterRequired:
				writeError(w, http.StatusBadRequest, codeRequesterRequired, err.Error())
			default:
				writeUnexpectedError(w, err)
			}
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": requesterID})
	}
}

func writeSectionError(w http.ResponseWriter, err error) {
	switch err {
	case domain.ErrInvalidID:
		writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
	case domain.ErrSectionNotFound:
		writeError(w, http.StatusNotFound, codeSectionNotFound, err.Error())
	default:
		writeUnexpectedError(w, err)
	}
}

func parseAdminSectionPath(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 || parts[0] != "admin" || parts[1] != "sections" || parts[2] == "" {
		return "", false
	}
	return parts[2], true
}

func parseAdminProfilePath(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 || parts[0] != "admin" || parts[1] != "profiles" || parts[2] == "" {
		return "", false
	}
	return parts[2], true
}

type createSectionRequest struct {
	CourseCode       string              `json:"course_code"`
	Name             string              `json:"name"`
	Capacity         int                 `json:"capacity"`
	WaitlistCapacity int                 `json:"waitlist_capacity"`
	AdmissionMode    string              `json:"admission_mode,omitempty"`
	Rules            domain.SectionRules `json:"rules,omitempty"`
}

type updateSectionRequest struct {
	Capacity         *int                 `json:"capacity,omitempty"`
	WaitlistCapacity *int                 `json:"waitlist_capacity,omitempty"`
	AdmissionMode    *string              `json:"admission_mode,omitempty"`
	Rules            *domain.SectionRules `json:"rules,omitempty"`
}

type sectionResponse struct {
	ID               string              `json:"id"`
	CourseCode       string              `json:"course_code"`
	Name             string              `json:"name"`
	Capacity         int                 `json:"capacity"`
	WaitlistCapacity int                 `json:"waitlist_capacity"`
	AdmissionMode    string              `json:"admission_mode"`
	Rules            domain.SectionRules `json:"rules"`
}

func toSectionResponse(section domain.Section) sectionResponse {
	return sectionResponse{
		ID:               section.ID,
		CourseCode:       section.CourseCode,
		Name:             section.Name,
		Capacity:         section.Capacity,
		WaitlistCapacity: section.WaitlistCapacity,
		AdmissionMode:    string(section.AdmissionMode),
		Rules:            section.Rules,
	}
}

type profileRequest struct {
	Program          string   `json:"program,omitempty"`
	YearLevel        int      `json:"year_level,omitempty"`
	CreditHours      int      `json:"credit_hours,omitempty"`
	CompletedCourses []string `json:"completed_courses,omitempty"`
	RegistrarHolds   []string `json:"registrar_holds,omitempty"`
	InvitedSections  []string `json:"invited_sections,omitempty"`
}
