package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/ScepterCode/project-nest-registrar/internal/domain"
)

// WaitlistReader is the minimal interface needed to read a waitlist.
type WaitlistReader interface {
	Waitlist(ctx context.Context, sectionID string) ([]domain.WaitlistEntry, error)
}

// HandleGetWaitlist returns an HTTP handler for GET /waitlists/{sectionID}.
func HandleGetWaitlist(svc WaitlistReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		sectionID, ok := parseWaitlistPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		entries, err := svc.Waitlist(r.Context(), sectionID)
		if err != nil {
			switch err {
			case domain.ErrInvalidID:
				writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
			case domain.ErrSectionNotFound:
				writeError(w, http.StatusNotFound, codeSectionNotFound, err.Error())
			default:
				writeUnexpectedError(w, err)
			}
			return
		}

		resp := waitlistResponse{Entries: make([]waitlistEntryResponse, 0, len(entries))}
		for _, entry := range entries {
			resp.Entries = append(resp.Entries, waitlistEntryResponse{
				RequesterID:          entry.RequesterID,
				Position:             entry.Position,
				Priority:             entry.Priority,
				EstimatedProbability: entry.EstimatedProbability,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func parseWaitlistPath(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[0] != "waitlists" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

type waitlistResponse struct {
	Entries []waitlistEntryResponse `json:"entries"`
}

type waitlistEntryResponse struct {
	RequesterID          string  `json:"requester_id"`
	Position             int     `json:"position"`
	Priority             int     `json:"priority"`
	EstimatedProbability float64 `json:"estimated_probability"`
}
