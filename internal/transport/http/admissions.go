package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ScepterCode/project-nest-registrar/internal/app"
	"github.com/ScepterCode/project-nest-registrar/internal/domain"
	"github.com/ScepterCode/project-nest-registrar/internal/eligibility"
)

// AdmissionRequester is the minimal interface needed to request admission.
type AdmissionRequester interface {
	RequestAdmission(ctx context.Context, in app.RequestAdmissionInput) (app.AdmissionResult, error)
}

// HandleRequestAdmission returns an HTTP handler for admission requests.
func HandleRequestAdmission(svc AdmissionRequester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req admissionRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if req.RequesterID == "" {
			writeError(w, http.StatusBadRequest, codeRequesterRequired, domain.ErrRequesterRequired.Error())
			return
		}
		if req.SectionID == "" {
			writeError(w, http.StatusBadRequest, codeInvalidID, "section_id is required")
			return
		}

		result, err := svc.RequestAdmission(r.Context(), app.RequestAdmissionInput{
			RequesterID:   req.RequesterID,
			SectionID:     req.SectionID,
			Justification: req.Justification,
		})
		if err != nil {
			switch err {
			case domain.ErrInvalidID, domain.ErrRequesterRequired:
				writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
			case domain.ErrSectionNotFound:
				writeError(w, http.StatusNotFound, codeSectionNotFound, err.Error())
			case domain.ErrProfileNotFound:
				writeError(w, http.StatusNotFound, codeProfileNotFound, err.Error())
			default:
				writeUnexpectedError(w, err)
			}
			return
		}

		status := http.StatusOK
		if result.Outcome == app.OutcomeAdmitted || result.Outcome == app.OutcomeWaitlisted {
			status = http.StatusCreated
		}
		resp := admissionResponse{
			Outcome:   string(result.Outcome),
			HoldingID: result.HoldingID,
			Reasons:   result.Reasons,
		}
		if result.Outcome == app.OutcomeWaitlisted || (result.Outcome == app.OutcomeAlreadyPresent && result.Position > 0) {
			resp.Position = &result.Position
		}
		if result.DenialReason != "" {
			resp.DenialReason = result.DenialReason
		}
		writeJSON(w, status, resp)
	}
}

type admissionRequest struct {
	RequesterID   string `json:"requester_id"`
	SectionID     string `json:"section_id"`
	Justification string `json:"justification,omitempty"`
}

type admissionResponse struct {
	Outcome      string               `json:"outcome"`
	HoldingID    string               `json:"holding_id,omitempty"`
	Position     *int                 `json:"position,omitempty"`
	DenialReason string               `json:"denial_reason,omitempty"`
	Reasons      []eligibility.Reason `json:"reasons,omitempty"`
}
