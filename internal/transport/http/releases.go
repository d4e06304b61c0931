package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ScepterCode/project-nest-registrar/internal/app"
	"github.com/ScepterCode/project-nest-registrar/internal/domain"
	"github.com/ScepterCode/project-nest-registrar/internal/eligibility"
)

// Releaser is the minimal interface needed to release a holding.
type Releaser interface {
	Release(ctx context.Context, in app.ReleaseInput) (app.ReleaseResult, error)
}

// HandleRelease returns an HTTP handler for releasing a seat.
func HandleRelease(svc Releaser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req releaseRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if req.HoldingID == "" {
			writeError(w, http.StatusBadRequest, codeInvalidID, "holding_id is required")
			return
		}
		actor, ok := parseActor(req.Actor)
		if !ok {
			writeError(w, http.StatusBadRequest, codeActorRequired, domain.ErrActorRequired.Error())
			return
		}

		result, err := svc.Release(r.Context(), app.ReleaseInput{
			HoldingID: req.HoldingID,
			Actor:     actor,
			Reason:    req.Reason,
			Completed: req.Completed,
		})
		if err != nil {
			switch err {
			case domain.ErrInvalidID, domain.ErrActorRequired:
				writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
			case domain.ErrHoldingNotFound:
				writeError(w, http.StatusNotFound, codeHoldingNotFound, err.Error())
			case domain.ErrSectionNotFound:
				writeError(w, http.StatusNotFound, codeSectionNotFound, err.Error())
			default:
				writeUnexpectedError(w, err)
			}
			return
		}

		resp := releaseResponse{Outcome: string(result.Outcome)}
		if result.PromotedRequesterID != "" {
			resp.PromotedRequesterID = result.PromotedRequesterID
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// ForceAdmitter is the minimal interface needed for administrative
// force-admission.
type ForceAdmitter interface {
	ForceAdmit(ctx context.Context, in app.ForceAdmitInput) (app.AdmissionResult, error)
}

// HandleForceAdmit returns an HTTP handler for the administrative
// capacity override.
func HandleForceAdmit(svc ForceAdmitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req forceAdmitRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if req.SectionID == "" || req.RequesterID == "" {
			writeError(w, http.StatusBadRequest, codeInvalidID, "section_id and requester_id are required")
			return
		}
		if req.ActorID == "" {
			writeError(w, http.StatusBadRequest, codeActorRequired, domain.ErrActorRequired.Error())
			return
		}

		result, err := svc.ForceAdmit(r.Context(), app.ForceAdmitInput{
			SectionID:   req.SectionID,
			RequesterID: req.RequesterID,
			Actor:       domain.Actor{Kind: domain.ActorAdmin, ID: req.ActorID},
			Reason:      req.Reason,
		})
		if err != nil {
			switch err {
			case domain.ErrInvalidID, domain.ErrActorRequired:
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
		if result.Outcome == app.OutcomeAdmitted {
			status = http.StatusCreated
		}
		writeJSON(w, status, forceAdmitResponse{
			Outcome:   string(result.Outcome),
			HoldingID: result.HoldingID,
			Reasons:   result.Reasons,
		})
	}
}

// Withdrawer is the minimal interface needed to withdraw a waitlist entry.
type Withdrawer interface {
	Withdraw(ctx context.Context, in app.WithdrawInput) error
}

// HandleWithdraw returns an HTTP handler for withdrawing from a waitlist.
func HandleWithdraw(svc Withdrawer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req withdrawRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if req.SectionID == "" || req.RequesterID == "" {
			writeError(w, http.StatusBadRequest, codeInvalidID, "section_id and requester_id are required")
			return
		}

		actor, _ := parseActor(req.Actor)
		err := svc.Withdraw(r.Context(), app.WithdrawInput{
			SectionID:   req.SectionID,
			RequesterID: req.RequesterID,
			Actor:       actor,
		})
		if err != nil {
			switch err {
			case domain.ErrInvalidID:
				writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
			case domain.ErrSectionNotFound:
				writeError(w, http.StatusNotFound, codeSectionNotFound, err.Error())
			case domain.ErrNotWaitlisted:
				writeError(w, http.StatusNotFound, codeNotWaitlisted, err.Error())
			default:
				writeUnexpectedError(w, err)
			}
			return
		}

		writeJSON(w, http.StatusOK, withdrawResponse{Outcome: "WITHDRAWN"})
	}
}

type actorPayload struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

func parseActor(p actorPayload) (domain.Actor, bool) {
	switch domain.ActorKind(p.Kind) {
	case domain.ActorRequester, domain.ActorAdmin, domain.ActorSystem:
		return domain.Actor{Kind: domain.ActorKind(p.Kind), ID: p.ID}, true
	}
	return domain.Actor{}, false
}

type releaseRequest struct {
	HoldingID string       `json:"holding_id"`
	Actor     actorPayload `json:"actor"`
	Reason    string       `json:"reason,omitempty"`
	Completed bool         `json:"completed,omitempty"`
}

type releaseResponse struct {
	Outcome             string `json:"outcome"`
	PromotedRequesterID string `json:"promoted_requester_id,omitempty"`
}

type forceAdmitRequest struct {
	SectionID   string `json:"section_id"`
	RequesterID string `json:"requester_id"`
	ActorID     string `json:"actor_id"`
	Reason      string `json:"reason,omitempty"`
}

type forceAdmitResponse struct {
	Outcome   string               `json:"outcome"`
	HoldingID string               `json:"holding_id,omitempty"`
	Reasons   []eligibility.Reason `json:"reasons,omitempty"`
}

type withdrawRequest struct {
	SectionID   string       `json:"section_id"`
	RequesterID string       `json:"requester_id"`
	Actor       actorPayload `json:"actor,omitempty"`
}

type withdrawResponse struct {
	Outcome string `json:"outcome"`
}
