package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ScepterCode/project-nest-registrar/internal/domain"
)

const (
	codeMethodNotAllowed    = "method_not_allowed"
	codeNotFound            = "not_found"
	codeInvalidRequestBody  = "invalid_request_body"
	codeInvalidID           = "invalid_id"
	codeRequesterRequired   = "requester_id_required"
	codeActorRequired       = "actor_required"
	codeSectionNotFound     = "section_not_found"
	codeHoldingNotFound     = "holding_not_found"
	codeProfileNotFound     = "profile_not_found"
	codeNotWaitlisted       = "not_waitlisted"
	codeCourseCodeRequired  = "course_code_required"
	codeSectionNameRequired = "section_name_required"
	codeInvalidCapacity     = "invalid_capacity"
	codeInvalidMode         = "invalid_admission_mode"
	codeDuplicateSection    = "duplicate_section"
	codeForbidden           = "forbidden"
	codeRateLimited         = "rate_limited"
	codeStorageUnavailable  = "storage_unavailable"
	codeInternalError       = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

// writeUnexpectedError maps transient store failures to 503 so clients
// know the request is safe to retry; everything else is a plain 500.
func writeUnexpectedError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrStoreUnavailable) {
		writeError(w, http.StatusServiceUnavailable, codeStorageUnavailable, "storage unavailable, retry later")
		return
	}
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
