package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hackgods/telehealth-scheduling/internal/schederr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

var kindStatus = map[schederr.Kind]int{
	schederr.KindValidation:         http.StatusBadRequest,
	schederr.KindSlotUnavailable:    http.StatusConflict,
	schederr.KindIllegalTransition:  http.StatusConflict,
	schederr.KindAlreadyCancelled:   http.StatusConflict,
	schederr.KindOutOfHorizon:       http.StatusUnprocessableEntity,
	schederr.KindNotFound:           http.StatusNotFound,
	schederr.KindDoctorNotScheduled: http.StatusNotFound,
	schederr.KindBusy:               http.StatusTooManyRequests,
	schederr.KindBackendUnavailable: http.StatusServiceUnavailable,
	schederr.KindInternal:           http.StatusInternalServerError,
}

// writeServiceError is the single place where scheduling errors become HTTP.
func writeServiceError(w http.ResponseWriter, err error) {
	kind := schederr.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	details := schederr.MessageOf(err)
	switch kind {
	case schederr.KindInternal, schederr.KindBackendUnavailable:
		// causes stay in the logs
		details = http.StatusText(status)
	case schederr.KindBusy:
		w.Header().Set("Retry-After", "1")
	}
	writeError(w, status, kind.String(), details)
}

type requestValidator struct {
	validate *validator.Validate
}

func newRequestValidator() *requestValidator {
	return &requestValidator{validate: validator.New()}
}

// check validates a request DTO and renders the failures as one sentence.
func (v *requestValidator) check(req any) error {
	err := v.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return schederr.Validation("request", "%v", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		field := e.Field()
		switch e.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "uuid":
			msgs = append(msgs, field+" must be a valid UUID")
		case "oneof":
			msgs = append(msgs, field+" must be one of: "+e.Param())
		case "max", "lte":
			msgs = append(msgs, field+" must be at most "+e.Param())
		case "gte":
			msgs = append(msgs, field+" must be at least "+e.Param())
		case "numeric":
			msgs = append(msgs, field+" must be numeric")
		default:
			msgs = append(msgs, field+" is invalid")
		}
	}
	sort.Strings(msgs)
	return schederr.Validation("request", "%s", strings.Join(msgs, "; "))
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return schederr.Validation("request", "could not parse JSON: %v", err)
	}
	return nil
}
