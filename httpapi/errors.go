package httpapi

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/samber/oops"

	"github.com/MrEthical07/tokenauth"
	"github.com/MrEthical07/tokenauth/internal/logging"
)

type errorBody struct {
	Error      string                 `json:"error"`
	Code       string                 `json:"code"`
	Details    []tokenauth.FieldError `json:"details,omitempty"`
	RetryAfter int                    `json:"retryAfter,omitempty"`
	Trace      string                 `json:"trace,omitempty"`
}

// writeError is the only place engine errors turn into responses. Server-side
// failures are logged with their cause; clients get the generic message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := tokenauth.AsError(err)

	body := errorBody{
		Error:   e.Message,
		Code:    e.Code,
		Details: e.Details,
	}

	if e.RetryAfter > 0 {
		secs := int(math.Ceil(e.RetryAfter.Seconds()))
		body.RetryAfter = secs
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}

	if e.Status >= http.StatusInternalServerError {
		logging.LogError(r.Context(), s.logger, "request failed", causeOf(err))
		if !s.opts.Production {
			body.Trace = trace(causeOf(err))
		}
	}

	writeJSON(w, e.Status, body)
}

func causeOf(err error) error {
	if cause := errors.Unwrap(err); cause != nil {
		return cause
	}
	return err
}

func trace(err error) string {
	if oopsErr, ok := oops.AsOops(err); ok {
		return oopsErr.Stacktrace()
	}
	return fmt.Sprintf("%+v", err)
}
