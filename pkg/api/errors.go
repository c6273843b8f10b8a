package api

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/orgscope/pkg/authz"
	"github.com/platinummonkey/orgscope/pkg/hierarchy"
	"github.com/platinummonkey/orgscope/pkg/httputil"
	"github.com/platinummonkey/orgscope/pkg/observability"
	"github.com/sirupsen/logrus"
)

// committedResponse is returned when a write committed but its cache
// invalidation failed. Clients must not retry the write.
type committedResponse struct {
	Status  string `json:"status"`
	Warning string `json:"warning"`
}

// writeError maps engine errors to HTTP responses
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var placement *hierarchy.PlacementError

	switch {
	case hierarchy.IsDenied(err):
		httputil.WriteForbidden(w, hierarchy.DenialReason(err))
	case hierarchy.IsNotFound(err):
		s.logger(r).WithError(err).Debug("resource not found")
		httputil.WriteNotFound(w, "not found")
	case errors.As(err, &placement):
		httputil.WriteUnprocessable(w, placement.Reason)
	case errors.Is(err, hierarchy.ErrCyclicHierarchy):
		httputil.WriteUnprocessable(w, "move would create a cycle")
	case errors.Is(err, authz.ErrInvalidationFailed):
		s.logger(r).WithError(err).Error("write committed without cache invalidation")
		httputil.WriteJSON(w, http.StatusAccepted, committedResponse{
			Status:  "committed",
			Warning: "cache invalidation failed; cached reads may be stale until they expire",
		})
	default:
		s.logger(r).WithError(err).Error("request failed")
		httputil.WriteInternalError(w)
	}
}

func (s *Server) logger(r *http.Request) *logrus.Entry {
	return observability.FromContext(r.Context(), s.log).WithField("path", r.URL.Path)
}
