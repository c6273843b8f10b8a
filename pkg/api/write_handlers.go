package api

import (
	"net/http"

	"github.com/platinummonkey/orgscope/pkg/authz"
	"github.com/platinummonkey/orgscope/pkg/httputil"
)

// updateUser handles PATCH /v1/users/{id}
func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	targetID, err := httputil.ParsePathString(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	var update authz.UserUpdate
	if !httputil.ParseJSONOrError(w, r, &update) {
		return
	}
	if len(update.Fields()) == 0 {
		httputil.WriteBadRequest(w, "no fields to update")
		return
	}

	if err := s.engine.UpdateUser(r.Context(), caller(r), targetID, update); err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// deleteUser handles DELETE /v1/users/{id}
func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	targetID, err := httputil.ParsePathString(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if err := s.engine.DeleteUser(r.Context(), caller(r), targetID); err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// activatePosition handles POST /v1/users/{id}/positions/{position_id}/activate
func (s *Server) activatePosition(w http.ResponseWriter, r *http.Request) {
	targetID, err := httputil.ParsePathString(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	positionID, err := httputil.ParsePathString(r, "position_id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if err := s.engine.ActivatePosition(r.Context(), caller(r), targetID, positionID); err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// deleteUnit handles DELETE /v1/units/{id}
func (s *Server) deleteUnit(w http.ResponseWriter, r *http.Request) {
	unitID, err := httputil.ParsePathString(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if err := s.engine.DeleteUnit(r.Context(), caller(r), unitID); err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

type moveUnitRequest struct {
	ParentID string `json:"parent_id"`
}

// moveUnit handles POST /v1/units/{id}/move
func (s *Server) moveUnit(w http.ResponseWriter, r *http.Request) {
	unitID, err := httputil.ParsePathString(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	var req moveUnitRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.ParentID == "" {
		httputil.WriteBadRequest(w, "parent_id is required")
		return
	}

	if err := s.engine.MoveUnit(r.Context(), caller(r), unitID, req.ParentID); err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

type assignManagerRequest struct {
	UserID string `json:"user_id"`
}

// assignManager handles PUT /v1/units/{id}/manager
func (s *Server) assignManager(w http.ResponseWriter, r *http.Request) {
	unitID, err := httputil.ParsePathString(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	var req assignManagerRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.UserID == "" {
		httputil.WriteBadRequest(w, "user_id is required")
		return
	}

	if err := s.engine.AssignManager(r.Context(), caller(r), unitID, req.UserID); err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}
