// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteBadRequest(w, "invalid input")
//	httputil.WriteForbidden(w, hierarchy.DenialReason(err))
//	httputil.WriteNotFound(w, "unit not found")
//
// Internal errors never carry their cause to the client; handlers log the
// cause and call WriteInternalError.
//
// # Request Parsing
//
//	var req moveRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//
//	id, err := httputil.ParsePathString(r, "id")
//	page, err := httputil.ParseQueryInt(r, "page", 1)
//	filters := httputil.QueryFilters(r, "organization_id", "parent_id")
//
// # Middleware
//
// RequestIDMiddleware runs first so that the logging and recovery middleware
// can tag their output with the request ID:
//
//	router.Use(httputil.RequestIDMiddleware)
//	router.Use(httputil.RecoveryMiddleware(log))
//	router.Use(httputil.LoggingMiddleware(log))
//	router.Use(httputil.ContentTypeMiddleware)
//	router.Use(httputil.MaxBytesMiddleware(1 << 20))
package httputil
