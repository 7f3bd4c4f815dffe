package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-devicelink/internal/journal"
)

// handleListEvents returns paginated link journal entries.
//
// Query parameters:
//   - kind: status, send_failed, ack_failed, unhandled
//   - topic: exact topic
//   - since: RFC 3339 timestamp
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeInternalError(w, "link journal not configured")
		return
	}

	q := r.URL.Query()
	filter := journal.Filter{
		Kind:  journal.Kind(q.Get("kind")),
		Topic: q.Get("topic"),
	}

	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = since
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := s.events.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list link events", "error", err)
		writeInternalError(w, "failed to list link events")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
