package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	hub "github.com/beaconhub/beacon/internal"
	"github.com/beaconhub/beacon/internal/bus"
	"github.com/beaconhub/beacon/internal/history"
)

type channelsResponse struct {
	Channels []bus.ChannelInfo `json:"channels"`
}

func (s *server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, channelsResponse{Channels: s.deps.Bus.Channels()})
}

type historyResponse struct {
	Channel string          `json:"channel"`
	Latest  uint64          `json:"latest"`
	Entries []history.Entry `json:"entries"`
}

// handleHistory returns buffered events after the optional since ID. The
// latest field lets pollers resume without parsing entry IDs.
func (s *server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeJSON(w, http.StatusNotFound, errorResponse("history is not enabled"))
		return
	}
	channel := chi.URLParam(r, "channel")

	var afterID uint64
	if raw := r.URL.Query().Get("since"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse("invalid since parameter"))
			return
		}
		afterID = id
	}

	entries := s.deps.History.Since(channel, afterID)
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, historyResponse{
		Channel: channel,
		Latest:  s.deps.History.Latest(channel),
		Entries: entries,
	})
}

type sessionsResponse struct {
	Sessions []hub.SessionRecord `json:"sessions"`
	Totals   []hub.ChannelTotal  `json:"totals"`
}

func (s *server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if s.deps.SessionQueries == nil {
		writeJSON(w, http.StatusNotFound, errorResponse("session store is not enabled"))
		return
	}

	f, err := sessionFilter(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	sessions, err := s.deps.SessionQueries.QuerySessions(r.Context(), f)
	if err != nil {
		writeJSON(w, errorStatus(err), errorResponse("query sessions: "+err.Error()))
		return
	}
	totals, err := s.deps.SessionQueries.ChannelTotals(r.Context())
	if err != nil {
		writeJSON(w, errorStatus(err), errorResponse("query totals: "+err.Error()))
		return
	}

	if sessions == nil {
		sessions = []hub.SessionRecord{}
	}
	if totals == nil {
		totals = []hub.ChannelTotal{}
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: sessions, Totals: totals})
}

func sessionFilter(r *http.Request) (hub.SessionFilter, error) {
	q := r.URL.Query()
	f := hub.SessionFilter{Channel: q.Get("channel")}

	if raw := q.Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, hub.ErrBadRequest
		}
		f.Since = t
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return f, hub.ErrBadRequest
		}
		f.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return f, hub.ErrBadRequest
		}
		f.Offset = n
	}
	return f, nil
}
