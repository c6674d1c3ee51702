package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opencode-ai/agentctx/internal/agent"
	"github.com/opencode-ai/agentctx/internal/resource"
)

// ResourcesResponse is the body of GET /agent/{name}/resources.
type ResourcesResponse struct {
	Agent   string                    `json:"agent"`
	Headers int                       `json:"headers"`
	Files   int                       `json:"files"`
	Entries resource.PresentationList `json:"entries"`
}

// WatchResponse is the body of the watch endpoints.
type WatchResponse struct {
	Agent    string `json:"agent"`
	Watching bool   `json:"watching"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// listAgents rereads the agent directories and returns every agent.
func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	if err := s.agents.Reload(); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	items := s.agents.List()
	if items == nil {
		items = []*agent.Item{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) getAgent(w http.ResponseWriter, r *http.Request) {
	item, err := s.agents.Get(chi.URLParam(r, "name"))
	if err != nil {
		writeResourceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// resolveResources resolves the agent's resource patterns. The request
// context bounds the resolution, so a disconnecting client cancels it.
func (s *Server) resolveResources(w http.ResponseWriter, r *http.Request) {
	item, err := s.agents.Get(chi.URLParam(r, "name"))
	if err != nil {
		writeResourceError(w, err)
		return
	}

	list, err := s.service.Resolve(r.Context(), item.Config)
	if err != nil {
		writeResourceError(w, err)
		return
	}
	if list == nil {
		list = resource.PresentationList{}
	}

	writeJSON(w, http.StatusOK, ResourcesResponse{
		Agent:   item.Name,
		Headers: len(list.Headers()),
		Files:   len(list.Files()),
		Entries: list,
	})
}

func (s *Server) startWatch(w http.ResponseWriter, r *http.Request) {
	item, err := s.agents.Get(chi.URLParam(r, "name"))
	if err != nil {
		writeResourceError(w, err)
		return
	}

	handle, err := s.service.Watch(item.Config)
	if err != nil {
		writeResourceError(w, err)
		return
	}

	s.mu.Lock()
	prev := s.watches[item.Name]
	s.watches[item.Name] = handle
	// Single active watching may have released other agents' watches.
	for name := range s.watches {
		if name != item.Name && !s.service.Watching(name) {
			delete(s.watches, name)
		}
	}
	s.mu.Unlock()
	if prev != nil {
		prev.Dispose()
	}

	writeJSON(w, http.StatusOK, WatchResponse{Agent: item.Name, Watching: true})
}

func (s *Server) stopWatch(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	s.mu.Lock()
	handle, ok := s.watches[name]
	delete(s.watches, name)
	s.mu.Unlock()

	if !ok || !s.service.Watching(name) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "no watch for agent "+name)
		return
	}
	handle.Dispose()
	writeJSON(w, http.StatusOK, WatchResponse{Agent: name, Watching: false})
}

func (s *Server) cacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Stats())
}

func (s *Server) clearCache(w http.ResponseWriter, r *http.Request) {
	s.service.InvalidateAll()
	writeSuccess(w)
}
