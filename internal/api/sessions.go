package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ashureev/agentdesk/internal/identity"
)

type agentSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Title     string `json:"title"`
	WhenToUse string `json:"when_to_use"`
	Icon      string `json:"icon,omitempty"`
}

// HandleAgents lists the persona catalog.
func (h *Handler) HandleAgents(w http.ResponseWriter, _ *http.Request) {
	list := h.catalog.List()
	out := make([]agentSummary, 0, len(list))
	for _, p := range list {
		out = append(out, agentSummary{
			ID:        p.ID,
			Name:      p.Name,
			Title:     p.Title,
			WhenToUse: p.WhenToUse,
			Icon:      p.Icon,
		})
	}
	JSON(w, http.StatusOK, map[string]any{"agents": out})
}

type sessionView struct {
	*domain.Session
	DocumentCount int `json:"document_count"`
}

// HandleSession returns the session state and transcript.
func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sessionID")
	sess, err := h.sessions.Get(r.Context(), sid)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	docs, err := h.sessions.ListDocuments(r.Context(), sid)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	JSON(w, http.StatusOK, sessionView{Session: sess, DocumentCount: len(docs)})
}

// HandleDocuments lists the session's documents in creation order.
func (h *Handler) HandleDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.sessions.ListDocuments(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	if docs == nil {
		docs = []domain.ManagedDocument{}
	}
	JSON(w, http.StatusOK, map[string]any{"documents": docs})
}

// HandleDocument serves a document's stored bytes. Documents that only
// live in an external service redirect there.
func (h *Handler) HandleDocument(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sessionID")
	doc, err := h.sessions.GetDocument(r.Context(), sid, chi.URLParam(r, "documentID"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	if doc.LocalRef == "" {
		if doc.ExternalURL != "" {
			http.Redirect(w, r, doc.ExternalURL, http.StatusFound)
			return
		}
		WriteDomainError(w, domain.NotFoundf("document %q has no content", doc.ID))
		return
	}
	data, err := h.blobs.Get(r.Context(), doc.LocalRef)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	ct := doc.ContentType
	if ct == "" {
		ct = domain.DocContentType(doc.Type)
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", `inline; filename="`+doc.ID+domain.DocExtension(doc.Type)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type credentialsRequest struct {
	SessionID   string            `json:"session_id"`
	Service     string            `json:"service"`
	Credentials map[string]string `json:"credentials"`
}

// HandleCredentials stores a credential bundle for the session. The payload
// is never echoed or logged.
func (h *Handler) HandleCredentials(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := DecodeJSON(w, r, h.maxBody, &req); err != nil {
		WriteDomainError(w, err)
		return
	}
	sid, err := identity.Resolve(r.Context(), req.SessionID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	if err := h.sessions.StoreCredential(r.Context(), sid, req.Service, req.Credentials); err != nil {
		WriteDomainError(w, err)
		return
	}
	service := domain.NormalizeService(req.Service)
	JSON(w, http.StatusOK, map[string]string{
		"message": "Credentials stored for " + service,
		"service": service,
	})
}
