package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/guardline/guardline/internal/db"
)

type contactRequest struct {
	ContactName   string  `json:"contact_name"`
	ContactPhone  string  `json:"contact_phone"`
	ContactEmail  *string `json:"contact_email"`
	NotifyBySMS   *bool   `json:"notify_by_sms"`
	NotifyByEmail *bool   `json:"notify_by_email"`
	Priority      *int    `json:"priority"`
}

func (req *contactRequest) validate() string {
	if req.ContactName == "" {
		return "contact_name is required"
	}
	if req.ContactPhone == "" {
		return "contact_phone is required"
	}
	if req.NotifyByEmail != nil && *req.NotifyByEmail &&
		(req.ContactEmail == nil || *req.ContactEmail == "") {
		return "contact_email is required when notify_by_email is set"
	}
	if req.Priority != nil && *req.Priority < 0 {
		return "priority must be non-negative"
	}
	return ""
}

func (h *Handler) handleCreateContact(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing actor identity")
		return
	}

	var req contactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if msg := req.validate(); msg != "" {
		h.writeError(w, r, http.StatusBadRequest, "invalid contact", msg)
		return
	}

	contact := &db.EmergencyContact{
		ID:           uuid.New(),
		UserID:       actor,
		ContactName:  req.ContactName,
		ContactPhone: req.ContactPhone,
		ContactEmail: req.ContactEmail,
		NotifyBySMS:  true,
	}
	if req.NotifyBySMS != nil {
		contact.NotifyBySMS = *req.NotifyBySMS
	}
	if req.NotifyByEmail != nil {
		contact.NotifyByEmail = *req.NotifyByEmail
	}
	if req.Priority != nil {
		contact.Priority = *req.Priority
	}

	if err := h.repo.CreateContact(r.Context(), contact); err != nil {
		h.mapError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, contact)
}

func (h *Handler) handleListContacts(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing actor identity")
		return
	}

	contacts, err := h.repo.ListContactsByUser(r.Context(), actor)
	if err != nil {
		h.mapError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, listResponse{Items: contacts, Count: len(contacts)})
}

func (h *Handler) handleUpdateContact(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing actor identity")
		return
	}

	id, err := parseUUIDParam(r, "id")
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid contact id", err.Error())
		return
	}

	var req contactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if msg := req.validate(); msg != "" {
		h.writeError(w, r, http.StatusBadRequest, "invalid contact", msg)
		return
	}

	existing, err := h.repo.GetContact(r.Context(), id)
	if err != nil {
		h.mapError(w, r, err)
		return
	}
	if existing.UserID != actor {
		// 404 rather than 403: contacts of other users are invisible.
		h.writeError(w, r, http.StatusNotFound, "not found", "")
		return
	}

	existing.ContactName = req.ContactName
	existing.ContactPhone = req.ContactPhone
	existing.ContactEmail = req.ContactEmail
	if req.NotifyBySMS != nil {
		existing.NotifyBySMS = *req.NotifyBySMS
	}
	if req.NotifyByEmail != nil {
		existing.NotifyByEmail = *req.NotifyByEmail
	}
	if req.Priority != nil {
		existing.Priority = *req.Priority
	}

	if err := h.repo.UpdateContact(r.Context(), actor, existing); err != nil {
		h.mapError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, existing)
}

func (h *Handler) handleDeleteContact(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing actor identity")
		return
	}

	id, err := parseUUIDParam(r, "id")
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid contact id", err.Error())
		return
	}

	if err := h.repo.DeleteContact(r.Context(), actor, id); err != nil {
		h.mapError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type profileRequest struct {
	FullName    *string `json:"full_name"`
	PhoneNumber *string `json:"phone_number"`
	AvatarURL   *string `json:"avatar_url"`
}

func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing actor identity")
		return
	}

	profile, err := h.repo.GetProfile(r.Context(), actor)
	if err != nil {
		h.mapError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

func (h *Handler) handleUpsertProfile(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing actor identity")
		return
	}

	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	profile := &db.Profile{
		ID:          actor,
		FullName:    req.FullName,
		PhoneNumber: req.PhoneNumber,
		AvatarURL:   req.AvatarURL,
	}

	if err := h.repo.UpsertProfile(r.Context(), profile); err != nil {
		h.mapError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, profile)
}
