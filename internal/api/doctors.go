package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/hackgods/clinic-booking/internal/profile"
	"github.com/hackgods/clinic-booking/internal/schedule"
)

func (h *handlers) searchDoctors(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}

	doctors, err := h.profiles.SearchDoctors(r.Context(), profile.DoctorSearch{
		Specialty: r.URL.Query().Get("specialty"),
		Name:      r.URL.Query().Get("q"),
		Limit:     limit,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doctors)
}

// getSchedule returns the stored template. A doctor without one gets the
// default week so the editor has something to start from.
func (h *handlers) getSchedule(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	doctorID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	tmpl, err := h.schedules.Template(r.Context(), doctorID)
	switch {
	case errors.Is(err, schedule.ErrTemplateNotFound) && actor.IsDoctor(doctorID):
		writeJSON(w, http.StatusOK, ScheduleResponse{Template: schedule.DefaultTemplate(doctorID), IsDefault: true})
	case err != nil:
		writeServiceError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, ScheduleResponse{Template: *tmpl})
	}
}

func (h *handlers) putSchedule(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	doctorID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req ScheduleTemplateRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
		return
	}

	saved, err := h.schedules.SetTemplate(r.Context(), actor, schedule.Template{
		DoctorID:            doctorID,
		WeeklyRules:         req.WeeklyRules,
		SlotDurationMinutes: req.SlotDurationMinutes,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ScheduleResponse{Template: *saved})
}

func (h *handlers) freeSlots(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	date, err := schedule.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	slots, err := h.appointments.FreeSlots(r.Context(), doctorID, date)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SlotsResponse{DoctorID: doctorID, Date: date, Slots: slots})
}

func (h *handlers) getMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	p, err := h.profiles.Get(r.Context(), actor.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ProfileResponse{Profile: p})
}

func (h *handlers) ensureMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req EnsureProfileRequest
	if err := decodeRequest(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
		return
	}

	p, created, err := h.profiles.EnsureProfile(r.Context(), actor, req.Email)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, ProfileResponse{Profile: p, Created: created})
}
