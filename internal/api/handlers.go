package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/auth"
	"github.com/hackgods/clinic-booking/internal/profile"
	"github.com/hackgods/clinic-booking/internal/schedule"
)

type handlers struct {
	appointments *appointment.Service
	schedules    *schedule.Service
	profiles     *profile.Service
}

func requireActor(w http.ResponseWriter, r *http.Request) (auth.Actor, bool) {
	actor, ok := auth.ActorFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "bearer token required")
	}
	return actor, ok
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}

func (h *handlers) bookAppointment(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req BookAppointmentRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
		return
	}

	doctorID, err := uuid.Parse(req.DoctorID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorId must be a valid UUID")
		return
	}
	date, err := schedule.ParseDate(req.Date)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	start, err := schedule.ParseClock(req.StartTime)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	var patientID uuid.UUID
	switch actor.Role {
	case auth.RolePatient:
		if req.PatientID != "" && req.PatientID != actor.ID.String() {
			writeError(w, http.StatusForbidden, "forbidden", "patients can only book for themselves")
			return
		}
		patientID = actor.ID
	case auth.RoleAdmin:
		if patientID, err = uuid.Parse(req.PatientID); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patientId is required when booking on behalf of a patient")
			return
		}
	default:
		writeError(w, http.StatusForbidden, "forbidden", "only patients can book appointments")
		return
	}

	appt, err := h.appointments.Book(r.Context(), appointment.BookingRequest{
		DoctorID:  doctorID,
		PatientID: patientID,
		Date:      date,
		StartTime: start,
		Reason:    req.Reason,
		Notes:     req.Notes,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, newAppointmentResponse(appt))
}

func (h *handlers) listAppointments(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var f appointment.ListFilter
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, valid := appointment.ParseStatus(raw)
		if !valid {
			writeError(w, http.StatusBadRequest, "invalid_status", "status must be scheduled, completed or cancelled")
			return
		}
		f.Status = status
	}
	if f.Limit, ok = queryInt(w, r, "limit"); !ok {
		return
	}
	if f.Offset, ok = queryInt(w, r, "offset"); !ok {
		return
	}

	list, err := h.appointments.List(r.Context(), actor, f)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := AppointmentListResponse{Appointments: make([]AppointmentResponse, 0, len(list))}
	for i := range list {
		resp.Appointments = append(resp.Appointments, newAppointmentResponse(&list[i]))
	}
	resp.Count = len(resp.Appointments)

	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) getAppointment(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	appt, err := h.appointments.Get(r.Context(), id, actor)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAppointmentResponse(appt))
}

func (h *handlers) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	appt, err := h.appointments.Cancel(r.Context(), id, actor)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAppointmentResponse(appt))
}

func (h *handlers) completeAppointment(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	appt, err := h.appointments.Complete(r.Context(), id, actor)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAppointmentResponse(appt))
}

func (h *handlers) adminStats(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	stats, err := h.appointments.Stats(r.Context(), actor)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
