package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/unmappedos-sys/unmappedos/internal/intel"
	"github.com/unmappedos-sys/unmappedos/internal/model"
	"github.com/unmappedos-sys/unmappedos/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
}

// zoneResponse flattens the centroid for API consumers; go-geom points
// do not marshal to anything a map client wants.
type zoneResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Lat       *float64  `json:"lat,omitempty"`
	Lng       *float64  `json:"lng,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type zoneSummaryResponse struct {
	Zone       zoneResponse               `json:"zone"`
	Confidence *model.ZoneConfidenceState `json:"confidence,omitempty"`
}

func toZoneResponse(z model.Zone) zoneResponse {
	resp := zoneResponse{ID: z.ID, Name: z.Name, CreatedAt: z.CreatedAt}
	if z.Centroid != nil {
		lng, lat := z.Centroid.X(), z.Centroid.Y()
		resp.Lat, resp.Lng = &lat, &lng
	}
	return resp
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSubmitIntel(w http.ResponseWriter, r *http.Request) {
	var req intel.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "request body is not valid JSON")
		return
	}

	res, err := s.intel.Submit(r.Context(), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}

func (s *Server) handleGetConfidence(w http.ResponseWriter, r *http.Request) {
	state, err := s.intel.GetConfidence(r.Context(), chi.URLParam(r, "zoneID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

func (s *Server) handleScoreZone(w http.ResponseWriter, r *http.Request) {
	state, factors, err := s.intel.ScoreZone(r.Context(), chi.URLParam(r, "zoneID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"state":   state,
		"factors": factors,
	})
}

type createZoneRequest struct {
	Name string   `json:"name"`
	Lat  *float64 `json:"lat,omitempty"`
	Lng  *float64 `json:"lng,omitempty"`
}

func (s *Server) handleCreateZone(w http.ResponseWriter, r *http.Request) {
	var req createZoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "request body is not valid JSON")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	if (req.Lat == nil) != (req.Lng == nil) {
		respondError(w, http.StatusBadRequest, "lat and lng must be given together")
		return
	}

	zone := model.Zone{
		ID:        uuid.NewString(),
		Name:      req.Name,
		CreatedAt: time.Now().UTC(),
	}
	if req.Lat != nil {
		zone.Centroid = geom.NewPointFlat(geom.XY, []float64{*req.Lng, *req.Lat})
	}

	if err := s.store.CreateZone(r.Context(), zone); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toZoneResponse(zone))
}

func (s *Server) handleListZones(w http.ResponseWriter, r *http.Request) {
	zones, err := s.store.ListZones(r.Context(), 500)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	ids := make([]string, len(zones))
	for i, z := range zones {
		ids[i] = z.ID
	}
	states, err := s.store.ListStates(r.Context(), ids)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	out := make([]zoneSummaryResponse, len(zones))
	for i, z := range zones {
		out[i] = zoneSummaryResponse{
			Zone:       toZoneResponse(z),
			Confidence: states[z.ID],
		}
	}
	respondJSON(w, http.StatusOK, out)
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Error("server: encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Error: msg})
}

// respondServiceError maps domain errors onto HTTP statuses. Internal
// errors log the full eris chain but leak only a generic message.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case eris.Is(err, intel.ErrInvalidSubmission):
		respondError(w, http.StatusBadRequest, err.Error())
	case eris.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "zone not found")
	case eris.Is(err, store.ErrVersionConflict):
		respondError(w, http.StatusConflict, "zone is being updated concurrently, retry")
	default:
		zap.L().Error("request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
