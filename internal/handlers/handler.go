package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prudhvinik1/wattsync/internal/models"
	"github.com/prudhvinik1/wattsync/internal/repositories"
	"github.com/prudhvinik1/wattsync/internal/services"
	"github.com/rs/zerolog"
)

const maxFirmwareUpload = 16 << 20 // ESP32 partitions top out well under this

// Handler exposes the coordination API: reset voting for dashboard
// users, and the reset/OTA poll surface for the meters themselves.
type Handler struct {
	reset    *services.ResetVoteService
	ota      *services.OTAService
	tokens   *services.TokenService
	devices  repositories.DeviceRepository
	presence repositories.PresenceRepository
	log      zerolog.Logger
}

func New(
	reset *services.ResetVoteService,
	ota *services.OTAService,
	tokens *services.TokenService,
	devices repositories.DeviceRepository,
	presence repositories.PresenceRepository,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		reset:    reset,
		ota:      ota,
		tokens:   tokens,
		devices:  devices,
		presence: presence,
		log:      log,
	}
}

func (h *Handler) Routes() chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(h.requestLogger)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	router.Route("/api/v1", func(r chi.Router) {
		// Dashboard endpoints, bearer-token auth.
		r.Group(func(r chi.Router) {
			r.Use(h.authenticated)
			r.Post("/energy-reset/vote", h.handleVote)
			r.Post("/energy-reset/status", h.handleResetStatus)
			r.Post("/firmware/{deviceID}", h.handleFirmwareUpload)
			r.Get("/devices/{deviceID}", h.handleGetDevice)
		})

		// Meter-facing endpoints. Meters authenticate by device ID
		// only; they never carry user tokens.
		r.Get("/energy-reset/check-reset", h.handleCheckReset)
		r.Post("/ota/check", h.handleOTACheck)
		r.Post("/ota/status", h.handleOTAStatus)
	})

	return router
}

type deviceRequest struct {
	DeviceID string `json:"device_id"`
}

func (h *Handler) handleVote(w http.ResponseWriter, r *http.Request) {
	var req deviceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, "device_id is required")
		return
	}

	userID, ok := userIDFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	result, err := h.reset.CastVote(r.Context(), req.DeviceID, userID)
	if errors.Is(err, services.ErrAlreadyVoted) {
		writeError(w, http.StatusConflict, "You have already voted for this reset")
		return
	}
	if errors.Is(err, services.ErrDeviceNotFound) {
		writeError(w, http.StatusNotFound, "Device not found or user not authorized")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("device_id", req.DeviceID).Msg("vote failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":         true,
		"votes_received":  result.VotesReceived,
		"required_votes":  result.RequiredVotes,
		"reset_triggered": result.ResetTriggered,
	})
}

func (h *Handler) handleResetStatus(w http.ResponseWriter, r *http.Request) {
	var req deviceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, "device_id is required")
		return
	}

	status, err := h.reset.Status(r.Context(), req.DeviceID)
	if errors.Is(err, services.ErrDeviceNotFound) {
		writeError(w, http.StatusNotFound, "Device not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("device_id", req.DeviceID).Msg("reset status lookup failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) handleCheckReset(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		writeError(w, http.StatusBadRequest, "device_id is required")
		return
	}

	command, err := h.reset.CheckAndConsumeResetCommand(r.Context(), deviceID)
	if err != nil {
		h.log.Error().Err(err).Str("device_id", deviceID).Msg("check-reset failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, command)
}

type otaCheckRequest struct {
	DeviceID       string `json:"device_id"`
	CurrentVersion string `json:"current_firmware_version"`
}

func (h *Handler) handleOTACheck(w http.ResponseWriter, r *http.Request) {
	var req otaCheckRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, "device_id is required")
		return
	}

	info, err := h.ota.CheckForUpdate(r.Context(), req.DeviceID, req.CurrentVersion)
	if err != nil {
		h.log.Error().Err(err).Str("device_id", req.DeviceID).Msg("ota check failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, info)
}

func (h *Handler) handleOTAStatus(w http.ResponseWriter, r *http.Request) {
	var report services.StatusReport
	if err := decodeBody(r, &report); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if report.DeviceID == "" {
		writeError(w, http.StatusBadRequest, "device_id is required")
		return
	}
	if report.Status == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}

	if _, err := h.ota.ReportStatus(r.Context(), &report); err != nil {
		if errors.Is(err, services.ErrInvalidStatus) {
			writeError(w, http.StatusBadRequest, "Invalid status value")
			return
		}
		h.log.Error().Err(err).Str("device_id", report.DeviceID).Msg("ota status report failed")
		writeError(w, http.StatusInternalServerError, "Failed to store OTA status")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "OTA status recorded successfully",
	})
}

func (h *Handler) handleFirmwareUpload(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	if _, err := h.devices.GetByID(r.Context(), deviceID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Device not found")
			return
		}
		h.log.Error().Err(err).Str("device_id", deviceID).Msg("device lookup failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if err := r.ParseMultipartForm(maxFirmwareUpload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("firmware")
	if err != nil {
		writeError(w, http.StatusBadRequest, "firmware file is required")
		return
	}
	defer file.Close()

	artifact, url, err := h.ota.UploadFirmware(r.Context(), deviceID, header.Filename, file, header.Size)
	if err != nil {
		h.log.Error().Err(err).Str("device_id", deviceID).Msg("firmware upload failed")
		writeError(w, http.StatusInternalServerError, "Failed to store firmware")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":          true,
		"firmware_version": artifact.Version,
		"firmware_url":     url,
		"filename":         artifact.Filename,
		"file_size":        artifact.Size,
	})
}

func (h *Handler) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	device, err := h.devices.GetByID(r.Context(), deviceID)
	if errors.Is(err, repositories.ErrNotFound) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"registered": false})
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("device_id", deviceID).Msg("device lookup failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	online, _, err := h.presence.Online(r.Context(), deviceID)
	if err != nil {
		h.log.Warn().Err(err).Str("device_id", deviceID).Msg("presence lookup failed")
	}

	writeJSON(w, http.StatusOK, struct {
		Registered bool           `json:"registered"`
		Online     bool           `json:"online"`
		Device     *models.Device `json:"device"`
	}{Registered: true, Online: online, Device: device})
}

func decodeBody(r *http.Request, v interface{}) error {
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
}
