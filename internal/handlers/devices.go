package handlers

import (
	"errors"
	"net/http"
	"time"

	"pvs_monitor/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	statusOK = "ok"

	errLoadDevices    = "failed to load devices"
	errNotInitialized = "gateway not initialized yet"
	errPollFailed     = "poll failed; gateway unavailable for this cycle"
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// DevicesResponse is the device listing payload.
type DevicesResponse struct {
	Available bool                 `json:"available"`
	UpdatedAt time.Time            `json:"updated_at"`
	Count     int                  `json:"count"`
	Devices   []service.DeviceView `json:"devices"`
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      List devices
// @Description  Latest known devices. available=false means the last poll could not reach the gateway and values are stale.
// @Tags         devices
// @Produce      json
// @Param        type  query  string  false  "Device type"  Enums(PVS,POWER_METER,INVERTER,HUB_PLUS,BMS,ESS,VIRTUAL_METER)
// @Success      200  {object}  DevicesResponse
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/devices [get]
// @Security     BearerAuth
func (h *Handler) getDevices(c *gin.Context) {
	devices, err := h.services.Monitoring.Devices(c.Request.Context(), c.Query("type"))
	if err != nil {
		if errors.Is(err, service.ErrUnknownDeviceType) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, errLoadDevices, "devices_list_failed", err)
		return
	}
	snap := h.services.Monitoring.Snapshot()
	c.JSON(http.StatusOK, DevicesResponse{
		Available: snap.Available,
		UpdatedAt: snap.UpdatedAt,
		Count:     len(devices),
		Devices:   devices,
	})
}

// @Summary      Get device
// @Tags         devices
// @Produce      json
// @Param        serial  path  string  true  "Device serial"
// @Success      200  {object}  service.DeviceView
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/devices/{serial} [get]
// @Security     BearerAuth
func (h *Handler) getDevice(c *gin.Context) {
	serial := c.Param("serial")
	d, err := h.services.Monitoring.Device(c.Request.Context(), serial)
	if err != nil {
		if errors.Is(err, service.ErrDeviceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, errLoadDevices, "device_get_failed", err, "serial", serial)
		return
	}
	c.JSON(http.StatusOK, d)
}

// @Summary      Gateway capability
// @Description  Firmware build, selected protocol and whether detection was degraded.
// @Tags         devices
// @Produce      json
// @Success      200  {object}  models.Capability
// @Failure      401  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/v1/capability [get]
// @Security     BearerAuth
func (h *Handler) getCapability(c *gin.Context) {
	capability, err := h.services.Monitoring.Capability()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": errNotInitialized})
		return
	}
	c.JSON(http.StatusOK, capability)
}

// @Summary      Trigger poll
// @Description  Runs a poll now. Joins a cycle already in flight instead of starting another.
// @Tags         poll
// @Produce      json
// @Success      200  {object}  DevicesResponse
// @Failure      401  {object}  map[string]string
// @Failure      502  {object}  map[string]string
// @Router       /api/v1/poll [post]
// @Security     BearerAuth
func (h *Handler) triggerPoll(c *gin.Context) {
	snap, err := h.services.Polling.Trigger(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, http.StatusBadGateway, errPollFailed, "poll_trigger_failed", err, "operator_id", operatorID(c))
		return
	}
	if h.log != nil {
		h.log.Infow("poll_triggered", "operator_id", operatorID(c), "available", snap.Available)
	}
	devices, err := h.services.Monitoring.Devices(c.Request.Context(), "")
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errLoadDevices, "devices_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, DevicesResponse{
		Available: snap.Available,
		UpdatedAt: snap.UpdatedAt,
		Count:     len(devices),
		Devices:   devices,
	})
}

// @Summary      Poll scheduler status
// @Tags         poll
// @Produce      json
// @Success      200  {object}  poller.Status
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/poll/status [get]
// @Security     BearerAuth
func (h *Handler) pollStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Polling.Status())
}
