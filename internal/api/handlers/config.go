package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/your-org/attendance/internal/attendance"
	"github.com/your-org/attendance/internal/storage"
	"github.com/your-org/attendance/pkg/dto"
)

type ConfigHandler struct {
	db      storage.Store
	control Controller
}

func NewConfigHandler(db storage.Store, control Controller) *ConfigHandler {
	return &ConfigHandler{db: db, control: control}
}

// Get returns the stored policy. Missing keys show their defaults.
func (h *ConfigHandler) Get(c *gin.Context) {
	values, err := h.db.ConfigValues(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	p, err := attendance.ParsePolicy(values)
	if err != nil {
		c.JSON(http.StatusOK, dto.PolicyConfigResponse{
			PolicyConfig: rawPolicy(values),
			Message:      err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, dto.PolicyConfigResponse{PolicyConfig: policyToDTO(p)})
}

// Update validates and stores a new policy, then asks the ingestor to load
// it. The stored policy is kept even if the ingestor cannot be reached; it is
// picked up on the next reload or restart.
func (h *ConfigHandler) Update(c *gin.Context) {
	var req dto.PolicyConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := attendance.ParsePolicy(policyValues(req))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, attendance.ErrInvalidPolicy) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	if err := h.db.SetConfigValues(c.Request.Context(), p.Values()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := dto.PolicyConfigResponse{PolicyConfig: policyToDTO(p)}
	reply, err := h.control.Send(c.Request.Context(), dto.ReaderCommand{Action: dto.ActionReloadPolicy})
	switch {
	case err != nil:
		slog.Warn("policy stored but ingestor not reloaded", "error", err)
		resp.Message = "saved; ingestor unavailable, policy applies on its next reload"
	case !reply.Success:
		resp.Message = reply.Message
	default:
		resp.Reloaded = true
		resp.Message = reply.Message
	}
	c.JSON(http.StatusOK, resp)
}

func policyValues(req dto.PolicyConfig) map[string]string {
	values := map[string]string{
		"checkin_start":  req.CheckinStart,
		"checkin_end":    req.CheckinEnd,
		"checkout_start": req.CheckoutStart,
		"checkout_end":   req.CheckoutEnd,
		"reader_id":      req.ReaderID,
	}
	if req.ScanCooldown != nil {
		values["scan_cooldown"] = strconv.Itoa(*req.ScanCooldown)
	}
	return values
}

func policyToDTO(p attendance.Policy) dto.PolicyConfig {
	v := p.Values()
	cooldown := int(p.Cooldown.Seconds())
	return dto.PolicyConfig{
		CheckinStart:  v["checkin_start"],
		CheckinEnd:    v["checkin_end"],
		CheckoutStart: v["checkout_start"],
		CheckoutEnd:   v["checkout_end"],
		ScanCooldown:  &cooldown,
		ReaderID:      v["reader_id"],
	}
}

func rawPolicy(values map[string]string) dto.PolicyConfig {
	out := dto.PolicyConfig{
		CheckinStart:  values["checkin_start"],
		CheckinEnd:    values["checkin_end"],
		CheckoutStart: values["checkout_start"],
		CheckoutEnd:   values["checkout_end"],
		ReaderID:      values["reader_id"],
	}
	if n, err := strconv.Atoi(values["scan_cooldown"]); err == nil {
		out.ScanCooldown = &n
	}
	return out
}
