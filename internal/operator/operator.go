// Package operator exposes the JWT-protected maintenance surface used by
// fleet operators and support tooling: forcing an offline reconstruction
// pass for a VIN, pulling a fresh snapshot from the upstream provider, and
// disconnecting a vehicle connection. None of these run on the telemetry
// hot path — they're the manual-override endpoints spec.md §7 describes.
package operator

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/drivelog/tripcore/internal/collaborators"
	"github.com/drivelog/tripcore/internal/httpmw"
	"github.com/drivelog/tripcore/internal/logging"
	"github.com/drivelog/tripcore/internal/reconstruct"
	apperrors "github.com/drivelog/tripcore/pkg/errors"
	"github.com/drivelog/tripcore/pkg/models"
)

// ConnectionGetter loads a connection by its primary key.
type ConnectionGetter interface {
	GetByID(ctx context.Context, connectionID string) (*models.VehicleConnection, error)
}

// ConnectionDeactivator marks a connection inactive.
type ConnectionDeactivator interface {
	Deactivate(ctx context.Context, connectionID string) error
}

// Reconstructor is the subset of internal/reconstruct.Reconstructor the
// operator handlers need.
type Reconstructor interface {
	Run(ctx context.Context, userID, vin string, sinceHours int) (*reconstruct.Result, error)
}

// Handler serves the operator endpoints.
type Handler struct {
	Connections   ConnectionGetter
	Deactivator   ConnectionDeactivator
	Upstream      collaborators.UpstreamProvider
	Vehicles      collaborators.VehicleStore
	Reconstructor Reconstructor
	Logger        *logging.Logger
}

// reconstructRequest is the POST /operator/reconstruct body.
type reconstructRequest struct {
	UserID string `json:"userId" binding:"required"`
	VIN    string `json:"vin" binding:"required"`
	Hours  int    `json:"hours"`
}

// Reconstruct runs the offline reconstructor for one (user, VIN) pair over
// the requested lookback window, on demand.
func (h *Handler) Reconstruct(c *gin.Context) {
	var req reconstructRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpmw.WriteError(c, apperrors.NewBadRequestError(err.Error()))
		return
	}

	result, err := h.Reconstructor.Run(c.Request.Context(), req.UserID, req.VIN, req.Hours)
	if err != nil {
		if errors.Is(err, reconstruct.ErrNoEvents) {
			httpmw.WriteError(c, apperrors.NewNotFoundError("telemetry events in window"))
			return
		}
		h.Logger.Error("operator: reconstruct failed", "vin", req.VIN, "error", err)
		httpmw.WriteError(c, apperrors.NewInternalError("reconstruction failed"))
		return
	}

	c.JSON(http.StatusOK, result)
}

// Refresh pulls a fresh snapshot from the upstream provider for the
// connection's VIN and writes its odometer/battery reading onto the owning
// vehicle, independent of the telemetry ingestion path. Useful right after
// a connection is (re-)established, before any webhook traffic has arrived.
func (h *Handler) Refresh(c *gin.Context) {
	connectionID := c.Param("id")

	conn, err := h.Connections.GetByID(c.Request.Context(), connectionID)
	if err != nil {
		h.Logger.Error("operator: refresh lookup failed", "connection_id", connectionID, "error", err)
		httpmw.WriteError(c, apperrors.NewInternalError("connection lookup failed"))
		return
	}
	if conn == nil {
		httpmw.WriteError(c, apperrors.NewNotFoundError("connection"))
		return
	}

	snapshot, err := h.Upstream.FetchVehicleData(c.Request.Context(), conn.VIN)
	if err != nil {
		h.Logger.Error("operator: upstream fetch failed", "vin", conn.VIN, "error", err)
		httpmw.WriteError(c, apperrors.NewInternalError("upstream fetch failed"))
		return
	}

	vehicle, err := h.Vehicles.Get(c.Request.Context(), conn.VehicleID)
	if err != nil {
		h.Logger.Error("operator: vehicle lookup failed", "vehicle_id", conn.VehicleID, "error", err)
		httpmw.WriteError(c, apperrors.NewNotFoundError("vehicle"))
		return
	}

	odometerKm := vehicle.CurrentOdometerKm
	if snapshot.OdometerKm != nil {
		odometerKm = *snapshot.OdometerKm
	}
	batteryLevel := vehicle.BatteryLevel
	if snapshot.ChargeLevel != nil {
		batteryLevel = *snapshot.ChargeLevel
	}

	if err := h.Vehicles.UpdateOdometerAndBattery(c.Request.Context(), conn.VehicleID, odometerKm, batteryLevel); err != nil {
		h.Logger.Error("operator: odometer update failed", "vehicle_id", conn.VehicleID, "error", err)
		httpmw.WriteError(c, apperrors.NewInternalError("odometer update failed"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"vehicleId":    conn.VehicleID,
		"driveState":   snapshot.DriveState,
		"vehicleState": snapshot.VehicleState,
		"odometerKm":   odometerKm,
		"batteryLevel": batteryLevel,
	})
}

// Disconnect marks a vehicle connection inactive, halting dispatcher
// processing for its VIN. Does not touch any trip currently in progress;
// the reaper's stale-trip sweep lists only active connections, so such a
// trip stays open.
func (h *Handler) Disconnect(c *gin.Context) {
	connectionID := c.Param("id")

	conn, err := h.Connections.GetByID(c.Request.Context(), connectionID)
	if err != nil {
		h.Logger.Error("operator: disconnect lookup failed", "connection_id", connectionID, "error", err)
		httpmw.WriteError(c, apperrors.NewInternalError("connection lookup failed"))
		return
	}
	if conn == nil {
		httpmw.WriteError(c, apperrors.NewNotFoundError("connection"))
		return
	}

	if err := h.Deactivator.Deactivate(c.Request.Context(), connectionID); err != nil {
		h.Logger.Error("operator: deactivate failed", "connection_id", connectionID, "error", err)
		httpmw.WriteError(c, apperrors.NewInternalError("deactivate failed"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"connectionId": connectionID, "active": false})
}

// Routes registers the operator endpoints under group, which the caller is
// expected to have already wrapped with httpmw.OperatorAuth.
func (h *Handler) Routes(group gin.IRoutes) {
	group.POST("/operator/reconstruct", h.Reconstruct)
	group.POST("/operator/connections/:id/refresh", h.Refresh)
	group.POST("/operator/connections/:id/disconnect", h.Disconnect)
}
