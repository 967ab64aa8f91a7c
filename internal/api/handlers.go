package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"facility-alerting/internal/jobs"
	"facility-alerting/internal/logging"
	"facility-alerting/internal/models"
	"facility-alerting/internal/realtime"
)

type AlertService interface {
	CreateAlert(ctx context.Context, data models.Alert) (models.Alert, error)
	GetAlert(ctx context.Context, id int64) (models.Alert, error)
	UpdateAlert(ctx context.Context, id int64, update models.AlertUpdate) (models.Alert, error)
	GetActiveAlerts(ctx context.Context, filter models.AlertFilter, page models.Pagination) ([]models.Alert, int, error)
	ProcessEscalations(ctx context.Context) (int, error)
}

type JobQueue interface {
	CreateJob(ctx context.Context, jobType string, buildingID, equipmentID *int64, params models.JobParams) (int64, error)
	GetJobStatus(ctx context.Context, id int64) (*models.BackgroundJob, error)
	CancelJob(ctx context.Context, id int64) error
	Stats(ctx context.Context) (models.JobStats, error)
	HealthCheck(ctx context.Context) jobs.Health
}

type Ingester interface {
	Ingest(ctx context.Context, r models.Reading) ([]models.Alert, error)
}

// Subscriptions registers websocket clients on a channel.
type Subscriptions interface {
	AddConnection(channel string, conn *websocket.Conn) bool
	RemoveConnection(channel string, conn *websocket.Conn)
}

type Deps struct {
	Alerts        AlertService
	Jobs          JobQueue
	Ingester      Ingester
	Subscriptions Subscriptions
	Logger        *logging.Logger
}

type Handler struct {
	alerts   AlertService
	jobs     JobQueue
	ingester Ingester
	subs     Subscriptions
	logger   *logging.Logger
	upgrader websocket.Upgrader
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		alerts:   d.Alerts,
		jobs:     d.Jobs,
		ingester: d.Ingester,
		subs:     d.Subscriptions,
		logger:   d.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) CreateAlert(c *gin.Context) {
	var data models.Alert
	if err := c.ShouldBindJSON(&data); err != nil {
		h.logger.Errorf("Invalid request body for alert: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	alert, err := h.alerts.CreateAlert(c.Request.Context(), data)
	if err != nil {
		h.respondError(c, "create alert", err)
		return
	}

	h.logger.Infof("Created alert: %d", alert.ID)
	c.JSON(http.StatusCreated, alert)
}

func (h *Handler) GetAlert(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	alert, err := h.alerts.GetAlert(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "get alert", err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

func (h *Handler) UpdateAlert(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var update models.AlertUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		h.logger.Errorf("Invalid request body for alert %d: %v", id, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	alert, err := h.alerts.UpdateAlert(c.Request.Context(), id, update)
	if err != nil {
		h.respondError(c, "update alert", err)
		return
	}

	h.logger.Infof("Updated alert %d: status=%s", id, alert.Status)
	c.JSON(http.StatusOK, alert)
}

func (h *Handler) ListActiveAlerts(c *gin.Context) {
	var filter models.AlertFilter
	var page models.Pagination
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid filter"})
		return
	}
	if err := c.ShouldBindQuery(&page); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid pagination"})
		return
	}
	page = page.Normalize()

	alerts, total, err := h.alerts.GetActiveAlerts(c.Request.Context(), filter, page)
	if err != nil {
		h.respondError(c, "list alerts", err)
		return
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}

	c.JSON(http.StatusOK, gin.H{
		"alerts": alerts,
		"total":  total,
		"limit":  page.Limit,
		"offset": page.Offset,
	})
}

func (h *Handler) ProcessEscalations(c *gin.Context) {
	n, err := h.alerts.ProcessEscalations(c.Request.Context())
	if err != nil {
		h.respondError(c, "process escalations", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"escalated": n})
}

type createJobRequest struct {
	JobType     string           `json:"job_type" binding:"required"`
	BuildingID  *int64           `json:"building_id"`
	EquipmentID *int64           `json:"equipment_id"`
	Parameters  models.JobParams `json:"parameters"`
}

func (h *Handler) CreateJob(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorf("Invalid request body for job: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	id, err := h.jobs.CreateJob(c.Request.Context(), req.JobType, req.BuildingID, req.EquipmentID, req.Parameters)
	if err != nil {
		h.respondError(c, "create job", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": id, "status": models.JobStatusPending})
}

func (h *Handler) GetJob(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	job, err := h.jobs.GetJobStatus(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "get job", err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *Handler) CancelJob(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.jobs.CancelJob(c.Request.Context(), id); err != nil {
		h.respondError(c, "cancel job", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_id": id, "status": models.JobStatusCancelled})
}

func (h *Handler) JobStats(c *gin.Context) {
	stats, err := h.jobs.Stats(c.Request.Context())
	if err != nil {
		h.respondError(c, "get job statistics", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) JobHealth(c *gin.Context) {
	health := h.jobs.HealthCheck(c.Request.Context())
	status := http.StatusOK
	if !health.Healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, health)
}

func (h *Handler) IngestReading(c *gin.Context) {
	var r models.Reading
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if r.Kind == "" {
		r.Kind = models.ReadingKindEnergy
	}

	alerts, err := h.ingester.Ingest(c.Request.Context(), r)
	if err != nil {
		h.respondError(c, "ingest reading", err)
		return
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
}

// Subscribe upgrades to a websocket on the requested channel, "system" when
// none is given. The read loop only drains control frames.
func (h *Handler) Subscribe(c *gin.Context) {
	channel := c.DefaultQuery("channel", realtime.SystemChannel)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade error: %v", err)
		return
	}
	if !h.subs.AddConnection(channel, conn) {
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too many subscribers")
		_ = conn.WriteMessage(websocket.CloseMessage, msg)
		_ = conn.Close()
		return
	}
	defer func() {
		h.subs.RemoveConnection(channel, conn)
		_ = conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
