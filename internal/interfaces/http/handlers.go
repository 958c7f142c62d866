package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/application/workflow"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/gin-gonic/gin"
)

// Version is reported by the health check
const Version = "1.0.0"

// Handlers contains all HTTP request handlers
type Handlers struct {
	reports       service.ReportService
	engine        workflow.Engine
	notifications service.NotificationService
	health        HealthProbe
	logger        Logger
}

// NewHandlers creates a new Handlers instance. health may be nil.
func NewHandlers(
	reports service.ReportService,
	engine workflow.Engine,
	notifications service.NotificationService,
	health HealthProbe,
	logger Logger,
) *Handlers {
	return &Handlers{
		reports:       reports,
		engine:        engine,
		notifications: notifications,
		health:        health,
		logger:        logger,
	}
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   Version,
	}
	code := http.StatusOK
	if h.health != nil {
		ok, components := h.health(c.Request.Context())
		resp.Components = components
		if !ok {
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	c.JSON(code, Response{Success: code == http.StatusOK, Data: resp})
}

// UpsertEmployee handles PUT /employees/:id
func (h *Handlers) UpsertEmployee(c *gin.Context) {
	var req EmployeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	emp := &entity.Employee{
		ID:           c.Param("id"),
		Name:         req.Name,
		Email:        req.Email,
		Role:         req.Role,
		SupervisorID: req.SupervisorID,
		IsAdmin:      req.IsAdmin,
		LarkOpenID:   req.LarkOpenID,
		Locale:       req.Locale,
	}
	if err := h.reports.UpsertEmployee(c.Request.Context(), emp); err != nil {
		h.respondError(c, "upsert_employee", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: emp})
}

// ListEmployeeReports handles GET /employees/:id/reports
func (h *Handlers) ListEmployeeReports(c *gin.Context) {
	views, err := h.reports.ListReports(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "list_reports", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: views})
}

// CreateReport handles POST /reports
func (h *Handlers) CreateReport(c *gin.Context) {
	var req CreateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	report, err := h.reports.CreateReport(c.Request.Context(), req.EmployeeID, req.Month, req.Year)
	if err != nil {
		h.respondError(c, "create_report", err)
		return
	}
	h.respondReport(c, http.StatusCreated, report.ID)
}

// GetReport handles GET /reports/:id
func (h *Handlers) GetReport(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	h.respondReport(c, http.StatusOK, id)
}

// SubmitReport handles POST /reports/:id/submit
func (h *Handlers) SubmitReport(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var req ActorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	if _, err := h.engine.Submit(c.Request.Context(), workflow.SubmitCommand{ReportID: id, ActorID: req.ActorID}); err != nil {
		h.respondError(c, "submit", err)
		return
	}
	h.respondReport(c, http.StatusOK, id)
}

// Decide handles POST /reports/:id/decisions
func (h *Handlers) Decide(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	cmd := workflow.DecisionCommand{
		ReportID:  id,
		StepIndex: *req.StepIndex,
		ActorID:   req.ActorID,
		Comments:  req.Comments,
		Revision:  req.Revision,
	}

	var err error
	switch req.Action {
	case ActionApprove:
		_, err = h.engine.Approve(c.Request.Context(), cmd)
	case ActionReject:
		_, err = h.engine.Reject(c.Request.Context(), cmd)
	case ActionRequestRevision:
		cmd.Revision = true
		_, err = h.engine.Reject(c.Request.Context(), cmd)
	default:
		badRequest(c, "action must be approve, reject or request_revision")
		return
	}
	if err != nil {
		h.respondError(c, "decision", err)
		return
	}
	h.respondReport(c, http.StatusOK, id)
}

// ResubmitReport handles POST /reports/:id/resubmit
func (h *Handlers) ResubmitReport(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var req ActorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	res, err := h.engine.Resubmit(c.Request.Context(), workflow.ResubmitCommand{ReportID: id, ActorID: req.ActorID})
	if err != nil {
		h.respondError(c, "resubmit", err)
		return
	}
	summary, err := h.reports.GetInstanceSummary(c.Request.Context(), res.Instance.ID)
	if err != nil {
		h.respondError(c, "resubmit", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: summary})
}

// AddComment handles POST /reports/:id/comments
func (h *Handlers) AddComment(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var req CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	entry, err := h.engine.AddComment(c.Request.Context(), workflow.CommentCommand{ReportID: id, ActorID: req.ActorID, Message: req.Message})
	if err != nil {
		h.respondError(c, "comment", err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: entry})
}

// DelegateStep handles POST /workflow/steps/:id/delegate
func (h *Handlers) DelegateStep(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var req DelegateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	res, err := h.engine.Delegate(c.Request.Context(), workflow.DelegateCommand{
		StepID:       id,
		ActorID:      req.ActorID,
		ToApproverID: req.ToApproverID,
		ExpiresAt:    req.ExpiresAt,
	})
	if err != nil {
		h.respondError(c, "delegate", err)
		return
	}
	h.respondReport(c, http.StatusOK, res.Report.ID)
}

// ListPendingApprovals handles GET /approvals/pending?approverId=
func (h *Handlers) ListPendingApprovals(c *gin.Context) {
	pending, err := h.reports.ListPendingApprovals(c.Request.Context(), c.Query("approverId"))
	if err != nil {
		h.respondError(c, "pending_approvals", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: pending})
}

// ListNotifications handles GET /notifications/:id?limit=N where id is the employee
func (h *Handlers) ListNotifications(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	list, err := h.notifications.List(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		h.respondError(c, "list_notifications", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: list})
}

// CountUnread handles GET /notifications/:id/count where id is the employee
func (h *Handlers) CountUnread(c *gin.Context) {
	count, err := h.notifications.UnreadCount(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "count_notifications", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: CountResponse{Count: count}})
}

// MarkRead handles PUT /notifications/:id/read where id is the notification
func (h *Handlers) MarkRead(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	n, err := h.notifications.MarkRead(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "mark_read", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: n})
}

// ScanReminders handles POST /reminders/scan
func (h *Handlers) ScanReminders(c *gin.Context) {
	res, err := h.engine.ScanReminders(c.Request.Context())
	if err != nil {
		h.respondError(c, "scan_reminders", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: res})
}

func (h *Handlers) respondReport(c *gin.Context, status int, reportID int64) {
	view, err := h.reports.GetReport(c.Request.Context(), reportID)
	if err != nil {
		h.respondError(c, "get_report", err)
		return
	}
	c.JSON(status, Response{Success: true, Data: view})
}

func int64Param(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name+" parameter")
		return 0, false
	}
	return id, true
}
