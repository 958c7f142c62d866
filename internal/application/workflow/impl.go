package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/domain/delegation"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/garyjia/expense-approval/pkg/utils"
)

// Config holds routing and retry settings for the engine
type Config struct {
	Stages         []entity.ReviewRole
	StepDue        time.Duration
	ConflictRetry  int
	ReminderWindow time.Duration
	ReminderBatch  int
}

// DefaultConfig returns the two-stage supervisor then finance routing
func DefaultConfig() Config {
	return Config{
		Stages:         []entity.ReviewRole{entity.RoleSupervisor, entity.RoleFinance},
		StepDue:        72 * time.Hour,
		ConflictRetry:  1,
		ReminderWindow: 24 * time.Hour,
		ReminderBatch:  200,
	}
}

// engineImpl is the concrete implementation of WorkflowEngine and ReminderScheduler
type engineImpl struct {
	reportRepo   port.ReportRepository
	workflowRepo port.WorkflowRepository
	employeeRepo port.EmployeeRepository
	outbox       port.OutboxRepository
	history      service.HistoryRecorder
	approvers    service.ApproverResolver
	txManager    port.TransactionManager
	relay        *Relay

	cfg     Config
	metrics port.Metrics
	now     service.Clock
	logger  service.Logger
	locks   *keyedMutex
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithClock overrides the time source
func WithClock(now service.Clock) EngineOption {
	return func(e *engineImpl) { e.now = now }
}

// WithMetrics records transitions and conflicts
func WithMetrics(m port.Metrics) EngineOption {
	return func(e *engineImpl) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithConfig replaces the default routing and retry settings
func WithConfig(cfg Config) EngineOption {
	return func(e *engineImpl) { e.cfg = cfg }
}

// Engine is the workflow engine plus its reminder scan
type Engine interface {
	WorkflowEngine
	ReminderScheduler
}

// NewEngine creates a new workflow engine
func NewEngine(
	reportRepo port.ReportRepository,
	workflowRepo port.WorkflowRepository,
	employeeRepo port.EmployeeRepository,
	outbox port.OutboxRepository,
	history service.HistoryRecorder,
	approvers service.ApproverResolver,
	txManager port.TransactionManager,
	relay *Relay,
	logger service.Logger,
	opts ...EngineOption,
) Engine {
	e := &engineImpl{
		reportRepo:   reportRepo,
		workflowRepo: workflowRepo,
		employeeRepo: employeeRepo,
		outbox:       outbox,
		history:      history,
		approvers:    approvers,
		txManager:    txManager,
		relay:        relay,
		cfg:          DefaultConfig(),
		metrics:      port.NopMetrics{},
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger,
		locks:        newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// txOp runs inside a transaction and returns the events to publish on commit
type txOp func(ctx context.Context, now time.Time) ([]*event.Event, error)

// transact serializes on reportID, runs op in a transaction together with
// its outbox writes, retries a lost version race up to ConflictRetry times,
// and publishes after commit.
func (e *engineImpl) transact(ctx context.Context, reportID int64, action string, op txOp) error {
	unlock := e.locks.Lock(reportID)
	defer unlock()

	for attempt := 0; ; attempt++ {
		var events []*event.Event
		err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			evts, err := op(txCtx, e.now())
			if err != nil {
				return err
			}
			for _, evt := range evts {
				if err := e.outbox.Append(txCtx, evt); err != nil {
					return err
				}
			}
			events = evts
			return nil
		})

		if errors.Is(err, entity.ErrConflict) {
			e.metrics.Conflict()
			if attempt < e.cfg.ConflictRetry {
				e.logger.Info("Retrying after version conflict", "report_id", reportID, "action", action, "attempt", attempt+1)
				continue
			}
		}
		if err != nil {
			return err
		}

		if len(events) > 0 {
			e.metrics.Transition(action)
		}
		for _, evt := range events {
			e.relay.Deliver(ctx, evt)
		}
		return nil
	}
}

func (e *engineImpl) loadReport(ctx context.Context, reportID int64) (*entity.Report, error) {
	report, err := e.reportRepo.GetByID(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, fmt.Errorf("%w: report %d", entity.ErrNotFound, reportID)
	}
	return report, nil
}

func (e *engineImpl) loadEmployee(ctx context.Context, id string) (*entity.Employee, error) {
	emp, err := e.employeeRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if emp == nil {
		return nil, fmt.Errorf("%w: employee %s", entity.ErrNotFound, id)
	}
	return emp, nil
}

// loadActiveInstance returns the report's current instance
func (e *engineImpl) loadActiveInstance(ctx context.Context, report *entity.Report) (*entity.WorkflowInstance, error) {
	if report.WorkflowInstanceID == nil {
		return nil, fmt.Errorf("%w: report %d has not been submitted", entity.ErrInvalidTransition, report.ID)
	}
	inst, err := e.workflowRepo.GetInstance(ctx, *report.WorkflowInstanceID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, fmt.Errorf("%w: workflow instance %d", entity.ErrNotFound, *report.WorkflowInstanceID)
	}
	return inst, nil
}

// startInstance creates a workflow instance with its first step pending
func (e *engineImpl) startInstance(ctx context.Context, report *entity.Report, attempt int, roles []entity.ReviewRole, now time.Time) (*entity.WorkflowInstance, error) {
	employee, err := e.loadEmployee(ctx, report.EmployeeID)
	if err != nil {
		return nil, err
	}
	approvers, err := e.approvers.Resolve(ctx, employee, roles)
	if err != nil {
		return nil, err
	}
	inst, err := entity.NewWorkflowInstance(report.ID, attempt, roles, approvers, now)
	if err != nil {
		return nil, err
	}
	if err := inst.Steps[0].Activate(now, e.dueAt(now)); err != nil {
		return nil, err
	}
	if err := e.workflowRepo.CreateInstance(ctx, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

func (e *engineImpl) dueAt(now time.Time) *time.Time {
	if e.cfg.StepDue <= 0 {
		return nil
	}
	due := now.Add(e.cfg.StepDue)
	return &due
}

func (e *engineImpl) reportPayload(report *entity.Report, actorID string) map[string]interface{} {
	return map[string]interface{}{
		event.KeyEmployeeID: report.EmployeeID,
		event.KeyActorID:    actorID,
		event.KeyMonth:      report.Month,
		event.KeyYear:       report.Year,
	}
}

func (e *engineImpl) Submit(ctx context.Context, cmd SubmitCommand) (*Result, error) {
	if cmd.ActorID == "" {
		return nil, fmt.Errorf("%w: actor id is required", entity.ErrValidation)
	}

	var res Result
	err := e.transact(ctx, cmd.ReportID, "submit", func(ctx context.Context, now time.Time) ([]*event.Event, error) {
		report, err := e.loadReport(ctx, cmd.ReportID)
		if err != nil {
			return nil, err
		}
		if report.Status != entity.ReportStatusDraft {
			return nil, fmt.Errorf("%w: report %d is %s, not draft", entity.ErrInvalidTransition, report.ID, report.Status)
		}
		if cmd.ActorID != report.EmployeeID {
			return nil, fmt.Errorf("%w: only the report owner may submit", entity.ErrNotAuthorized)
		}

		inst, err := e.startInstance(ctx, report, 1, e.cfg.Stages, now)
		if err != nil {
			return nil, err
		}
		first := inst.Steps[0]

		status, err := routeReport(ctx, report, domainwf.TriggerSubmit, first.Role)
		if err != nil {
			return nil, err
		}
		report.Status = status
		report.WorkflowInstanceID = &inst.ID
		report.SubmittedAt = &now
		report.UpdatedAt = now
		if err := e.reportRepo.Update(ctx, report); err != nil {
			return nil, err
		}

		if err := e.history.Append(ctx, &entity.HistoryEntry{
			InstanceID: inst.ID,
			ReportID:   report.ID,
			Action:     entity.ActionSubmitted,
			ActorID:    cmd.ActorID,
			ActorRole:  "employee",
			Timestamp:  now,
		}); err != nil {
			return nil, err
		}

		payload := e.reportPayload(report, cmd.ActorID)
		payload[event.KeyStepIndex] = first.Index
		payload[event.KeyRole] = first.Role.String()
		payload[event.KeyNextApproverID] = first.ApproverID

		res = Result{Report: report, Instance: inst, Step: first}
		return []*event.Event{event.NewEvent(event.TypeReportSubmitted, report.ID, inst.ID, payload, now)}, nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Report submitted", "report_id", cmd.ReportID, "instance_id", res.Instance.ID)
	return &res, nil
}

// pendingStep loads the instance and checks that stepIndex is its pending
// step and that actorID is the effective approver
func (e *engineImpl) pendingStep(ctx context.Context, report *entity.Report, stepIndex int, actorID string, now time.Time) (*entity.WorkflowInstance, *entity.Step, error) {
	if !inReview(report) {
		return nil, nil, fmt.Errorf("%w: report %d is %s", entity.ErrInvalidTransition, report.ID, report.Status)
	}
	inst, err := e.loadActiveInstance(ctx, report)
	if err != nil {
		return nil, nil, err
	}
	if inst.Status != entity.InstanceStatusActive {
		return nil, nil, fmt.Errorf("%w: workflow instance %d is %s", entity.ErrInvalidTransition, inst.ID, inst.Status)
	}
	step := inst.StepAt(stepIndex)
	if step == nil {
		return nil, nil, fmt.Errorf("%w: report %d has no step %d", entity.ErrInvalidTransition, report.ID, stepIndex)
	}
	if step.Status != entity.StepStatusPending {
		return nil, nil, fmt.Errorf("%w: step %d is %s, not pending", entity.ErrInvalidTransition, stepIndex, step.Status)
	}
	if !delegation.CanAct(step, actorID, now) {
		return nil, nil, fmt.Errorf("%w: %s is not the effective approver of step %d", entity.ErrNotAuthorized, actorID, stepIndex)
	}
	return inst, step, nil
}

func (e *engineImpl) Approve(ctx context.Context, cmd DecisionCommand) (*Result, error) {
	if cmd.ActorID == "" {
		return nil, fmt.Errorf("%w: actor id is required", entity.ErrValidation)
	}

	var res Result
	err := e.transact(ctx, cmd.ReportID, "approve", func(ctx context.Context, now time.Time) ([]*event.Event, error) {
		report, err := e.loadReport(ctx, cmd.ReportID)
		if err != nil {
			return nil, err
		}
		inst, step, err := e.pendingStep(ctx, report, cmd.StepIndex, cmd.ActorID, now)
		if err != nil {
			return nil, err
		}

		if err := step.Approve(cmd.ActorID, now); err != nil {
			return nil, err
		}
		if err := e.workflowRepo.UpdateStep(ctx, step); err != nil {
			return nil, err
		}

		payload := e.reportPayload(report, cmd.ActorID)
		payload[event.KeyStepIndex] = step.Index
		payload[event.KeyRole] = step.Role.String()

		var evt *event.Event
		if next := inst.StepAt(step.Index + 1); next != nil {
			if err := next.Activate(now, e.dueAt(now)); err != nil {
				return nil, err
			}
			if err := e.workflowRepo.UpdateStep(ctx, next); err != nil {
				return nil, err
			}
			if report.Status, err = nextReportStatus(ctx, report, domainwf.TriggerAdvance, next.Role); err != nil {
				return nil, err
			}
			payload[event.KeyNextRole] = next.Role.String()
			payload[event.KeyNextApproverID] = delegation.EffectiveApprover(next, now)
			evt = event.NewEvent(event.TypeStepApproved, report.ID, inst.ID, payload, now)
		} else {
			if report.Status, err = nextReportStatus(ctx, report, domainwf.TriggerApprove, ""); err != nil {
				return nil, err
			}
			inst.Status = entity.InstanceStatusApproved
			inst.CompletedAt = &now
			if err := e.workflowRepo.UpdateInstanceStatus(ctx, inst.ID, inst.Status, inst.CompletedAt); err != nil {
				return nil, err
			}
			evt = event.NewEvent(event.TypeReportApproved, report.ID, inst.ID, payload, now)
		}

		report.UpdatedAt = now
		if err := e.reportRepo.Update(ctx, report); err != nil {
			return nil, err
		}

		idx := step.Index
		if err := e.history.Append(ctx, &entity.HistoryEntry{
			InstanceID: inst.ID,
			ReportID:   report.ID,
			StepIndex:  &idx,
			Action:     entity.ActionApproved,
			ActorID:    cmd.ActorID,
			ActorRole:  step.Role.String(),
			Timestamp:  now,
		}); err != nil {
			return nil, err
		}

		res = Result{Report: report, Instance: inst, Step: step}
		return []*event.Event{evt}, nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Step approved",
		"report_id", cmd.ReportID,
		"step_index", cmd.StepIndex,
		"actor_id", cmd.ActorID,
		"report_status", res.Report.Status,
	)
	return &res, nil
}

func (e *engineImpl) Reject(ctx context.Context, cmd DecisionCommand) (*Result, error) {
	if cmd.ActorID == "" {
		return nil, fmt.Errorf("%w: actor id is required", entity.ErrValidation)
	}
	comments, err := utils.ValidateComment(cmd.Comments)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrValidation, err)
	}

	action, trigger, instStatus, evtType := "reject", domainwf.TriggerReject, entity.InstanceStatusRejected, event.TypeReportRejected
	historyAction := entity.ActionRejected
	if cmd.Revision {
		action, trigger, instStatus, evtType = "request_revision", domainwf.TriggerRequestRevision, entity.InstanceStatusNeedsRevision, event.TypeReportRevisionRequested
		historyAction = entity.ActionRevisionRequested
	}

	var res Result
	err = e.transact(ctx, cmd.ReportID, action, func(ctx context.Context, now time.Time) ([]*event.Event, error) {
		report, err := e.loadReport(ctx, cmd.ReportID)
		if err != nil {
			return nil, err
		}
		inst, step, err := e.pendingStep(ctx, report, cmd.StepIndex, cmd.ActorID, now)
		if err != nil {
			return nil, err
		}

		if err := step.Reject(cmd.ActorID, comments, now); err != nil {
			return nil, err
		}
		if err := e.workflowRepo.UpdateStep(ctx, step); err != nil {
			return nil, err
		}

		inst.Status = instStatus
		inst.CompletedAt = &now
		if err := e.workflowRepo.UpdateInstanceStatus(ctx, inst.ID, inst.Status, inst.CompletedAt); err != nil {
			return nil, err
		}

		if report.Status, err = nextReportStatus(ctx, report, trigger, ""); err != nil {
			return nil, err
		}
		report.UpdatedAt = now
		if err := e.reportRepo.Update(ctx, report); err != nil {
			return nil, err
		}

		idx := step.Index
		if err := e.history.Append(ctx, &entity.HistoryEntry{
			InstanceID: inst.ID,
			ReportID:   report.ID,
			StepIndex:  &idx,
			Action:     historyAction,
			ActorID:    cmd.ActorID,
			ActorRole:  step.Role.String(),
			Timestamp:  now,
			Message:    comments,
		}); err != nil {
			return nil, err
		}

		payload := e.reportPayload(report, cmd.ActorID)
		payload[event.KeyStepIndex] = step.Index
		payload[event.KeyRole] = step.Role.String()
		payload[event.KeyComments] = comments

		res = Result{Report: report, Instance: inst, Step: step}
		return []*event.Event{event.NewEvent(evtType, report.ID, inst.ID, payload, now)}, nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Step rejected",
		"report_id", cmd.ReportID,
		"step_index", cmd.StepIndex,
		"actor_id", cmd.ActorID,
		"revision", cmd.Revision,
	)
	return &res, nil
}

func (e *engineImpl) Resubmit(ctx context.Context, cmd ResubmitCommand) (*Result, error) {
	if cmd.ActorID == "" {
		return nil, fmt.Errorf("%w: actor id is required", entity.ErrValidation)
	}

	var res Result
	err := e.transact(ctx, cmd.ReportID, "resubmit", func(ctx context.Context, now time.Time) ([]*event.Event, error) {
		report, err := e.loadReport(ctx, cmd.ReportID)
		if err != nil {
			return nil, err
		}
		if report.Status != entity.ReportStatusNeedsRevision {
			return nil, fmt.Errorf("%w: report %d is %s, not needs_revision", entity.ErrInvalidTransition, report.ID, report.Status)
		}
		if cmd.ActorID != report.EmployeeID {
			return nil, fmt.Errorf("%w: only the report owner may resubmit", entity.ErrNotAuthorized)
		}

		prior, err := e.loadActiveInstance(ctx, report)
		if err != nil {
			return nil, err
		}
		if err := e.workflowRepo.UpdateInstanceStatus(ctx, prior.ID, entity.InstanceStatusSuperseded, prior.CompletedAt); err != nil {
			return nil, err
		}

		inst, err := e.startInstance(ctx, report, prior.Attempt+1, prior.Roles(), now)
		if err != nil {
			return nil, err
		}
		first := inst.Steps[0]

		status, err := routeReport(ctx, report, domainwf.TriggerResubmit, first.Role)
		if err != nil {
			return nil, err
		}
		report.Status = status
		report.WorkflowInstanceID = &inst.ID
		report.SubmittedAt = &now
		report.UpdatedAt = now
		if err := e.reportRepo.Update(ctx, report); err != nil {
			return nil, err
		}

		if err := e.history.Append(ctx, &entity.HistoryEntry{
			InstanceID: inst.ID,
			ReportID:   report.ID,
			Action:     entity.ActionResubmitted,
			ActorID:    cmd.ActorID,
			ActorRole:  "employee",
			Timestamp:  now,
			Message:    fmt.Sprintf("attempt %d supersedes instance %d", inst.Attempt, prior.ID),
		}); err != nil {
			return nil, err
		}

		payload := e.reportPayload(report, cmd.ActorID)
		payload[event.KeyStepIndex] = first.Index
		payload[event.KeyRole] = first.Role.String()
		payload[event.KeyNextApproverID] = first.ApproverID

		res = Result{Report: report, Instance: inst, Step: first}
		return []*event.Event{event.NewEvent(event.TypeReportResubmitted, report.ID, inst.ID, payload, now)}, nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Report resubmitted", "report_id", cmd.ReportID, "instance_id", res.Instance.ID, "attempt", res.Instance.Attempt)
	return &res, nil
}

func (e *engineImpl) Delegate(ctx context.Context, cmd DelegateCommand) (*Result, error) {
	if cmd.ActorID == "" || cmd.ToApproverID == "" {
		return nil, fmt.Errorf("%w: actor and delegate ids are required", entity.ErrValidation)
	}

	// Resolve the owning report first so the step is serialized with decisions on it
	found, err := e.workflowRepo.GetStep(ctx, cmd.StepID)
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w: step %d", entity.ErrNotFound, cmd.StepID)
	}
	owner, err := e.workflowRepo.GetInstance(ctx, found.InstanceID)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, fmt.Errorf("%w: workflow instance %d", entity.ErrNotFound, found.InstanceID)
	}

	var res Result
	err = e.transact(ctx, owner.ReportID, "delegate", func(ctx context.Context, now time.Time) ([]*event.Event, error) {
		if cmd.ExpiresAt != nil && !cmd.ExpiresAt.After(now) {
			return nil, fmt.Errorf("%w: delegation expiry must be in the future", entity.ErrValidation)
		}

		inst, err := e.workflowRepo.GetInstance(ctx, owner.ID)
		if err != nil {
			return nil, err
		}
		if inst == nil {
			return nil, fmt.Errorf("%w: workflow instance %d", entity.ErrNotFound, owner.ID)
		}
		var step *entity.Step
		for _, s := range inst.Steps {
			if s.ID == cmd.StepID {
				step = s
			}
		}
		if step == nil {
			return nil, fmt.Errorf("%w: step %d", entity.ErrNotFound, cmd.StepID)
		}
		if inst.Status != entity.InstanceStatusActive || !step.IsOpen() {
			return nil, fmt.Errorf("%w: step %d is %s", entity.ErrInvalidTransition, step.Index, step.Status)
		}

		actor, err := e.loadEmployee(ctx, cmd.ActorID)
		if err != nil {
			if errors.Is(err, entity.ErrNotFound) {
				return nil, fmt.Errorf("%w: unknown actor %s", entity.ErrNotAuthorized, cmd.ActorID)
			}
			return nil, err
		}
		if actor.ID != step.ApproverID && !actor.IsAdmin {
			return nil, fmt.Errorf("%w: only the approver or an administrator may delegate step %d", entity.ErrNotAuthorized, step.Index)
		}

		report, err := e.loadReport(ctx, inst.ReportID)
		if err != nil {
			return nil, err
		}
		// delegating back to the approver revokes the delegation
		revoke := cmd.ToApproverID == step.ApproverID
		if revoke && step.DelegatedToID == "" {
			return nil, fmt.Errorf("%w: step %d is not delegated", entity.ErrValidation, step.Index)
		}
		if cmd.ToApproverID == report.EmployeeID {
			return nil, fmt.Errorf("%w: the report owner cannot review their own report", entity.ErrValidation)
		}
		target, err := e.employeeRepo.GetByID(ctx, cmd.ToApproverID)
		if err != nil {
			return nil, err
		}
		if target == nil {
			return nil, fmt.Errorf("%w: delegate %s is not in the directory", entity.ErrValidation, cmd.ToApproverID)
		}

		if revoke {
			step.DelegatedToID = ""
			step.DelegationExpiresAt = nil
		} else {
			step.DelegatedToID = target.ID
			step.DelegationExpiresAt = cmd.ExpiresAt
		}
		step.UpdatedAt = now
		if err := e.workflowRepo.UpdateStep(ctx, step); err != nil {
			return nil, err
		}

		actorRole := step.Role.String()
		if actor.ID != step.ApproverID {
			actorRole = "admin"
		}
		message := "delegated to " + target.ID
		if revoke {
			message = "delegation revoked, returned to " + target.ID
		} else if cmd.ExpiresAt != nil {
			message += " until " + cmd.ExpiresAt.UTC().Format(time.RFC3339)
		}
		idx := step.Index
		if err := e.history.Append(ctx, &entity.HistoryEntry{
			InstanceID: inst.ID,
			ReportID:   report.ID,
			StepIndex:  &idx,
			Action:     entity.ActionDelegated,
			ActorID:    actor.ID,
			ActorRole:  actorRole,
			Timestamp:  now,
			Message:    message,
		}); err != nil {
			return nil, err
		}

		payload := e.reportPayload(report, actor.ID)
		payload[event.KeyStepIndex] = step.Index
		payload[event.KeyStepID] = step.ID
		payload[event.KeyRole] = step.Role.String()
		payload[event.KeyApproverID] = step.ApproverID
		payload[event.KeyDelegatedToID] = target.ID

		res = Result{Report: report, Instance: inst, Step: step}
		return []*event.Event{event.NewEvent(event.TypeStepDelegated, report.ID, inst.ID, payload, now)}, nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Step delegated", "step_id", cmd.StepID, "actor_id", cmd.ActorID, "delegated_to_id", cmd.ToApproverID)
	return &res, nil
}

func (e *engineImpl) AddComment(ctx context.Context, cmd CommentCommand) (*entity.HistoryEntry, error) {
	if cmd.ActorID == "" {
		return nil, fmt.Errorf("%w: actor id is required", entity.ErrValidation)
	}
	message, err := utils.ValidateComment(cmd.Message)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrValidation, err)
	}

	var entry *entity.HistoryEntry
	err = e.transact(ctx, cmd.ReportID, "comment", func(ctx context.Context, now time.Time) ([]*event.Event, error) {
		report, err := e.loadReport(ctx, cmd.ReportID)
		if err != nil {
			return nil, err
		}
		inst, err := e.loadActiveInstance(ctx, report)
		if err != nil {
			return nil, err
		}

		role, err := e.commenterRole(ctx, report, inst, cmd.ActorID)
		if err != nil {
			return nil, err
		}

		entry = &entity.HistoryEntry{
			InstanceID: inst.ID,
			ReportID:   report.ID,
			Action:     entity.ActionCommentAdded,
			ActorID:    cmd.ActorID,
			ActorRole:  role,
			Timestamp:  now,
			Message:    message,
		}
		if err := e.history.Append(ctx, entry); err != nil {
			return nil, err
		}

		payload := e.reportPayload(report, cmd.ActorID)
		payload[event.KeyComments] = message
		return []*event.Event{event.NewEvent(event.TypeCommentAdded, report.ID, inst.ID, payload, now)}, nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// commenterRole authorizes a comment: the owner, anyone assigned to or
// delegated a step of the instance, or an administrator
func (e *engineImpl) commenterRole(ctx context.Context, report *entity.Report, inst *entity.WorkflowInstance, actorID string) (string, error) {
	if actorID == report.EmployeeID {
		return "employee", nil
	}
	for _, s := range inst.Steps {
		if s.ApproverID == actorID || s.DelegatedToID == actorID {
			return s.Role.String(), nil
		}
	}
	actor, err := e.employeeRepo.GetByID(ctx, actorID)
	if err != nil {
		return "", err
	}
	if actor != nil && actor.IsAdmin {
		return "admin", nil
	}
	return "", fmt.Errorf("%w: %s may not comment on report %d", entity.ErrNotAuthorized, actorID, report.ID)
}
