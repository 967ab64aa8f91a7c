// Package alerts creates, deduplicates, updates and escalates alerts.
package alerts

import (
	"context"
	"fmt"
	"time"

	"facility-alerting/internal/errs"
	"facility-alerting/internal/escalation"
	"facility-alerting/internal/logging"
	"facility-alerting/internal/metrics"
	"facility-alerting/internal/models"
	"facility-alerting/internal/realtime"
)

const (
	DefaultDedupWindow = time.Hour

	// escalationBatch caps how many due alerts one sweep handles.
	escalationBatch = 200
	timerTimeout    = 30 * time.Second
)

// Notifier delivers an escalation level's notifications for an alert.
// Delivery is asynchronous and best-effort.
type Notifier interface {
	Notify(ctx context.Context, alert models.Alert, level escalation.Level)
}

type Options struct {
	Repository  Repository
	Publisher   realtime.Publisher
	Notifier    Notifier
	Rules       escalation.Rules
	DedupWindow time.Duration
	Logger      *logging.Logger
}

type Service struct {
	repo        Repository
	publisher   realtime.Publisher
	notifier    Notifier
	rules       escalation.Rules
	scheduler   *escalation.Scheduler
	dedupWindow time.Duration
	logger      *logging.Logger
	now         func() time.Time
}

func NewService(opts Options) *Service {
	s := &Service{
		repo:        opts.Repository,
		publisher:   opts.Publisher,
		notifier:    opts.Notifier,
		rules:       opts.Rules,
		dedupWindow: opts.DedupWindow,
		logger:      opts.Logger,
		now:         time.Now,
	}
	if s.publisher == nil {
		s.publisher = realtime.Noop{}
	}
	if s.rules == nil {
		s.rules = escalation.DefaultRules()
	}
	if s.dedupWindow <= 0 {
		s.dedupWindow = DefaultDedupWindow
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	s.scheduler = escalation.NewScheduler(s.checkEscalation)
	return s
}

// SetNotifier wires the dispatcher after construction; the dispatcher
// itself reports deliveries back through MarkNotificationSent.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// Close cancels pending escalation timers. Persisted deadlines are picked
// up by the next ProcessEscalations sweep.
func (s *Service) Close() {
	s.scheduler.Stop()
}

// CreateAlert inserts a new active alert, or folds the data into an active
// alert with the same type, building and equipment created within the
// dedup window.
func (s *Service) CreateAlert(ctx context.Context, data models.Alert) (models.Alert, error) {
	if err := validateNew(data); err != nil {
		return models.Alert{}, err
	}
	if data.Title == "" {
		data.Title = data.Message
	}

	now := s.now()
	dup, err := s.repo.FindDuplicate(ctx, data.Type, data.BuildingID, data.EquipmentID, now.Add(-s.dedupWindow))
	if err != nil {
		return models.Alert{}, fmt.Errorf("duplicate check failed: %w", err)
	}
	if dup != nil {
		return s.refreshDuplicate(ctx, *dup, data, now)
	}

	rule := s.rules.For(data.Severity)

	alert := data
	alert.ID = 0
	alert.Status = models.AlertStatusActive
	alert.EscalationLevel = 0
	alert.NotificationSent = false
	alert.AcknowledgedAt, alert.ResolvedAt = nil, nil
	alert.AcknowledgedBy, alert.ResolvedBy = nil, nil
	alert.CreatedAt, alert.UpdatedAt = now, now
	alert.Metadata = mergeMetadata(data.Metadata, map[string]any{"occurrence_count": 1})
	alert.NextEscalationAt = nil
	if delay := s.delayFor(alert, rule); delay > 0 && rule.HasNext(0) {
		deadline := now.Add(delay)
		alert.NextEscalationAt = &deadline
	}

	id, err := s.repo.Insert(ctx, alert)
	if err != nil {
		return models.Alert{}, fmt.Errorf("failed to create alert: %w", err)
	}
	alert.ID = id

	metrics.AlertCreated(alert.Type, alert.Severity)
	s.logger.WithField("alert_id", id).Infof("Created %s alert (%s): %s", alert.Type, alert.Severity, alert.Title)

	s.processNewAlert(ctx, alert, rule)
	return alert, nil
}

func (s *Service) refreshDuplicate(ctx context.Context, dup, data models.Alert, now time.Time) (models.Alert, error) {
	count := occurrenceCount(dup.Metadata) + 1
	extra := map[string]any{
		"occurrence_count":   count,
		"last_occurrence_at": now.UTC().Format(time.RFC3339),
	}

	update := models.AlertUpdate{
		Metadata: mergeMetadata(data.Metadata, extra),
	}
	if data.Title != "" {
		update.Title = &data.Title
	}
	if data.Message != "" {
		update.Message = &data.Message
	}
	if data.DetectedValue != nil {
		update.DetectedValue = data.DetectedValue
	}

	updated, err := s.UpdateAlert(ctx, dup.ID, update)
	if err != nil {
		return models.Alert{}, fmt.Errorf("failed to refresh duplicate alert %d: %w", dup.ID, err)
	}

	metrics.AlertDeduplicated(dup.Type)
	s.logger.WithField("alert_id", dup.ID).Debugf("Deduplicated %s alert (occurrence %d)", dup.Type, count)
	return updated, nil
}

// processNewAlert runs the side effects of a freshly inserted alert. None of
// them fail the creation.
func (s *Service) processNewAlert(ctx context.Context, alert models.Alert, rule escalation.Rule) {
	s.publisher.EmitToBuilding(ctx, realtime.ChannelFor(alert.BuildingID), realtime.EventNewAlert, alert)

	if level, ok := rule.LevelAt(0); ok && s.notifier != nil {
		s.notifier.Notify(ctx, alert, level)
	}

	if alert.NextEscalationAt != nil {
		s.scheduler.Schedule(alert.ID, alert.NextEscalationAt.Sub(s.now()))
	}
}

// UpdateAlert applies a partial update after checking the status
// transition.
func (s *Service) UpdateAlert(ctx context.Context, id int64, update models.AlertUpdate) (models.Alert, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return models.Alert{}, err
	}
	if current == nil {
		return models.Alert{}, errs.NotFound("alert", id)
	}
	if update.Empty() {
		return *current, nil
	}

	now := s.now()
	var problems []string

	if update.Severity != nil && !models.ValidSeverity(*update.Severity) {
		problems = append(problems, fmt.Sprintf("unknown severity %q", *update.Severity))
	}
	if update.EscalationLevel != nil && *update.EscalationLevel < current.EscalationLevel {
		problems = append(problems, fmt.Sprintf("escalation_level cannot decrease from %d to %d", current.EscalationLevel, *update.EscalationLevel))
	}

	statusChanged := false
	if update.Status != nil && *update.Status != current.Status {
		if !CanTransition(current.Status, *update.Status) {
			problems = append(problems, fmt.Sprintf("invalid status transition from %s to %s", current.Status, *update.Status))
		} else {
			statusChanged = true
		}
	}
	if update.AcknowledgedAt != nil && !statusIs(update.Status, models.AlertStatusAcknowledged) {
		problems = append(problems, "acknowledged_at can only be set together with status acknowledged")
	}
	if update.ResolvedAt != nil && !statusIs(update.Status, models.AlertStatusResolved) {
		problems = append(problems, "resolved_at can only be set together with status resolved")
	}

	// A manual escalation is one level step through the same compare-and-set
	// as the timer and the sweep.
	escalate := statusChanged && *update.Status == models.AlertStatusEscalated
	if escalate {
		switch {
		case update.EscalationLevel != nil:
			problems = append(problems, "escalation_level cannot be set together with status escalated")
		case !s.canEscalate(*current):
			problems = append(problems, fmt.Sprintf("%s alert has no escalation level after %d", current.Severity, current.EscalationLevel))
		}
	}
	if len(problems) > 0 {
		return models.Alert{}, errs.NewValidation(problems...)
	}

	if escalate {
		update.Status = nil
	} else if statusChanged {
		switch *update.Status {
		case models.AlertStatusAcknowledged:
			if update.AcknowledgedAt == nil {
				update.AcknowledgedAt = &now
			}
			update.ClearNextEscalation = true
		case models.AlertStatusResolved:
			if update.ResolvedAt == nil {
				update.ResolvedAt = &now
			}
			update.ClearNextEscalation = true
		}
	}
	if current.AcknowledgedAt != nil {
		update.AcknowledgedAt = nil
	}
	if current.ResolvedAt != nil {
		update.ResolvedAt = nil
	}

	if !update.Empty() {
		n, err := s.repo.Update(ctx, id, update, now)
		if err != nil {
			return models.Alert{}, fmt.Errorf("failed to update alert %d: %w", id, err)
		}
		if n == 0 {
			return models.Alert{}, errs.NotFound("alert", id)
		}
	}

	if escalate {
		fresh, err := s.GetAlert(ctx, id)
		if err != nil {
			return models.Alert{}, err
		}
		ok, err := s.escalateAlert(ctx, fresh)
		if err != nil {
			return models.Alert{}, fmt.Errorf("failed to escalate alert %d: %w", id, err)
		}
		if !ok {
			return models.Alert{}, errs.NewValidation(fmt.Sprintf("alert %d changed concurrently, escalation skipped", id))
		}
		statusChanged = true
	}

	updated, err := s.repo.Get(ctx, id)
	if err != nil {
		return models.Alert{}, err
	}
	if updated == nil {
		return models.Alert{}, errs.NotFound("alert", id)
	}

	if statusChanged {
		s.logger.WithField("alert_id", id).Infof("Alert status changed from %s to %s", current.Status, updated.Status)
		s.publisher.EmitToBuilding(ctx, realtime.ChannelFor(updated.BuildingID), realtime.EventAlertStatusChanged, map[string]any{
			"alert":           updated,
			"previous_status": current.Status,
		})
		if !updated.Escalatable() {
			s.scheduler.Cancel(id)
		}
	}
	return *updated, nil
}

func (s *Service) GetAlert(ctx context.Context, id int64) (models.Alert, error) {
	alert, err := s.repo.Get(ctx, id)
	if err != nil {
		return models.Alert{}, err
	}
	if alert == nil {
		return models.Alert{}, errs.NotFound("alert", id)
	}
	return *alert, nil
}

// GetActiveAlerts lists active alerts ordered by severity then recency.
func (s *Service) GetActiveAlerts(ctx context.Context, filter models.AlertFilter, page models.Pagination) ([]models.Alert, int, error) {
	if filter.Severity != "" && !models.ValidSeverity(filter.Severity) {
		return nil, 0, errs.NewValidation(fmt.Sprintf("unknown severity %q", filter.Severity))
	}
	if filter.Type != "" && !models.ValidAlertType(filter.Type) {
		return nil, 0, errs.NewValidation(fmt.Sprintf("unknown alert type %q", filter.Type))
	}
	return s.repo.ListActive(ctx, filter, page.Normalize())
}

// MarkNotificationSent flags the alert once any delivery succeeded.
func (s *Service) MarkNotificationSent(ctx context.Context, id int64) error {
	sent := true
	n, err := s.repo.Update(ctx, id, models.AlertUpdate{NotificationSent: &sent}, s.now())
	if err != nil {
		return fmt.Errorf("failed to mark notification sent for alert %d: %w", id, err)
	}
	if n == 0 {
		return errs.NotFound("alert", id)
	}
	return nil
}

func statusIs(status *string, want string) bool {
	return status != nil && *status == want
}

// CanTransition reports whether an alert may move between two distinct
// statuses.
func CanTransition(from, to string) bool {
	switch from {
	case models.AlertStatusActive:
		return to == models.AlertStatusAcknowledged || to == models.AlertStatusEscalated || to == models.AlertStatusResolved
	case models.AlertStatusEscalated:
		return to == models.AlertStatusEscalated || to == models.AlertStatusAcknowledged || to == models.AlertStatusResolved
	case models.AlertStatusAcknowledged:
		return to == models.AlertStatusResolved
	default:
		return false
	}
}

func validateNew(a models.Alert) error {
	var problems []string
	if !models.ValidAlertType(a.Type) {
		problems = append(problems, fmt.Sprintf("unknown alert type %q", a.Type))
	}
	if !models.ValidSeverity(a.Severity) {
		problems = append(problems, fmt.Sprintf("unknown severity %q", a.Severity))
	}
	if a.Title == "" && a.Message == "" {
		problems = append(problems, "title or message is required")
	}
	if len(problems) > 0 {
		return errs.NewValidation(problems...)
	}
	return nil
}

// delayFor prefers the escalation_minutes of the originating threshold over
// the severity rule.
func (s *Service) delayFor(alert models.Alert, rule escalation.Rule) time.Duration {
	if v, ok := models.ParseInt(alert.ThresholdConfig["escalation_minutes"]); ok && v > 0 {
		return time.Duration(v) * time.Minute
	}
	return rule.Delay()
}

func occurrenceCount(metadata map[string]any) int {
	if n, ok := models.ParseInt(metadata["occurrence_count"]); ok && n > 0 {
		return int(n)
	}
	return 1
}

func mergeMetadata(base, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
