package alerts

import (
	"context"
	"fmt"
	"time"

	"facility-alerting/internal/metrics"
	"facility-alerting/internal/models"
	"facility-alerting/internal/realtime"
)

// ProcessEscalations escalates every open, unacknowledged alert whose
// escalation deadline has passed. It returns the number of alerts moved up
// a level. Failures on individual alerts are logged and skipped.
func (s *Service) ProcessEscalations(ctx context.Context) (int, error) {
	due, err := s.repo.ListDueForEscalation(ctx, s.now(), escalationBatch)
	if err != nil {
		return 0, fmt.Errorf("failed to load alerts due for escalation: %w", err)
	}

	escalated := 0
	for _, alert := range due {
		if err := ctx.Err(); err != nil {
			return escalated, err
		}
		ok, err := s.escalateAlert(ctx, alert)
		if err != nil {
			s.logger.WithField("alert_id", alert.ID).Errorf("Escalation failed: %v", err)
			continue
		}
		if ok {
			escalated++
		}
	}

	if escalated > 0 {
		s.logger.Infof("Escalation sweep moved %d of %d due alerts", escalated, len(due))
	}
	return escalated, nil
}

// escalateAlert moves alert to the next level when its rule has one. The
// level guard in Repository.Escalate makes concurrent triggers for the same
// step apply once.
func (s *Service) escalateAlert(ctx context.Context, alert models.Alert) (bool, error) {
	now := s.now()
	rule := s.rules.For(alert.Severity)
	next := alert.EscalationLevel + 1

	level, ok := rule.LevelAt(next)
	if !ok || !s.canEscalate(alert) {
		if alert.NextEscalationAt != nil {
			if _, err := s.repo.Update(ctx, alert.ID, models.AlertUpdate{ClearNextEscalation: true}, now); err != nil {
				return false, err
			}
		}
		s.logger.WithField("alert_id", alert.ID).Debugf("No escalation level after %d for %s alerts", alert.EscalationLevel, alert.Severity)
		return false, nil
	}

	var deadline *time.Time
	if rule.HasNext(next) {
		t := now.Add(s.delayFor(alert, rule))
		deadline = &t
	}

	applied, err := s.repo.Escalate(ctx, alert.ID, alert.EscalationLevel, next, deadline, now)
	if err != nil {
		return false, err
	}
	if !applied {
		s.logger.WithField("alert_id", alert.ID).Debugf("Escalation to level %d skipped, alert changed concurrently", next)
		return false, nil
	}

	alert.Status = models.AlertStatusEscalated
	alert.EscalationLevel = next
	alert.NextEscalationAt = deadline
	alert.UpdatedAt = now

	metrics.AlertEscalated(alert.Severity)
	s.logger.WithField("alert_id", alert.ID).Warnf("Alert escalated to level %d (%s): %s", next, alert.Severity, alert.Title)

	s.publisher.EmitToBuilding(ctx, realtime.ChannelFor(alert.BuildingID), realtime.EventAlertEscalated, alert)
	if s.notifier != nil {
		s.notifier.Notify(ctx, alert, level)
	}
	if deadline != nil {
		s.scheduler.Schedule(alert.ID, deadline.Sub(now))
	}
	return true, nil
}

// canEscalate reports whether the alert's rule has a level after the
// current one and escalates at all.
func (s *Service) canEscalate(alert models.Alert) bool {
	rule := s.rules.For(alert.Severity)
	_, ok := rule.LevelAt(alert.EscalationLevel + 1)
	return ok && s.delayFor(alert, rule) > 0
}

// checkEscalation is the timer callback. It re-reads the alert and acts
// only when it is still open and its deadline has passed.
func (s *Service) checkEscalation(alertID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), timerTimeout)
	defer cancel()

	log := s.logger.WithField("alert_id", alertID)

	alert, err := s.repo.Get(ctx, alertID)
	if err != nil {
		log.Errorf("Escalation check failed to load alert: %v", err)
		return
	}
	if alert == nil || !alert.Escalatable() {
		return
	}
	if alert.NextEscalationAt == nil || alert.NextEscalationAt.After(s.now()) {
		return
	}

	if _, err := s.escalateAlert(ctx, *alert); err != nil {
		log.Errorf("Escalation check failed: %v", err)
	}
}
