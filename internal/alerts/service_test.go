package alerts

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"facility-alerting/internal/errs"
	"facility-alerting/internal/escalation"
	"facility-alerting/internal/logging"
	"facility-alerting/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memRepo mirrors the SQL semantics of Store in memory.
type memRepo struct {
	mu      sync.Mutex
	alerts  map[int64]models.Alert
	nextID  int64
	inserts int
	updates int
	failGet error
}

func newMemRepo() *memRepo {
	return &memRepo{alerts: make(map[int64]models.Alert)}
}

func (m *memRepo) FindDuplicate(_ context.Context, alertType string, buildingID, equipmentID *int64, since time.Time) (*models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *models.Alert
	for _, a := range m.alerts {
		if a.Type != alertType || a.Status != models.AlertStatusActive || a.CreatedAt.Before(since) {
			continue
		}
		if !sameID(a.BuildingID, buildingID) || !sameID(a.EquipmentID, equipmentID) {
			continue
		}
		if found == nil || a.CreatedAt.After(found.CreatedAt) {
			c := a
			found = &c
		}
	}
	return found, nil
}

func (m *memRepo) Insert(_ context.Context, a models.Alert) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.inserts++
	a.ID = m.nextID
	m.alerts[a.ID] = a
	return a.ID, nil
}

func (m *memRepo) Get(_ context.Context, id int64) (*models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		return nil, m.failGet
	}
	a, ok := m.alerts[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *memRepo) Update(_ context.Context, id int64, u models.AlertUpdate, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return 0, nil
	}
	m.updates++
	if u.Status != nil {
		a.Status = *u.Status
	}
	if u.Severity != nil {
		a.Severity = *u.Severity
	}
	if u.Title != nil {
		a.Title = *u.Title
	}
	if u.Message != nil {
		a.Message = *u.Message
	}
	if u.DetectedValue != nil {
		a.DetectedValue = u.DetectedValue
	}
	if u.EscalationLevel != nil && *u.EscalationLevel > a.EscalationLevel {
		a.EscalationLevel = *u.EscalationLevel
	}
	if u.NotificationSent != nil {
		a.NotificationSent = *u.NotificationSent
	}
	if len(u.Metadata) > 0 {
		a.Metadata = mergeMetadata(a.Metadata, u.Metadata)
	}
	if u.AcknowledgedBy != nil {
		a.AcknowledgedBy = u.AcknowledgedBy
	}
	if u.ResolvedBy != nil {
		a.ResolvedBy = u.ResolvedBy
	}
	if u.AcknowledgedAt != nil && a.AcknowledgedAt == nil {
		t := *u.AcknowledgedAt
		a.AcknowledgedAt = &t
	}
	if u.ResolvedAt != nil && a.ResolvedAt == nil {
		t := *u.ResolvedAt
		a.ResolvedAt = &t
	}
	if u.ClearNextEscalation {
		a.NextEscalationAt = nil
	} else if u.NextEscalationAt != nil {
		t := *u.NextEscalationAt
		a.NextEscalationAt = &t
	}
	a.UpdatedAt = now
	m.alerts[id] = a
	return 1, nil
}

func (m *memRepo) Escalate(_ context.Context, id int64, from, to int, next *time.Time, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok || a.EscalationLevel != from || !a.Escalatable() {
		return false, nil
	}
	a.Status = models.AlertStatusEscalated
	a.EscalationLevel = to
	a.NextEscalationAt = next
	a.UpdatedAt = now
	m.alerts[id] = a
	return true, nil
}

func (m *memRepo) ListActive(_ context.Context, filter models.AlertFilter, page models.Pagination) ([]models.Alert, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []models.Alert
	for _, a := range m.alerts {
		if a.Status != models.AlertStatusActive {
			continue
		}
		if filter.Severity != "" && a.Severity != filter.Severity {
			continue
		}
		list = append(list, a)
	}
	sort.Slice(list, func(i, j int) bool {
		ri, rj := models.SeverityRank(list[i].Severity), models.SeverityRank(list[j].Severity)
		if ri != rj {
			return ri > rj
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	total := len(list)
	if page.Offset >= total {
		return nil, total, nil
	}
	end := page.Offset + page.Limit
	if end > total {
		end = total
	}
	return list[page.Offset:end], total, nil
}

func (m *memRepo) ListDueForEscalation(_ context.Context, now time.Time, limit int) ([]models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []models.Alert
	for _, a := range m.alerts {
		if a.Escalatable() && a.NextEscalationAt != nil && !a.NextEscalationAt.After(now) {
			list = append(list, a)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	if len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (m *memRepo) get(id int64) models.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alerts[id]
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

type emitted struct {
	channel string
	event   string
}

type fakePublisher struct {
	mu     sync.Mutex
	events []emitted
}

func (p *fakePublisher) EmitToBuilding(_ context.Context, channel, event string, _ any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, emitted{channel, event})
}

func (p *fakePublisher) count(event string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.event == event {
			n++
		}
	}
	return n
}

type notified struct {
	alertID int64
	level   int
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []notified
}

func (n *fakeNotifier) Notify(_ context.Context, alert models.Alert, level escalation.Level) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notified{alert.ID, level.Level})
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	svc       *Service
	repo      *memRepo
	publisher *fakePublisher
	notifier  *fakeNotifier
	clock     *clock
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		repo:      newMemRepo(),
		publisher: &fakePublisher{},
		notifier:  &fakeNotifier{},
		clock:     &clock{t: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)},
	}
	f.svc = NewService(Options{
		Repository: f.repo,
		Publisher:  f.publisher,
		Notifier:   f.notifier,
		Rules:      escalation.DefaultRules(),
		Logger:     logging.Discard(),
	})
	f.svc.now = f.clock.Now
	t.Cleanup(f.svc.Close)
	return f
}

func int64Ptr(v int64) *int64       { return &v }
func float64Ptr(v float64) *float64 { return &v }
func strPtr(v string) *string       { return &v }

func newAlert(severity string, building int64) models.Alert {
	return models.Alert{
		Type:          models.AlertTypeThresholdExceeded,
		Severity:      severity,
		Title:         "Power factor below limit",
		Message:       "power_factor value 0.72 is below minimum threshold of 0.8",
		BuildingID:    int64Ptr(building),
		DetectedValue: float64Ptr(0.72),
	}
}

func TestCreateAlertDeduplicatesWithinWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateAlert(ctx, newAlert(models.SeverityMedium, 5))
	require.NoError(t, err)

	f.clock.Advance(10 * time.Minute)
	second := newAlert(models.SeverityMedium, 5)
	second.DetectedValue = float64Ptr(0.70)
	got, err := f.svc.CreateAlert(ctx, second)
	require.NoError(t, err)

	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, 1, f.repo.inserts)
	assert.Equal(t, 1, f.repo.updates)
	assert.Equal(t, models.AlertStatusActive, got.Status)
	assert.Equal(t, 0.70, *got.DetectedValue)
	assert.EqualValues(t, 2, got.Metadata["occurrence_count"])
	assert.Equal(t, 1, f.publisher.count("new_alert"))
}

func TestCreateAlertAfterWindowInsertsAgain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateAlert(ctx, newAlert(models.SeverityLow, 5))
	require.NoError(t, err)

	f.clock.Advance(61 * time.Minute)
	second, err := f.svc.CreateAlert(ctx, newAlert(models.SeverityLow, 5))
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 2, f.repo.inserts)
}

func TestCreateAlertDistinguishesEquipment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := newAlert(models.SeverityLow, 5)
	b := newAlert(models.SeverityLow, 5)
	b.EquipmentID = int64Ptr(3)

	_, err := f.svc.CreateAlert(ctx, a)
	require.NoError(t, err)
	_, err = f.svc.CreateAlert(ctx, b)
	require.NoError(t, err)

	assert.Equal(t, 2, f.repo.inserts)
}

func TestCreateAlertValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateAlert(context.Background(), models.Alert{Type: "weather", Severity: "urgent"})
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))

	var verr *errs.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Errors, 3)
	assert.Zero(t, f.repo.inserts)
}

func TestCreateAlertNotifiesAndSchedules(t *testing.T) {
	f := newFixture(t)

	alert, err := f.svc.CreateAlert(context.Background(), newAlert(models.SeverityCritical, 1))
	require.NoError(t, err)

	require.NotNil(t, alert.NextEscalationAt)
	assert.Equal(t, f.clock.Now().Add(5*time.Minute), *alert.NextEscalationAt)
	assert.Equal(t, models.AlertStatusActive, alert.Status)
	assert.False(t, alert.NotificationSent)
	assert.Zero(t, alert.EscalationLevel)

	assert.Equal(t, []notified{{alert.ID, 0}}, f.notifier.calls)
	assert.Equal(t, []emitted{{"building:1", "new_alert"}}, f.publisher.events)
	assert.Equal(t, 1, f.svc.scheduler.Pending())
}

func TestCreateAlertWithoutBuildingUsesSystemChannel(t *testing.T) {
	f := newFixture(t)
	a := newAlert(models.SeverityLow, 0)
	a.BuildingID = nil

	alert, err := f.svc.CreateAlert(context.Background(), a)
	require.NoError(t, err)
	assert.Nil(t, alert.NextEscalationAt)
	assert.Equal(t, []emitted{{"system", "new_alert"}}, f.publisher.events)
	assert.Zero(t, f.svc.scheduler.Pending())
}

func TestThresholdEscalationMinutesOverrideRule(t *testing.T) {
	f := newFixture(t)
	a := newAlert(models.SeverityHigh, 2)
	a.ThresholdConfig = map[string]any{"escalation_minutes": 3}

	alert, err := f.svc.CreateAlert(context.Background(), a)
	require.NoError(t, err)
	require.NotNil(t, alert.NextEscalationAt)
	assert.Equal(t, f.clock.Now().Add(3*time.Minute), *alert.NextEscalationAt)
}

func TestAcknowledgeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alert, err := f.svc.CreateAlert(ctx, newAlert(models.SeverityCritical, 1))
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	ackAt := f.clock.Now()
	acked, err := f.svc.UpdateAlert(ctx, alert.ID, models.AlertUpdate{
		Status:         strPtr(models.AlertStatusAcknowledged),
		AcknowledgedBy: strPtr("operator"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusAcknowledged, acked.Status)
	require.NotNil(t, acked.AcknowledgedAt)
	assert.Equal(t, ackAt, *acked.AcknowledgedAt)
	assert.Nil(t, acked.NextEscalationAt)
	assert.Zero(t, f.svc.scheduler.Pending())

	f.clock.Advance(time.Minute)
	again, err := f.svc.UpdateAlert(ctx, alert.ID, models.AlertUpdate{Status: strPtr(models.AlertStatusAcknowledged)})
	require.NoError(t, err)
	assert.Equal(t, ackAt, *again.AcknowledgedAt)
	assert.Equal(t, 1, f.publisher.count("alert_status_changed"))
}

func TestUpdateAlertRejectsInvalidTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alert, err := f.svc.CreateAlert(ctx, newAlert(models.SeverityLow, 1))
	require.NoError(t, err)

	_, err = f.svc.UpdateAlert(ctx, alert.ID, models.AlertUpdate{Status: strPtr(models.AlertStatusAcknowledged)})
	require.NoError(t, err)

	_, err = f.svc.UpdateAlert(ctx, alert.ID, models.AlertUpdate{Status: strPtr(models.AlertStatusEscalated)})
	assert.True(t, errs.IsValidation(err))

	resolved, err := f.svc.UpdateAlert(ctx, alert.ID, models.AlertUpdate{Status: strPtr(models.AlertStatusResolved), ResolvedBy: strPtr("operator")})
	require.NoError(t, err)
	require.NotNil(t, resolved.ResolvedAt)

	_, err = f.svc.UpdateAlert(ctx, alert.ID, models.AlertUpdate{Status: strPtr(models.AlertStatusActive)})
	assert.True(t, errs.IsValidation(err))
}

func TestUpdateAlertRejectsTimestampsWithoutStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alert, err := f.svc.CreateAlert(ctx, newAlert(models.SeverityCritical, 1))
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	ts := f.clock.Now()
	_, err = f.svc.UpdateAlert(ctx, alert.ID, models.AlertUpdate{AcknowledgedAt: &ts})
	assert.True(t, errs.IsValidation(err))
	_, err = f.svc.UpdateAlert(ctx, alert.ID, models.AlertUpdate{ResolvedAt: &ts, Status: strPtr(models.AlertStatusAcknowledged)})
	assert.True(t, errs.IsValidation(err))

	stored := f.repo.get(alert.ID)
	assert.Equal(t, models.AlertStatusActive, stored.Status)
	assert.Nil(t, stored.AcknowledgedAt)
	assert.Nil(t, stored.ResolvedAt)

	f.clock.Advance(10 * time.Minute)
	n, err := f.svc.ProcessEscalations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	acked, err := f.svc.UpdateAlert(ctx, alert.ID, models.AlertUpdate{Status: strPtr(models.AlertStatusAcknowledged), AcknowledgedAt: &ts})
	require.NoError(t, err)
	require.NotNil(t, acked.AcknowledgedAt)
	assert.Equal(t, ts, *acked.AcknowledgedAt)
}

func TestManualEscalationStepsOneLevel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alert, err := f.svc.CreateAlert(ctx, newAlert(models.SeverityCritical, 1))
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	escalated, err := f.svc.UpdateAlert(ctx, alert.ID, models.AlertUpdate{Status: strPtr(models.AlertStatusEscalated)})
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusEscalated, escalated.Status)
	assert.Equal(t, 1, escalated.EscalationLevel)
	require.NotNil(t, escalated.NextEscalationAt)
	assert.Equal(t, f.clock.Now().Add(5*time.Minute), *escalated.NextEscalationAt)
	assert.Equal(t, 1, f.publisher.count("alert_escalated"))
	assert.Equal(t, []notified{{alert.ID, 0}, {alert.ID, 1}}, f.notifier.calls)

	other, err := f.svc.CreateAlert(ctx, newAlert(models.SeverityCritical, 2))
	require.NoError(t, err)
	two := 2
	_, err = f.svc.UpdateAlert(ctx, other.ID, models.AlertUpdate{Status: strPtr(models.AlertStatusEscalated), EscalationLevel: &two})
	assert.True(t, errs.IsValidation(err))
	assert.Zero(t, f.repo.get(other.ID).EscalationLevel)
}

func TestManualEscalationWithoutNextLevel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alert, err := f.svc.CreateAlert(ctx, newAlert(models.SeverityLow, 1))
	require.NoError(t, err)

	_, err = f.svc.UpdateAlert(ctx, alert.ID, models.AlertUpdate{Status: strPtr(models.AlertStatusEscalated)})
	assert.True(t, errs.IsValidation(err))

	stored := f.repo.get(alert.ID)
	assert.Equal(t, models.AlertStatusActive, stored.Status)
	assert.Zero(t, stored.EscalationLevel)
	assert.Zero(t, f.publisher.count("alert_escalated"))
}

func TestUpdateAlertEscalationLevelNeverDecreases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alert, err := f.svc.CreateAlert(ctx, newAlert(models.SeverityLow, 1))
	require.NoError(t, err)

	two := 2
	_, err = f.svc.UpdateAlert(ctx, alert.ID, models.AlertUpdate{EscalationLevel: &two})
	require.NoError(t, err)

	one := 1
	_, err = f.svc.UpdateAlert(ctx, alert.ID, models.AlertUpdate{EscalationLevel: &one})
	assert.True(t, errs.IsValidation(err))
	assert.Equal(t, 2, f.repo.get(alert.ID).EscalationLevel)
}

func TestUpdateAlertNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.UpdateAlert(context.Background(), 99, models.AlertUpdate{Status: strPtr(models.AlertStatusResolved)})
	assert.True(t, errs.IsNotFound(err))

	_, err = f.svc.GetAlert(context.Background(), 99)
	assert.True(t, errs.IsNotFound(err))
}

func TestProcessEscalationsAfterDeadline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alert, err := f.svc.CreateAlert(ctx, newAlert(models.SeverityCritical, 1))
	require.NoError(t, err)

	f.clock.Advance(4 * time.Minute)
	n, err := f.svc.ProcessEscalations(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(2 * time.Minute)
	n, err = f.svc.ProcessEscalations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored := f.repo.get(alert.ID)
	assert.Equal(t, models.AlertStatusEscalated, stored.Status)
	assert.Equal(t, 1, stored.EscalationLevel)
	require.NotNil(t, stored.NextEscalationAt)
	assert.Equal(t, f.clock.Now().Add(5*time.Minute), *stored.NextEscalationAt)
	assert.Equal(t, 1, f.publisher.count("alert_escalated"))

	n, err = f.svc.ProcessEscalations(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(6 * time.Minute)
	n, err = f.svc.ProcessEscalations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored = f.repo.get(alert.ID)
	assert.Equal(t, 2, stored.EscalationLevel)
	assert.Nil(t, stored.NextEscalationAt)

	f.clock.Advance(time.Hour)
	n, err = f.svc.ProcessEscalations(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Equal(t, []notified{{alert.ID, 0}, {alert.ID, 1}, {alert.ID, 2}}, f.notifier.calls)
}

func TestAcknowledgedAlertNeverEscalates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alert, err := f.svc.CreateAlert(ctx, newAlert(models.SeverityHigh, 1))
	require.NoError(t, err)

	f.clock.Advance(10 * time.Minute)
	_, err = f.svc.UpdateAlert(ctx, alert.ID, models.AlertUpdate{Status: strPtr(models.AlertStatusAcknowledged)})
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	n, err := f.svc.ProcessEscalations(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.svc.checkEscalation(alert.ID)

	stored := f.repo.get(alert.ID)
	assert.Equal(t, models.AlertStatusAcknowledged, stored.Status)
	assert.Zero(t, stored.EscalationLevel)
}

func TestTimerAndSweepEscalateOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alert, err := f.svc.CreateAlert(ctx, newAlert(models.SeverityHigh, 1))
	require.NoError(t, err)

	f.clock.Advance(16 * time.Minute)
	f.svc.checkEscalation(alert.ID)

	n, err := f.svc.ProcessEscalations(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	stored := f.repo.get(alert.ID)
	assert.Equal(t, 1, stored.EscalationLevel)
	assert.Nil(t, stored.NextEscalationAt)
}

func TestEscalateWithStaleSnapshotIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alert, err := f.svc.CreateAlert(ctx, newAlert(models.SeverityCritical, 1))
	require.NoError(t, err)
	f.clock.Advance(6 * time.Minute)

	ok, err := f.svc.escalateAlert(ctx, alert)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.escalateAlert(ctx, alert)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, f.repo.get(alert.ID).EscalationLevel)
}

func TestMarkNotificationSent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alert, err := f.svc.CreateAlert(ctx, newAlert(models.SeverityLow, 1))
	require.NoError(t, err)

	require.NoError(t, f.svc.MarkNotificationSent(ctx, alert.ID))
	assert.True(t, f.repo.get(alert.ID).NotificationSent)
	assert.True(t, errs.IsNotFound(f.svc.MarkNotificationSent(ctx, 1234)))
}

func TestGetActiveAlertsOrdersBySeverity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i, sev := range []string{models.SeverityLow, models.SeverityCritical, models.SeverityMedium} {
		_, err := f.svc.CreateAlert(ctx, newAlert(sev, int64(i+1)))
		require.NoError(t, err)
	}

	list, total, err := f.svc.GetActiveAlerts(ctx, models.AlertFilter{}, models.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, list, 3)
	assert.Equal(t, models.SeverityCritical, list[0].Severity)
	assert.Equal(t, models.SeverityLow, list[2].Severity)

	_, _, err = f.svc.GetActiveAlerts(ctx, models.AlertFilter{Severity: "urgent"}, models.Pagination{})
	assert.True(t, errs.IsValidation(err))
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(models.AlertStatusActive, models.AlertStatusEscalated))
	assert.True(t, CanTransition(models.AlertStatusEscalated, models.AlertStatusAcknowledged))
	assert.True(t, CanTransition(models.AlertStatusAcknowledged, models.AlertStatusResolved))
	assert.False(t, CanTransition(models.AlertStatusAcknowledged, models.AlertStatusActive))
	assert.False(t, CanTransition(models.AlertStatusResolved, models.AlertStatusActive))
	assert.False(t, CanTransition(models.AlertStatusActive, "closed"))
}
