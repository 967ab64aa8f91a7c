// Package notification delivers escalation-level notifications for alerts
// through a bounded worker pool.
package notification

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"facility-alerting/internal/errs"
	"facility-alerting/internal/escalation"
	"facility-alerting/internal/logging"
	"facility-alerting/internal/metrics"
	"facility-alerting/internal/models"
	"facility-alerting/internal/providers"
	"facility-alerting/internal/realtime"
)

const (
	DefaultQueueSize  = 500
	DefaultMaxWorkers = 10

	taskTimeout = time.Minute
)

// DeliveredFunc is called once per task when at least one delivery
// succeeded.
type DeliveredFunc func(ctx context.Context, alertID int64) error

type task struct {
	alert    models.Alert
	level    escalation.Level
	queuedAt time.Time
}

type Options struct {
	Directory   Directory
	Log         DeliveryLog
	Providers   map[string]providers.Provider
	Publisher   realtime.Publisher
	OnDelivered DeliveredFunc
	QueueSize   int
	MaxWorkers  int
	Logger      *logging.Logger
}

// Dispatcher queues notification tasks and resolves, sends and records
// them on its workers.
type Dispatcher struct {
	directory   Directory
	log         DeliveryLog
	providers   map[string]providers.Provider
	publisher   realtime.Publisher
	onDelivered DeliveredFunc
	maxWorkers  int
	logger      *logging.Logger

	tasks  chan task
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
}

func New(opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = DefaultMaxWorkers
	}
	if opts.Publisher == nil {
		opts.Publisher = realtime.Noop{}
	}
	if opts.Providers == nil {
		opts.Providers = map[string]providers.Provider{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		directory:   opts.Directory,
		log:         opts.Log,
		providers:   opts.Providers,
		publisher:   opts.Publisher,
		onDelivered: opts.OnDelivered,
		maxWorkers:  opts.MaxWorkers,
		logger:      opts.Logger,
		tasks:       make(chan task, opts.QueueSize),
		ctx:         ctx,
		cancel:      cancel,
		now:         time.Now,
	}
}

// SetOnDelivered installs the delivered hook. Call before Start.
func (d *Dispatcher) SetOnDelivered(fn DeliveredFunc) {
	d.onDelivered = fn
}

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	for i := 0; i < d.maxWorkers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	d.logger.Infof("Notification dispatcher started with %d workers", d.maxWorkers)
}

// Stop cancels the workers and waits for them. Queued tasks are dropped.
func (d *Dispatcher) Stop() {
	d.cancel()
	d.wg.Wait()
	if n := len(d.tasks); n > 0 {
		d.logger.Warnf("Notification dispatcher stopped with %d queued task(s)", n)
	}
}

// Notify enqueues delivery of level for alert. It never blocks; when the
// queue is full the task is dropped and logged.
func (d *Dispatcher) Notify(_ context.Context, alert models.Alert, level escalation.Level) {
	t := task{alert: alert, level: level, queuedAt: d.now()}
	select {
	case d.tasks <- t:
		d.logger.Debugf("Queued notification: alert_id=%d level=%d", alert.ID, level.Level)
	default:
		d.logger.Errorf("Queue full, dropping notification: alert_id=%d level=%d", alert.ID, level.Level)
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			d.logger.Debugf("Notification worker %d stopped", id)
			return
		case t := <-d.tasks:
			ctx, cancel := context.WithTimeout(d.ctx, taskTimeout)
			d.handle(ctx, t)
			cancel()
		}
	}
}

// handle delivers one task and returns the number of successful deliveries.
func (d *Dispatcher) handle(ctx context.Context, t task) int {
	log := d.logger.WithFields(map[string]interface{}{"alert_id": t.alert.ID, "level": t.level.Level})
	msg := Render(t.alert, t.level)
	sent := 0

	if slices.Contains(t.level.Channels, models.ChannelWebsocket) {
		d.publisher.EmitToBuilding(ctx, realtime.ChannelFor(t.alert.BuildingID), realtime.EventAlertNotification, map[string]any{
			"alert":   t.alert,
			"level":   t.level.Level,
			"subject": msg.Subject,
		})
		d.record(ctx, t, models.ChannelWebsocket, realtime.ChannelFor(t.alert.BuildingID), nil)
		sent++
	}

	contacts, err := d.contacts(ctx, t)
	if err != nil {
		log.Errorf("Failed to resolve contacts: %v", err)
	}

	for _, cp := range contacts {
		err := d.send(ctx, msg, cp)
		d.record(ctx, t, cp.Type, cp.Address(), err)
		if err != nil {
			log.Errorf("%v", err)
			continue
		}
		sent++
	}

	if sent == 0 {
		log.Warnf("No notification delivered for %d recipient role(s)", len(t.level.Recipients))
		return 0
	}
	log.Infof("Delivered %d notification(s), queued %s ago", sent, d.now().Sub(t.queuedAt).Round(time.Millisecond))

	if d.onDelivered != nil {
		if err := d.onDelivered(ctx, t.alert.ID); err != nil {
			log.Errorf("Failed to mark notification sent: %v", err)
		}
	}
	return sent
}

// contacts resolves the level's roles and adds the threshold's
// notification emails when the level uses email.
func (d *Dispatcher) contacts(ctx context.Context, t task) ([]models.ContactPoint, error) {
	var channels []string
	for _, c := range t.level.Channels {
		if c != models.ChannelWebsocket {
			channels = append(channels, c)
		}
	}

	var out []models.ContactPoint
	var err error
	if d.directory != nil && len(channels) > 0 {
		out, err = d.directory.ContactsFor(ctx, t.level.Recipients, channels, t.alert.BuildingID)
	}

	if slices.Contains(channels, models.ChannelEmail) {
		for _, addr := range notificationEmails(t.alert) {
			out = append(out, models.ContactPoint{
				Name:          addr,
				Role:          "threshold_subscriber",
				Type:          models.ChannelEmail,
				Configuration: map[string]interface{}{"email": addr},
				Status:        "active",
			})
		}
	}
	return dedupe(out), err
}

func (d *Dispatcher) send(ctx context.Context, msg models.Message, cp models.ContactPoint) error {
	provider, ok := d.providers[cp.Type]
	if !ok {
		return &errs.NotificationError{Channel: cp.Type, Recipient: cp.Address(), Err: fmt.Errorf("no provider configured")}
	}
	if err := provider.Send(ctx, msg, cp); err != nil {
		return &errs.NotificationError{Channel: cp.Type, Recipient: cp.Address(), Err: err}
	}
	return nil
}

func (d *Dispatcher) record(ctx context.Context, t task, channel, recipient string, sendErr error) {
	status := models.DeliveryStatusSent
	var errText string
	if sendErr != nil {
		status = models.DeliveryStatusFailed
		errText = sendErr.Error()
	}
	metrics.NotificationDelivered(channel, status)

	if d.log == nil {
		return
	}
	err := d.log.Record(ctx, models.AlertNotification{
		AlertID:         t.alert.ID,
		EscalationLevel: t.level.Level,
		Channel:         channel,
		Recipient:       recipient,
		Status:          status,
		Error:           errText,
		CreatedAt:       d.now(),
	})
	if err != nil {
		d.logger.WithField("alert_id", t.alert.ID).Warnf("Failed to record %s delivery: %v", channel, err)
	}
}

// Render builds the message for an alert at an escalation level.
func Render(alert models.Alert, level escalation.Level) models.Message {
	subject := fmt.Sprintf("[%s] %s", strings.ToUpper(alert.Severity), alert.Title)
	if level.Level > 0 {
		subject = fmt.Sprintf("[ESCALATED L%d] %s", level.Level, subject)
	}

	var b strings.Builder
	b.WriteString(alert.Message)
	if alert.BuildingID != nil {
		fmt.Fprintf(&b, "\nBuilding: %d", *alert.BuildingID)
	}
	if alert.EquipmentID != nil {
		fmt.Fprintf(&b, "\nEquipment: %d", *alert.EquipmentID)
	}
	if alert.DetectedValue != nil {
		fmt.Fprintf(&b, "\nValue: %.2f", *alert.DetectedValue)
	}
	if alert.ThresholdValue != nil {
		fmt.Fprintf(&b, "\nThreshold: %.2f", *alert.ThresholdValue)
	}
	fmt.Fprintf(&b, "\nAlert ID: %d", alert.ID)

	return models.Message{Subject: subject, Body: b.String(), AlertID: alert.ID, Level: level.Level}
}

func notificationEmails(alert models.Alert) []string {
	raw, ok := alert.Metadata["notification_emails"]
	if !ok {
		raw = alert.ThresholdConfig["notification_emails"]
	}
	var out []string
	switch v := raw.(type) {
	case []string:
		out = append(out, v...)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

func dedupe(cps []models.ContactPoint) []models.ContactPoint {
	seen := make(map[string]bool, len(cps))
	out := make([]models.ContactPoint, 0, len(cps))
	for _, cp := range cps {
		key := cp.Type + "|" + strings.ToLower(cp.Address())
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, cp)
	}
	return out
}
