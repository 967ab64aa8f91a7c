// Package escalation holds the per-severity escalation rules and the
// in-process timer that makes escalation prompt between sweeps.
package escalation

import (
	"fmt"
	"os"
	"time"

	"facility-alerting/internal/models"

	"gopkg.in/yaml.v3"
)

// Level is one escalation step. Recipients are role names resolved by the
// notification dispatcher.
type Level struct {
	Level      int      `yaml:"level" json:"level"`
	Channels   []string `yaml:"channels" json:"channels"`
	Recipients []string `yaml:"recipients" json:"recipients"`
}

// Rule describes how an alert of one severity escalates. Levels[i] is
// notified while the alert sits at escalation level i.
type Rule struct {
	Severity          string  `yaml:"-" json:"severity"`
	EscalationMinutes int     `yaml:"escalation_minutes" json:"escalation_minutes"`
	Levels            []Level `yaml:"levels" json:"levels"`
}

// Delay is the wait before the next escalation check, zero when the rule
// never escalates on a timer.
func (r Rule) Delay() time.Duration {
	if r.EscalationMinutes <= 0 {
		return 0
	}
	return time.Duration(r.EscalationMinutes) * time.Minute
}

// LevelAt returns the level notified at escalation level i.
func (r Rule) LevelAt(i int) (Level, bool) {
	if i < 0 || i >= len(r.Levels) {
		return Level{}, false
	}
	return r.Levels[i], true
}

// HasNext reports whether an alert at level i can escalate further.
func (r Rule) HasNext(i int) bool {
	_, ok := r.LevelAt(i + 1)
	return ok && r.Delay() > 0
}

type Rules map[string]Rule

func DefaultRules() Rules {
	all := []string{models.ChannelEmail, models.ChannelSMS, models.ChannelTelegram, models.ChannelWebsocket}
	return Rules{
		models.SeverityCritical: {
			Severity:          models.SeverityCritical,
			EscalationMinutes: 5,
			Levels: []Level{
				{Level: 0, Channels: all, Recipients: []string{"facility_manager", "on_call_engineer"}},
				{Level: 1, Channels: all, Recipients: []string{"operations_manager"}},
				{Level: 2, Channels: []string{models.ChannelEmail, models.ChannelSMS}, Recipients: []string{"director"}},
			},
		},
		models.SeverityHigh: {
			Severity:          models.SeverityHigh,
			EscalationMinutes: 15,
			Levels: []Level{
				{Level: 0, Channels: []string{models.ChannelEmail, models.ChannelTelegram, models.ChannelWebsocket}, Recipients: []string{"facility_manager"}},
				{Level: 1, Channels: []string{models.ChannelEmail, models.ChannelSMS}, Recipients: []string{"operations_manager"}},
			},
		},
		models.SeverityMedium: {
			Severity:          models.SeverityMedium,
			EscalationMinutes: 60,
			Levels: []Level{
				{Level: 0, Channels: []string{models.ChannelEmail, models.ChannelWebsocket}, Recipients: []string{"facility_manager"}},
				{Level: 1, Channels: []string{models.ChannelEmail}, Recipients: []string{"operations_manager"}},
			},
		},
		models.SeverityLow: {
			Severity: models.SeverityLow,
			Levels: []Level{
				{Level: 0, Channels: []string{models.ChannelWebsocket}, Recipients: []string{"facility_manager"}},
			},
		},
	}
}

// For returns the rule for severity, falling back to the low rule.
func (r Rules) For(severity string) Rule {
	if rule, ok := r[severity]; ok {
		return rule
	}
	return r[models.SeverityLow]
}

// Delay is shorthand for r.For(severity).Delay().
func (r Rules) Delay(severity string) time.Duration {
	return r.For(severity).Delay()
}

// LoadRules reads a YAML rule file keyed by severity. Severities missing
// from the file keep their default rule. An empty path yields the defaults.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read escalation rules: %w", err)
	}

	var parsed map[string]Rule
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse escalation rules: %w", err)
	}

	for severity, rule := range parsed {
		if !models.ValidSeverity(severity) {
			return nil, fmt.Errorf("unknown severity %q in escalation rules", severity)
		}
		if len(rule.Levels) == 0 {
			return nil, fmt.Errorf("escalation rule %q has no levels", severity)
		}
		for i := range rule.Levels {
			rule.Levels[i].Level = i
		}
		rule.Severity = severity
		rules[severity] = rule
	}
	return rules, nil
}
