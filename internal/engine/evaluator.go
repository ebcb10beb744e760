package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/tagwatch-core/internal/catalog"
	"github.com/nerrad567/tagwatch-core/internal/infrastructure/metrics"
)

// DefaultTimeFormat renders the alarm clock time.
const DefaultTimeFormat = "15:04:05"

// RuleSource lists the rules that apply to a tag.
type RuleSource interface {
	ListEnabledRulesForTag(ctx context.Context, tagID int64) ([]catalog.Rule, error)
}

// Logger is the logging interface used by the evaluator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures an Evaluator. The zero value is usable.
type Options struct {
	Logger     Logger
	Metrics    *metrics.Metrics
	Location   *time.Location
	TimeFormat string

	// Now and NewID are replaced in tests.
	Now   func() time.Time
	NewID func() string
}

// Evaluator turns samples into alarms.
//
// Thread Safety:
//   - Evaluate may be called concurrently from every session.
type Evaluator struct {
	cache   *Cache
	rules   RuleSource
	logger  Logger
	metrics *metrics.Metrics
	loc     *time.Location
	format  string
	now     func() time.Time
	newID   func() string
}

// NewEvaluator creates an evaluator reading rules from rules and sharing cache.
func NewEvaluator(cache *Cache, rules RuleSource, opts Options) *Evaluator {
	e := &Evaluator{
		cache:   cache,
		rules:   rules,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		loc:     opts.Location,
		format:  opts.TimeFormat,
		now:     opts.Now,
		newID:   opts.NewID,
	}
	if e.logger == nil {
		e.logger = noopLogger{}
	}
	if e.loc == nil {
		e.loc = time.Local
	}
	if e.format == "" {
		e.format = DefaultTimeFormat
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newID == nil {
		e.newID = newAlarmID
	}
	return e
}

// Cache returns the cache the evaluator writes to.
func (e *Evaluator) Cache() *Cache {
	return e.cache
}

// Evaluate records value as the latest sample of tagID and returns an alarm
// for every enabled rule on tagID whose condition holds.
//
// The cache is updated before anything else, even when listing rules fails.
// Malformed rules are logged and skipped; they never stop the remaining
// rules from being checked. The returned error only reports a failure to
// list rules.
func (e *Evaluator) Evaluate(ctx context.Context, tagID int64, value float64) ([]Alarm, error) {
	e.cache.Set(tagID, value)

	rules, err := e.rules.ListEnabledRulesForTag(ctx, tagID)
	if err != nil {
		return nil, fmt.Errorf("listing rules for tag %d: %w", tagID, err)
	}

	var alarms []Alarm
	for _, rule := range rules {
		threshold, err := e.Threshold(rule)
		if err != nil {
			e.skip(rule, err)
			continue
		}

		hit, err := Compare(rule.Operator, value, threshold)
		if err != nil {
			e.skip(rule, err)
			continue
		}
		if !hit {
			continue
		}

		alarm := e.newAlarm(rule, tagID, value, threshold)
		e.metrics.AlarmFired(string(alarm.Severity))
		e.logger.Warn("alarm triggered",
			"severity", alarm.Severity,
			"rule", rule.Name,
			"rule_id", rule.ID,
			"tag_id", tagID,
			"value", alarm.Value.String(),
			"operator", rule.Operator,
			"threshold", alarm.Threshold.String(),
		)
		alarms = append(alarms, alarm)
	}
	return alarms, nil
}

// Threshold resolves the comparison point of rule from the current cache.
func (e *Evaluator) Threshold(rule catalog.Rule) (float64, error) {
	switch l := rule.Logic.(type) {
	case catalog.StaticLogic:
		return l.Value, nil
	case catalog.CompareLogic:
		return e.cache.Value(l.TargetTagID) + l.Offset, nil
	default:
		return 0, fmt.Errorf("%w: logic type %q", ErrMalformedRule, rule.RawLogicType)
	}
}

// Compare applies op to (value, threshold). Equality is exact.
func Compare(op catalog.Operator, value, threshold float64) (bool, error) {
	switch op {
	case catalog.OpGreater:
		return value > threshold, nil
	case catalog.OpLess:
		return value < threshold, nil
	case catalog.OpEqual:
		return value == threshold, nil
	case catalog.OpNotEqual:
		return value != threshold, nil
	case catalog.OpGreaterEqual:
		return value >= threshold, nil
	case catalog.OpLessEqual:
		return value <= threshold, nil
	}
	return false, fmt.Errorf("%w: %q", ErrUnknownOperator, op)
}

func (e *Evaluator) skip(rule catalog.Rule, err error) {
	e.metrics.RuleSkipped()
	e.logger.Warn("skipping rule",
		"rule_id", rule.ID,
		"rule", rule.Name,
		"tag_id", rule.TagID,
		"error", err,
	)
}

func (e *Evaluator) newAlarm(rule catalog.Rule, tagID int64, value, threshold float64) Alarm {
	now := e.now()
	return Alarm{
		ID:          e.newID(),
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		TagID:       tagID,
		Message:     alarmMessage(rule),
		Value:       Reading(value),
		Threshold:   Reading(threshold),
		Operator:    rule.Operator,
		Severity:    rule.Severity,
		Time:        now.In(e.loc).Format(e.format),
		LogicType:   rule.LogicType(),
		TriggeredAt: now.UTC(),
	}
}

// newAlarmID returns a UUIDv7: a millisecond timestamp followed by random bits.
func newAlarmID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
