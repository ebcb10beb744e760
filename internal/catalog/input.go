package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Length limits for operator-entered text.
const (
	MaxNameLength    = 100
	MaxMessageLength = 500
)

// ConnectionChanges is a partial update to a connection. Nil fields are left as they are.
type ConnectionChanges struct {
	Name        *string `json:"name,omitempty"`
	EndpointURL *string `json:"endpoint_url,omitempty"`
	Description *string `json:"description,omitempty"`
	Enabled     *bool   `json:"enabled,omitempty"`
}

// Apply returns c with the non-nil changes merged in.
func (ch ConnectionChanges) Apply(c Connection) Connection {
	if ch.Name != nil {
		c.Name = *ch.Name
	}
	if ch.EndpointURL != nil {
		c.EndpointURL = *ch.EndpointURL
	}
	if ch.Description != nil {
		c.Description = *ch.Description
	}
	if ch.Enabled != nil {
		c.Enabled = *ch.Enabled
	}
	return c
}

// ValidateConnection checks the fields an operator supplies.
func ValidateConnection(c Connection) error {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidConnection)
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidConnection, MaxNameLength)
	}
	if !strings.HasPrefix(c.EndpointURL, "opc.tcp://") {
		return fmt.Errorf("%w: endpoint_url must start with opc.tcp://", ErrInvalidConnection)
	}
	return nil
}

// ValidateTag checks a tag before it is stored.
func ValidateTag(t Tag) error {
	if t.ConnectionID <= 0 {
		return fmt.Errorf("%w: connection_id is required", ErrInvalidTag)
	}
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%w: tag_name is required", ErrInvalidTag)
	}
	if strings.TrimSpace(t.NodeID) == "" {
		return fmt.Errorf("%w: node_id is required", ErrInvalidTag)
	}
	return nil
}

// OptionalFloat is a JSON number that also accepts a numeric string, an
// empty string or null. The latter two leave it unset.
type OptionalFloat struct {
	Value float64
	Set   bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *OptionalFloat) UnmarshalJSON(data []byte) error {
	raw, empty, err := optionalRaw(data)
	if err != nil || empty {
		*o = OptionalFloat{}
		return err
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q", raw)
	}
	*o = OptionalFloat{Value: v, Set: true}
	return nil
}

// Ptr returns nil when unset.
func (o OptionalFloat) Ptr() *float64 {
	if !o.Set {
		return nil
	}
	v := o.Value
	return &v
}

// OptionalID is an identifier with the same leniency as OptionalFloat.
// Zero counts as unset.
type OptionalID struct {
	Value int64
	Set   bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *OptionalID) UnmarshalJSON(data []byte) error {
	raw, empty, err := optionalRaw(data)
	if err != nil || empty {
		*o = OptionalID{}
		return err
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid identifier %q", raw)
	}
	*o = OptionalID{Value: v, Set: v != 0}
	return nil
}

func optionalRaw(data []byte) (raw string, empty bool, err error) {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return "", true, nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", false, err
		}
		s = strings.TrimSpace(s)
		return s, s == "", nil
	}
	return string(data), len(data) == 0, nil
}

// RuleInput is the body accepted when creating or replacing a rule.
type RuleInput struct {
	Name        string        `json:"name"`
	TagID       OptionalID    `json:"tag_id"`
	LogicType   string        `json:"logic_type"`
	Operator    string        `json:"operator"`
	StaticValue OptionalFloat `json:"static_value"`
	TargetTagID OptionalID    `json:"target_tag_id"`
	OffsetValue OptionalFloat `json:"offset_value"`
	Severity    string        `json:"severity"`
	Message     string        `json:"message"`
	Enabled     *bool         `json:"enabled"`
}

// Rule validates the input and builds a Rule, applying the defaults:
// logic type static, severity warning, offset 0, enabled.
func (in RuleInput) Rule() (Rule, error) {
	r := Rule{
		Name:     strings.TrimSpace(in.Name),
		TagID:    in.TagID.Value,
		Operator: Operator(strings.TrimSpace(in.Operator)),
		Severity: Severity(strings.ToLower(strings.TrimSpace(in.Severity))),
		Message:  strings.TrimSpace(in.Message),
		Enabled:  true,
	}
	if in.Enabled != nil {
		r.Enabled = *in.Enabled
	}
	if r.Severity == "" {
		r.Severity = SeverityWarning
	}

	logicType := strings.ToLower(strings.TrimSpace(in.LogicType))
	if logicType == "" {
		logicType = string(LogicStatic)
	}
	r.RawLogicType = logicType

	switch {
	case r.Name == "":
		return Rule{}, fmt.Errorf("%w: name is required", ErrInvalidRule)
	case len(r.Name) > MaxNameLength:
		return Rule{}, fmt.Errorf("%w: name exceeds %d characters", ErrInvalidRule, MaxNameLength)
	case len(r.Message) > MaxMessageLength:
		return Rule{}, fmt.Errorf("%w: message exceeds %d characters", ErrInvalidRule, MaxMessageLength)
	case !in.TagID.Set:
		return Rule{}, fmt.Errorf("%w: tag_id is required", ErrInvalidRule)
	case !r.Operator.Valid():
		return Rule{}, fmt.Errorf("%w: operator %q is not one of > < == != >= <=", ErrInvalidRule, in.Operator)
	case !r.Severity.Valid():
		return Rule{}, fmt.Errorf("%w: severity %q is not one of info, warning, critical", ErrInvalidRule, in.Severity)
	}

	switch LogicType(logicType) {
	case LogicStatic:
		if !in.StaticValue.Set {
			return Rule{}, fmt.Errorf("%w: static_value is required for static rules", ErrInvalidRule)
		}
		r.Logic = StaticLogic{Value: in.StaticValue.Value}
	case LogicCompare:
		if !in.TargetTagID.Set {
			return Rule{}, fmt.Errorf("%w: target_tag_id is required for compare rules", ErrInvalidRule)
		}
		r.Logic = CompareLogic{TargetTagID: in.TargetTagID.Value, Offset: in.OffsetValue.Value}
	default:
		return Rule{}, fmt.Errorf("%w: logic_type %q is not static or compare", ErrInvalidRule, in.LogicType)
	}

	return r, nil
}

// checkRuleRefs verifies that r has logic and that the tags it names exist.
func checkRuleRefs(ctx context.Context, r Rule, getTag func(context.Context, int64) (Tag, error)) error {
	if r.Logic == nil {
		return fmt.Errorf("%w: logic is required", ErrInvalidRule)
	}
	ids := []int64{r.TagID}
	if c, ok := r.Logic.(CompareLogic); ok {
		ids = append(ids, c.TargetTagID)
	}
	for _, id := range ids {
		if _, err := getTag(ctx, id); err != nil {
			if errors.Is(err, ErrTagNotFound) {
				return fmt.Errorf("%w: tag %d does not exist", ErrInvalidRule, id)
			}
			return err
		}
	}
	return nil
}
