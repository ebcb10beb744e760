package catalog

import (
	"encoding/json"
	"time"
)

// Connection is one configured endpoint.
//
// Enabled is administrative intent. Status is the last observed live state
// and is only ever a mirror of what the monitor reports.
type Connection struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	EndpointURL string    `json:"endpoint_url"`
	Description string    `json:"description"`
	Enabled     bool      `json:"enabled"`
	Status      bool      `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Tag is one monitored node on a connection. Tags are read once when a
// session starts, so edits only take effect after a restart.
type Tag struct {
	ID           int64     `json:"id"`
	ConnectionID int64     `json:"connection_id"`
	Name         string    `json:"tag_name"`
	NodeID       string    `json:"node_id"`
	Unit         string    `json:"unit"`
	CreatedAt    time.Time `json:"created_at"`
}

// LogicType discriminates the two kinds of rule logic.
type LogicType string

const (
	LogicStatic  LogicType = "static"
	LogicCompare LogicType = "compare"
)

// Operator is the comparison applied between a sample and a threshold.
type Operator string

const (
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
)

// Valid reports whether o is one of the six supported operators.
func (o Operator) Valid() bool {
	switch o {
	case OpGreater, OpLess, OpEqual, OpNotEqual, OpGreaterEqual, OpLessEqual:
		return true
	}
	return false
}

// Severity grades an alarm.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	}
	return false
}

// Logic is the threshold source of a rule: StaticLogic or CompareLogic.
type Logic interface {
	Type() LogicType
	isLogic()
}

// StaticLogic compares a sample against a fixed value.
type StaticLogic struct {
	Value float64
}

// CompareLogic compares a sample against another tag's last value plus an offset.
type CompareLogic struct {
	TargetTagID int64
	Offset      float64
}

func (StaticLogic) Type() LogicType  { return LogicStatic }
func (CompareLogic) Type() LogicType { return LogicCompare }
func (StaticLogic) isLogic()         {}
func (CompareLogic) isLogic()        {}

// Rule is an alarm condition on one tag. Logic is nil when the stored row
// could not be decoded; RawLogicType then keeps what was stored.
type Rule struct {
	ID           int64
	Name         string
	TagID        int64
	Operator     Operator
	Logic        Logic
	RawLogicType string
	Severity     Severity
	Message      string
	Enabled      bool
	CreatedAt    time.Time
}

// LogicType returns the rule's logic discriminator, falling back to the
// stored value when the logic is malformed.
func (r Rule) LogicType() LogicType {
	if r.Logic != nil {
		return r.Logic.Type()
	}
	return LogicType(r.RawLogicType)
}

// ruleJSON is the flat wire shape used by the management API and UI.
type ruleJSON struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	TagID       int64     `json:"tag_id"`
	LogicType   LogicType `json:"logic_type"`
	Operator    Operator  `json:"operator"`
	StaticValue *float64  `json:"static_value"`
	TargetTagID *int64    `json:"target_tag_id"`
	OffsetValue float64   `json:"offset_value"`
	Severity    Severity  `json:"severity"`
	Message     string    `json:"message"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
}

// MarshalJSON flattens Logic into the static_value / target_tag_id /
// offset_value columns.
func (r Rule) MarshalJSON() ([]byte, error) {
	out := ruleJSON{
		ID:        r.ID,
		Name:      r.Name,
		TagID:     r.TagID,
		LogicType: r.LogicType(),
		Operator:  r.Operator,
		Severity:  r.Severity,
		Message:   r.Message,
		Enabled:   r.Enabled,
		CreatedAt: r.CreatedAt,
	}
	switch l := r.Logic.(type) {
	case StaticLogic:
		out.StaticValue = &l.Value
	case CompareLogic:
		out.TargetTagID = &l.TargetTagID
		out.OffsetValue = l.Offset
	}
	return json.Marshal(out)
}

// logicColumns returns the nullable column values stored for logic.
func logicColumns(l Logic) (logicType string, static *float64, target *int64, offset float64) {
	switch v := l.(type) {
	case StaticLogic:
		return string(LogicStatic), &v.Value, nil, 0
	case CompareLogic:
		return string(LogicCompare), nil, &v.TargetTagID, v.Offset
	}
	return "", nil, nil, 0
}

// DecodeLogic builds the sum type from stored columns. A static rule needs a
// static value; a compare rule needs a target tag.
func DecodeLogic(logicType string, static *float64, target *int64, offset *float64) (Logic, error) {
	switch LogicType(logicType) {
	case LogicStatic:
		if static == nil {
			return nil, ErrMalformedLogic
		}
		return StaticLogic{Value: *static}, nil
	case LogicCompare:
		if target == nil || *target <= 0 {
			return nil, ErrMalformedLogic
		}
		var off float64
		if offset != nil {
			off = *offset
		}
		return CompareLogic{TargetTagID: *target, Offset: off}, nil
	}
	return nil, ErrMalformedLogic
}
