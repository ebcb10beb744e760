package engine

import (
	"strconv"
	"time"

	"github.com/nerrad567/tagwatch-core/internal/catalog"
)

// Reading is a measured or threshold value. It is encoded in JSON as a
// string with two decimals, e.g. "81.00".
type Reading float64

// MarshalJSON implements json.Marshaler.
func (r Reading) MarshalJSON() ([]byte, error) {
	return strconv.AppendQuote(nil, r.String()), nil
}

// String formats the reading with two decimals.
func (r Reading) String() string {
	return strconv.FormatFloat(float64(r), 'f', 2, 64)
}

// Alarm is produced when a rule's condition holds for a sample. It is
// published once and never stored by the engine.
type Alarm struct {
	ID          string            `json:"id"`
	RuleID      int64             `json:"ruleId"`
	RuleName    string            `json:"ruleName"`
	TagID       int64             `json:"tagId"`
	Message     string            `json:"message"`
	Value       Reading           `json:"value"`
	Threshold   Reading           `json:"threshold"`
	Operator    catalog.Operator  `json:"operator"`
	Severity    catalog.Severity  `json:"severity"`
	Time        string            `json:"time"`
	LogicType   catalog.LogicType `json:"logicType"`
	TriggeredAt time.Time         `json:"triggeredAt"`
}

// alarmMessage is the rule's message, or "<name> violated!" when it has none.
func alarmMessage(r catalog.Rule) string {
	if r.Message != "" {
		return r.Message
	}
	return r.Name + " violated!"
}
