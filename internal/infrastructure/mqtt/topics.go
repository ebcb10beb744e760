package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when the configuration leaves topic_prefix empty.
const DefaultTopicPrefix = "tagwatch"

// Topics builds the Tagwatch topic hierarchy under a common prefix:
//
//	{prefix}/live/{connection_id}/{tag_id}   live tag values
//	{prefix}/alarm/{severity}                fired alarms
//	{prefix}/event/{name}                    any other event
//	{prefix}/system/status                   online/offline (retained, LWT)
type Topics struct {
	Prefix string
}

// NewTopics returns a builder rooted at prefix, trimming stray slashes.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// Live returns the topic for a tag's live value.
//
// Example: tagwatch/live/3/17
func (t Topics) Live(connectionID, tagID int64) string {
	return fmt.Sprintf("%s/live/%d/%d", t.prefix(), connectionID, tagID)
}

// Alarm returns the topic for alarms of one severity.
//
// Example: tagwatch/alarm/critical
func (t Topics) Alarm(severity string) string {
	if severity == "" {
		severity = "unknown"
	}
	return fmt.Sprintf("%s/alarm/%s", t.prefix(), severity)
}

// Event returns the topic for a named event with no dedicated builder.
func (t Topics) Event(name string) string {
	return fmt.Sprintf("%s/event/%s", t.prefix(), name)
}

// SystemStatus returns the retained online/offline topic.
func (t Topics) SystemStatus() string {
	return t.prefix() + "/system/status"
}

// AllLive matches every live value topic.
func (t Topics) AllLive() string {
	return t.prefix() + "/live/#"
}

// AllAlarms matches every alarm topic.
func (t Topics) AllAlarms() string {
	return t.prefix() + "/alarm/+"
}
