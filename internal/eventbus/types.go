package eventbus

import (
	"time"
)

// Topic identifies a logical channel on the bus.
type Topic string

// Standard topics.
const (
	TopicLifecycleState  Topic = "lifecycle.state"
	TopicNetReconnect    Topic = "net.reconnect"
	TopicTagsAdmitted    Topic = "tags.admitted"
	TopicPortalScanned   Topic = "portal.scanned"
	TopicPortalSubmitted Topic = "portal.submitted"
	TopicNotifyResult    Topic = "notify.result"
)

// Source describes which component produced an event.
type Source string

const (
	SourceJoinManager Source = "join_manager"
	SourceController  Source = "controller"
	SourcePortal      Source = "portal"
	SourceNotifier    Source = "notifier"
	SourceConsole     Source = "console"
	SourceUnknown     Source = "unknown"
)

// Envelope wraps every message published on the bus.
type Envelope struct {
	Topic         Topic
	Timestamp     time.Time
	Source        Source
	CorrelationID string
	Payload       any
}

// StateChangeEvent notifies consumers about lifecycle transitions.
type StateChangeEvent struct {
	Previous string
	Next     string
	Reason   string
}

// ReconnectEvent is emitted each time the join manager issues a
// reconnect attempt while the link is down.
type ReconnectEvent struct {
	Attempt int
	At      time.Time
}

// TagEvent carries one admitted (deduplicated) tag read.
type TagEvent struct {
	TagID  string
	SeenAt time.Time
}

// NetworkListEvent carries the SSIDs captured when entering provisioning.
type NetworkListEvent struct {
	Networks []string
}

// ProvisionEvent records a successful credential submission. The password
// is deliberately not carried on the bus.
type ProvisionEvent struct {
	SSID      string
	SessionID string
}

// NotifyResultEvent reports the outcome of one outbound notification.
type NotifyResultEvent struct {
	TagID  string
	URL    string
	Status int
	Err    string
}

// ---------------------------------------------------------------------------
// Typed topic descriptors
// ---------------------------------------------------------------------------
// Each TopicDef binds a Topic constant to its payload type, enabling
// compile-time enforcement via Publish[T] and Subscribe[T].

// Lifecycle groups device lifecycle topic descriptors.
var Lifecycle = struct {
	State     TopicDef[StateChangeEvent]
	Reconnect TopicDef[ReconnectEvent]
}{
	State:     NewTopicDef[StateChangeEvent](TopicLifecycleState),
	Reconnect: NewTopicDef[ReconnectEvent](TopicNetReconnect),
}

// Tags groups tag-read topic descriptors.
var Tags = struct {
	Admitted TopicDef[TagEvent]
}{
	Admitted: NewTopicDef[TagEvent](TopicTagsAdmitted),
}

// Portal groups provisioning-portal topic descriptors.
var Portal = struct {
	Scanned   TopicDef[NetworkListEvent]
	Submitted TopicDef[ProvisionEvent]
}{
	Scanned:   NewTopicDef[NetworkListEvent](TopicPortalScanned),
	Submitted: NewTopicDef[ProvisionEvent](TopicPortalSubmitted),
}

// Notify groups outbound-notification topic descriptors.
var Notify = struct {
	Result TopicDef[NotifyResultEvent]
}{
	Result: NewTopicDef[NotifyResultEvent](TopicNotifyResult),
}
