package notify

import (
	"time"

	"github.com/MrEthical07/goMFA/method"
)

// Type names an event.
type Type string

const (
	MethodAdded       Type = "method_added"
	MethodRemoved     Type = "method_removed"
	AllMethodsRemoved Type = "all_methods_removed"
)

// Event is an immutable notification about a member's MFA setup.
type Event struct {
	Type        Type              `json:"type"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	MemberID    string            `json:"member_id"`
	Email       string            `json:"email,omitempty"`
	Method      string            `json:"method,omitempty"`
	Data        map[string]string `json:"data,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

// NewMethodAddedEvent describes m being registered by member.
func NewMethodAddedEvent(member method.Member, m method.Method, at time.Time) Event {
	return Event{
		Type:        MethodAdded,
		Title:       "A sign-in method was added to your account",
		Description: m.Name() + " can now be used to verify your identity when you sign in.",
		MemberID:    member.ID,
		Email:       member.Email,
		Method:      m.URLSegment(),
		Timestamp:   at.UTC(),
	}
}

// NewMethodRemovedEvent describes m being removed from member.
func NewMethodRemovedEvent(member method.Member, m method.Method, at time.Time) Event {
	return Event{
		Type:        MethodRemoved,
		Title:       "A sign-in method was removed from your account",
		Description: m.Name() + " can no longer be used to verify your identity.",
		MemberID:    member.ID,
		Email:       member.Email,
		Method:      m.URLSegment(),
		Timestamp:   at.UTC(),
	}
}

// NewAllMethodsRemovedEvent describes member no longer having any method.
func NewAllMethodsRemovedEvent(member method.Member, at time.Time) Event {
	return Event{
		Type:        AllMethodsRemoved,
		Title:       "Multi-factor authentication is off for your account",
		Description: "Every additional sign-in method has been removed. Only your password now protects your account.",
		MemberID:    member.ID,
		Email:       member.Email,
		Timestamp:   at.UTC(),
	}
}

// WithData returns a copy of e with key set in its datum map. Email
// delivery reads "from" and "replyTo".
func (e Event) WithData(key, value string) Event {
	data := make(map[string]string, len(e.Data)+1)
	for k, v := range e.Data {
		data[k] = v
	}
	data[key] = value
	e.Data = data
	return e
}
