package domain

import "time"

// AuthorKind identifies who wrote a message.
type AuthorKind string

const (
	AuthorUser  AuthorKind = "user"
	AuthorAgent AuthorKind = "agent"
)

// Conversation is a message thread owned by one agent.
// WorkNew and WorkDone record the last time work was requested and finished.
type Conversation struct {
	ID       int64      `json:"id" mapstructure:"id"`
	UID      string     `json:"uid" mapstructure:"uid"`
	AgentID  int64      `json:"agent_id" mapstructure:"agent_id"`
	Title    string     `json:"title,omitempty" mapstructure:"title"`
	WorkNew  *time.Time `json:"work_tnew,omitempty" mapstructure:"work_tnew"`
	WorkDone *time.Time `json:"work_tdone,omitempty" mapstructure:"work_tdone"`
	CTime    time.Time  `json:"ctime" mapstructure:"ctime"`
	MTime    time.Time  `json:"mtime" mapstructure:"mtime"`
}

// HasPendingWork reports whether work was requested after it last finished.
func (c *Conversation) HasPendingWork() bool {
	if c.WorkNew == nil {
		return false
	}
	return c.WorkDone == nil || c.WorkDone.Before(*c.WorkNew)
}

// Message is one entry of a conversation.
// OrigMsgID is set on agent answers and points to the user message they answer.
type Message struct {
	ID         int64      `json:"id" mapstructure:"id"`
	UID        string     `json:"uid" mapstructure:"uid"`
	ConvID     int64      `json:"conv_id" mapstructure:"conv_id"`
	OrigMsgID  *int64     `json:"orig_msg_id,omitempty" mapstructure:"orig_msg_id"`
	AuthorKind AuthorKind `json:"author_kind" mapstructure:"author_kind"`
	AgentID    *int64     `json:"agent_id,omitempty" mapstructure:"agent_id"`
	Content    string     `json:"content" mapstructure:"content"`
	CTime      time.Time  `json:"ctime" mapstructure:"ctime"`
	MTime      time.Time  `json:"mtime" mapstructure:"mtime"`
}
