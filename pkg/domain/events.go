package domain

import "time"

// TopicConvWork is the hub topic used to wake conversation workers.
const TopicConvWork = "conv.work"

// WorkKind defines the category of a work event.
type WorkKind string

const (
	WorkNew  WorkKind = "work_new"
	WorkDone WorkKind = "work_done"
)

// WorkEvent is the payload published on TopicConvWork.
type WorkEvent struct {
	Kind   WorkKind  `json:"kind" cbor:"kind"`
	ConvID int64     `json:"conv_id" cbor:"conv_id"`
	At     time.Time `json:"at" cbor:"at"`
}
