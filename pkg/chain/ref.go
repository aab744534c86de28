package chain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// RefKind tells how an AgentRef designates its agent.
type RefKind int

const (
	// RefSelf refers to the chain's own agent.
	RefSelf RefKind = iota
	RefID
	RefUID
	RefName
)

// AgentRef is a symbolic reference to an agent, resolved at walk time.
type AgentRef struct {
	Kind RefKind
	ID   int64
	UID  string
	Name string
}

// Self refers to the chain's own agent.
func Self() AgentRef { return AgentRef{Kind: RefSelf} }

// ByID refers to an agent by numeric id.
func ByID(id int64) AgentRef { return AgentRef{Kind: RefID, ID: id} }

// ByUID refers to an agent by uid.
func ByUID(uid string) AgentRef { return AgentRef{Kind: RefUID, UID: uid} }

// ByName refers to the first agent with the given name.
func ByName(name string) AgentRef { return AgentRef{Kind: RefName, Name: name} }

// IsSelf reports whether the reference points at the chain's own agent.
func (r AgentRef) IsSelf() bool { return r.Kind == RefSelf }

func (r AgentRef) String() string {
	switch r.Kind {
	case RefID:
		return "id:" + strconv.FormatInt(r.ID, 10)
	case RefUID:
		return "uid:" + r.UID
	case RefName:
		return "name:" + r.Name
	default:
		return "self"
	}
}

// UnmarshalJSON accepts "self" or an object carrying one of uid, id or name.
// An object with none of them refers to the chain's own agent.
func (r *AgentRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s != "self" {
			return fmt.Errorf("invalid agent reference %q: only \"self\" is allowed as a string", s)
		}
		*r = Self()
		return nil
	}

	var obj struct {
		ID   *int64  `json:"id"`
		UID  *string `json:"uid"`
		Name *string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	switch {
	case obj.UID != nil:
		*r = ByUID(*obj.UID)
	case obj.ID != nil:
		*r = ByID(*obj.ID)
	case obj.Name != nil:
		*r = ByName(*obj.Name)
	default:
		*r = Self()
	}
	return nil
}

func (r AgentRef) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case RefID:
		return json.Marshal(map[string]int64{"id": r.ID})
	case RefUID:
		return json.Marshal(map[string]string{"uid": r.UID})
	case RefName:
		return json.Marshal(map[string]string{"name": r.Name})
	default:
		return []byte(`"self"`), nil
	}
}
