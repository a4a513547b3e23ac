// Package protocol defines the JSON wire format: inbound commands and
// outbound responses, both tagged unions on the "kind" field.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Inbound command kinds.
const (
	KindListPubs    = "ListPubs"
	KindSetName     = "SetName"
	KindGetPerson   = "GetPerson"
	KindCreatePub   = "CreatePub"
	KindLeavePub    = "LeavePub"
	KindJoinPub     = "JoinPub"
	KindDeletePub   = "DeletePub"
	KindCreateTable = "CreateTable"
	KindListTables  = "ListTables"
	KindJoinTable   = "JoinTable"
	KindDeleteTable = "DeleteTable"
	KindLeaveTable  = "LeaveTable"
	KindSend        = "Send"
	KindPing        = "Ping"
)

// Command is one decoded inbound frame. Only the fields relevant to Kind are
// populated; DecodeCommand rejects frames missing a required field.
type Command struct {
	Kind    string    `json:"kind"`
	Name    string    `json:"name,omitempty"`
	PubID   uuid.UUID `json:"pub_id,omitempty"`
	TableID uuid.UUID `json:"table_id,omitempty"`
	UserID  uuid.UUID `json:"user_id,omitempty"`
	Content string    `json:"content,omitempty"`
}

// DecodeCommand parses a raw text frame into a Command, validating that the
// kind is known and its required payload fields are present. Any error here
// means the frame should be logged and discarded; it is never fatal to the
// connection.
func DecodeCommand(raw []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return Command{}, fmt.Errorf("malformed frame: %w", err)
	}

	switch cmd.Kind {
	case KindListPubs, KindLeavePub, KindLeaveTable, KindPing:
		// no payload
	case KindSetName:
		if cmd.Name == "" {
			return Command{}, fmt.Errorf("%s: missing name", cmd.Kind)
		}
	case KindGetPerson:
		if cmd.UserID == uuid.Nil {
			return Command{}, fmt.Errorf("%s: missing user_id", cmd.Kind)
		}
	case KindCreatePub:
		if cmd.Name == "" {
			return Command{}, fmt.Errorf("%s: missing name", cmd.Kind)
		}
	case KindJoinPub, KindDeletePub, KindListTables:
		if cmd.PubID == uuid.Nil {
			return Command{}, fmt.Errorf("%s: missing pub_id", cmd.Kind)
		}
	case KindCreateTable:
		if cmd.PubID == uuid.Nil || cmd.Name == "" {
			return Command{}, fmt.Errorf("%s: missing pub_id or name", cmd.Kind)
		}
	case KindJoinTable, KindDeleteTable:
		if cmd.TableID == uuid.Nil {
			return Command{}, fmt.Errorf("%s: missing table_id", cmd.Kind)
		}
	case KindSend:
		if cmd.UserID == uuid.Nil {
			return Command{}, fmt.Errorf("%s: missing user_id", cmd.Kind)
		}
	case "":
		return Command{}, fmt.Errorf("frame has no kind")
	default:
		return Command{}, fmt.Errorf("unknown kind %q", cmd.Kind)
	}

	return cmd, nil
}
