package protocol

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

func TestDecodeCommandValid(t *testing.T) {
	pubID := uuid.NewString()
	tableID := uuid.NewString()
	userID := uuid.NewString()

	cases := []struct {
		name string
		raw  string
		kind string
	}{
		{"list pubs", `{"kind":"ListPubs"}`, KindListPubs},
		{"ping", `{"kind":"Ping"}`, KindPing},
		{"leave pub", `{"kind":"LeavePub"}`, KindLeavePub},
		{"leave table", `{"kind":"LeaveTable"}`, KindLeaveTable},
		{"set name", `{"kind":"SetName","name":"ana"}`, KindSetName},
		{"create pub", `{"kind":"CreatePub","name":"The Anchor"}`, KindCreatePub},
		{"join pub", `{"kind":"JoinPub","pub_id":"` + pubID + `"}`, KindJoinPub},
		{"delete pub", `{"kind":"DeletePub","pub_id":"` + pubID + `"}`, KindDeletePub},
		{"create table", `{"kind":"CreateTable","pub_id":"` + pubID + `","name":"corner"}`, KindCreateTable},
		{"list tables", `{"kind":"ListTables","pub_id":"` + pubID + `"}`, KindListTables},
		{"join table", `{"kind":"JoinTable","table_id":"` + tableID + `"}`, KindJoinTable},
		{"delete table", `{"kind":"DeleteTable","table_id":"` + tableID + `"}`, KindDeleteTable},
		{"get person", `{"kind":"GetPerson","user_id":"` + userID + `"}`, KindGetPerson},
		{"send", `{"kind":"Send","user_id":"` + userID + `","content":"hi"}`, KindSend},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cmd, err := DecodeCommand([]byte(c.raw))
			if err != nil {
				t.Fatalf("decode %s: %v", c.raw, err)
			}
			if cmd.Kind != c.kind {
				t.Fatalf("kind = %q, want %q", cmd.Kind, c.kind)
			}
		})
	}
}

func TestDecodeCommandRejects(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", `hello`},
		{"no kind", `{"name":"x"}`},
		{"unknown kind", `{"kind":"Dance"}`},
		{"join pub without id", `{"kind":"JoinPub"}`},
		{"create pub without name", `{"kind":"CreatePub"}`},
		{"create table without name", `{"kind":"CreateTable","pub_id":"` + uuid.NewString() + `"}`},
		{"send without target", `{"kind":"Send","content":"hi"}`},
		{"bad uuid", `{"kind":"JoinPub","pub_id":"not-a-uuid"}`},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := DecodeCommand([]byte(c.raw)); err == nil {
				t.Fatalf("expected error for %s", c.raw)
			}
		})
	}
}

func TestMarshalPubsEmptyListIsArray(t *testing.T) {
	b, err := MarshalPubs(nil)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(out["list"]) != "[]" {
		t.Fatalf("list = %s, want []", out["list"])
	}
	if string(out["kind"]) != `"Pubs"` {
		t.Fatalf("kind = %s", out["kind"])
	}
}

func TestMarshalDataRoundTrip(t *testing.T) {
	author := uuid.New()
	b, err := MarshalData(author, "offer")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out struct {
		Kind    string    `json:"kind"`
		Author  uuid.UUID `json:"author"`
		Content string    `json:"content"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Kind != KindData || out.Author != author || out.Content != "offer" {
		t.Fatalf("unexpected frame: %+v", out)
	}
}
