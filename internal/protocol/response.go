package protocol

import (
	"encoding/json"

	"github.com/google/uuid"

	"pubhouse/internal/domain"
)

// Outbound response kinds. CreatePub and CreateTable reuse the command names,
// matching what the frontend dispatches on.
const (
	KindPubs   = "Pubs"
	KindTables = "Tables"
	KindPerson = "Person"
	KindData   = "Data"
	KindPong   = "Pong"
)

type pubsResponse struct {
	Kind string                  `json:"kind"`
	List []domain.PubWithMembers `json:"list"`
}

type tablesResponse struct {
	Kind string                    `json:"kind"`
	List []domain.TableWithMembers `json:"list"`
}

type createPubResponse struct {
	Kind string                `json:"kind"`
	Data domain.PubWithMembers `json:"data"`
}

type createTableResponse struct {
	Kind string                  `json:"kind"`
	Data domain.TableWithMembers `json:"data"`
}

type personResponse struct {
	Kind string        `json:"kind"`
	Data domain.Person `json:"data"`
}

type dataResponse struct {
	Kind    string    `json:"kind"`
	Author  uuid.UUID `json:"author"`
	Content string    `json:"content"`
}

type pongResponse struct {
	Kind string `json:"kind"`
}

// MarshalPubs encodes a Pubs frame. A nil list is sent as [].
func MarshalPubs(list []domain.PubWithMembers) ([]byte, error) {
	if list == nil {
		list = []domain.PubWithMembers{}
	}
	return json.Marshal(pubsResponse{Kind: KindPubs, List: list})
}

// MarshalTables encodes a Tables frame. A nil list is sent as [].
func MarshalTables(list []domain.TableWithMembers) ([]byte, error) {
	if list == nil {
		list = []domain.TableWithMembers{}
	}
	return json.Marshal(tablesResponse{Kind: KindTables, List: list})
}

// MarshalCreatePub encodes the reply to a successful CreatePub.
func MarshalCreatePub(p domain.PubWithMembers) ([]byte, error) {
	return json.Marshal(createPubResponse{Kind: KindCreatePub, Data: p})
}

// MarshalCreateTable encodes the reply to a successful CreateTable.
func MarshalCreateTable(t domain.TableWithMembers) ([]byte, error) {
	return json.Marshal(createTableResponse{Kind: KindCreateTable, Data: t})
}

// MarshalPerson encodes a Person snapshot frame.
func MarshalPerson(p domain.Person) ([]byte, error) {
	return json.Marshal(personResponse{Kind: KindPerson, Data: p})
}

// MarshalData encodes a direct message frame.
func MarshalData(author uuid.UUID, content string) ([]byte, error) {
	return json.Marshal(dataResponse{Kind: KindData, Author: author, Content: content})
}

// MarshalPong encodes the Ping reply.
func MarshalPong() ([]byte, error) {
	return json.Marshal(pongResponse{Kind: KindPong})
}
