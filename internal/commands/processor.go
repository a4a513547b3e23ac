// Package commands implements the protocol state machine: one decoded
// command in, store mutations, registry updates, and the resulting replies
// and broadcasts out. The processor owns no state of its own; it orchestrates
// the store and the registry under a per-person serialization discipline, so
// two interleaved room changes for the same person can never leave cached and
// durable membership disagreeing.
package commands

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pubhouse/internal/domain"
	"pubhouse/internal/logutil"
	"pubhouse/internal/protocol"
	"pubhouse/internal/registry"
	"pubhouse/internal/store"
)

// Processor handles commands for all sessions. Safe for concurrent use; per
// person, callers (the session read loops) already arrive one command at a
// time.
type Processor struct {
	store  store.Store
	reg    *registry.Registry
	router *registry.Router
	log    *zap.Logger
}

func NewProcessor(st store.Store, reg *registry.Registry, router *registry.Router, log *zap.Logger) *Processor {
	return &Processor{store: st, reg: reg, router: router, log: log}
}

// Handle runs one command on behalf of personID. Replies go to h, the
// issuing session's delivery queue. Failures never escape: a missing entity
// degrades to a no-op or a refreshed reply, a store failure is logged and
// the command is dropped, and only the issuing session is affected either
// way.
func (p *Processor) Handle(ctx context.Context, personID uuid.UUID, h registry.Handle, cmd protocol.Command) {
	switch cmd.Kind {
	case protocol.KindListPubs:
		p.listPubs(ctx, personID, h)
	case protocol.KindSetName:
		p.setName(ctx, personID, h, cmd.Name)
	case protocol.KindGetPerson:
		p.getPerson(ctx, personID, h, cmd.UserID)
	case protocol.KindCreatePub:
		p.createPub(ctx, personID, h, cmd.Name)
	case protocol.KindJoinPub:
		p.joinPub(ctx, personID, h, cmd.PubID)
	case protocol.KindDeletePub:
		p.deletePub(ctx, personID, h, cmd.PubID)
	case protocol.KindCreateTable:
		p.createTable(ctx, personID, h, cmd.PubID, cmd.Name)
	case protocol.KindListTables:
		p.listTables(ctx, personID, h, cmd.PubID)
	case protocol.KindJoinTable:
		p.joinTable(ctx, personID, h, cmd.TableID)
	case protocol.KindDeleteTable:
		p.deleteTable(ctx, personID, h, cmd.TableID)
	case protocol.KindLeavePub:
		p.leavePub(ctx, personID, h)
	case protocol.KindLeaveTable:
		p.leaveTable(ctx, personID, h)
	case protocol.KindSend:
		p.send(ctx, personID, cmd.UserID, cmd.Content)
	case protocol.KindPing:
		p.ping(ctx, personID, h)
	default:
		// DecodeCommand filters unknown kinds before we get here.
		p.log.Warn("unhandled command kind", zap.String("kind", cmd.Kind))
	}
}

func (p *Processor) listPubs(ctx context.Context, personID uuid.UUID, h registry.Handle) {
	payload, ok := p.pubsPayload(ctx, personID)
	if ok {
		h.Enqueue(payload)
	}
}

func (p *Processor) setName(ctx context.Context, personID uuid.UUID, h registry.Handle, name string) {
	p.reg.WithPerson(personID, func() {
		if err := p.store.SetPersonName(ctx, personID, name); err != nil {
			p.fail("SetName", personID, err)
			return
		}
		p.replySelf(ctx, personID, h)
	})
}

func (p *Processor) getPerson(ctx context.Context, personID uuid.UUID, h registry.Handle, target uuid.UUID) {
	person, err := p.store.LoadPerson(ctx, target)
	if err != nil {
		p.fail("GetPerson", personID, err)
		return
	}
	payload, err := protocol.MarshalPerson(person)
	p.reply(personID, h, payload, err)
}

func (p *Processor) createPub(ctx context.Context, personID uuid.UUID, h registry.Handle, name string) {
	p.reg.WithPerson(personID, func() {
		oldPub, _, _ := p.reg.Membership(personID)

		// Leaving the old rooms and joining the new pub are single-column
		// overwrites, so clearing the table first keeps the table-implies-
		// same-pub invariant at every step.
		if err := p.store.SetPersonTable(ctx, personID, nil); err != nil {
			p.fail("CreatePub", personID, err)
			return
		}
		p.reg.UpdateMembership(personID, oldPub, nil)
		pubID := uuid.New()
		if err := p.store.InsertPub(ctx, pubID, name); err != nil {
			p.fail("CreatePub", personID, err)
			return
		}
		if err := p.store.SetPersonPub(ctx, personID, &pubID); err != nil {
			p.fail("CreatePub", personID, err)
			return
		}
		p.reg.UpdateMembership(personID, &pubID, nil)

		payload, err := protocol.MarshalCreatePub(domain.PubWithMembers{
			ID:      pubID,
			Name:    name,
			Persons: []uuid.UUID{personID},
		})
		p.reply(personID, h, payload, err)
		p.replySelf(ctx, personID, h)
	})
}

func (p *Processor) joinPub(ctx context.Context, personID uuid.UUID, h registry.Handle, pubID uuid.UUID) {
	p.reg.WithPerson(personID, func() {
		oldPub, oldTable, _ := p.reg.Membership(personID)

		if err := p.store.SetPersonTable(ctx, personID, nil); err != nil {
			p.fail("JoinPub", personID, err)
			return
		}
		// Overwriting pub_id both leaves the old pub and joins the new one;
		// a broken foreign key here means the pub does not exist and the
		// update did not happen.
		if err := p.store.SetPersonPub(ctx, personID, &pubID); err != nil {
			p.reg.UpdateMembership(personID, oldPub, nil)
			p.notifyOldRooms(ctx, personID, nil, oldTable)
			p.fail("JoinPub", personID, err)
			return
		}
		p.reg.UpdateMembership(personID, &pubID, nil)

		payload, ok := p.pubsPayload(ctx, personID)
		if ok {
			p.router.NotifyRoom(p.reg.MembersOfPub(pubID), payload)
			if oldPub != nil && *oldPub != pubID {
				p.router.NotifyRoom(p.reg.MembersOfPub(*oldPub), payload)
			}
		}
		if oldTable != nil {
			p.notifyOldRooms(ctx, personID, nil, oldTable)
		}

		p.replySelf(ctx, personID, h)
		p.replyTables(ctx, personID, h, pubID)
	})
}

func (p *Processor) deletePub(ctx context.Context, personID uuid.UUID, h registry.Handle, pubID uuid.UUID) {
	deleted, err := p.store.DeletePubIfEmpty(ctx, pubID)
	if err != nil {
		p.fail("DeletePub", personID, err)
		return
	}
	if !deleted {
		p.log.Info("pub not deleted",
			logutil.Person(personID), logutil.Room("pub", pubID))
	}
	// Requester gets the current list either way.
	if payload, ok := p.pubsPayload(ctx, personID); ok {
		h.Enqueue(payload)
	}
}

func (p *Processor) createTable(ctx context.Context, personID uuid.UUID, h registry.Handle, pubID uuid.UUID, name string) {
	p.reg.WithPerson(personID, func() {
		curPub, _, _ := p.reg.Membership(personID)
		if curPub == nil || *curPub != pubID {
			p.log.Info("create table outside current pub",
				logutil.Person(personID), logutil.Room("pub", pubID))
			return
		}
		if err := p.store.SetPersonTable(ctx, personID, nil); err != nil {
			p.fail("CreateTable", personID, err)
			return
		}
		tableID := uuid.New()
		if err := p.store.InsertTable(ctx, tableID, name, pubID); err != nil {
			p.reg.UpdateMembership(personID, curPub, nil)
			p.fail("CreateTable", personID, err)
			return
		}
		if err := p.store.SetPersonTable(ctx, personID, &tableID); err != nil {
			p.reg.UpdateMembership(personID, curPub, nil)
			p.fail("CreateTable", personID, err)
			return
		}
		p.reg.UpdateMembership(personID, curPub, &tableID)

		payload, err := protocol.MarshalCreateTable(domain.TableWithMembers{
			ID:      tableID,
			Name:    name,
			PubID:   pubID,
			Persons: []uuid.UUID{personID},
		})
		p.reply(personID, h, payload, err)
		p.replySelf(ctx, personID, h)
	})
}

func (p *Processor) listTables(ctx context.Context, personID uuid.UUID, h registry.Handle, pubID uuid.UUID) {
	p.replyTables(ctx, personID, h, pubID)
}

func (p *Processor) joinTable(ctx context.Context, personID uuid.UUID, h registry.Handle, tableID uuid.UUID) {
	p.reg.WithPerson(personID, func() {
		table, err := p.store.LoadTable(ctx, tableID)
		if err != nil {
			p.fail("JoinTable", personID, err)
			return
		}
		curPub, _, _ := p.reg.Membership(personID)
		if curPub == nil || *curPub != table.PubID {
			p.log.Info("join table outside current pub",
				logutil.Person(personID), logutil.Room("table", tableID))
			return
		}
		if err := p.store.SetPersonTable(ctx, personID, &tableID); err != nil {
			p.fail("JoinTable", personID, err)
			return
		}
		p.reg.UpdateMembership(personID, curPub, &tableID)

		// New table members, old table members, and the rest of the pub all
		// share the parent pub (a table never outlives its pub, and joining
		// requires being in it), so one refreshed table list reaches them
		// all.
		if payload, ok := p.tablesPayload(ctx, personID, table.PubID); ok {
			p.router.NotifyRoom(p.reg.MembersOfPub(table.PubID), payload)
		}
		p.replySelf(ctx, personID, h)
	})
}

func (p *Processor) deleteTable(ctx context.Context, personID uuid.UUID, h registry.Handle, tableID uuid.UUID) {
	table, err := p.store.LoadTable(ctx, tableID)
	if err != nil {
		p.fail("DeleteTable", personID, err)
		return
	}
	parent, err := p.store.DeleteTableIfEmpty(ctx, tableID)
	if err != nil {
		p.fail("DeleteTable", personID, err)
		return
	}
	if parent == nil {
		p.log.Info("table not deleted",
			logutil.Person(personID), logutil.Room("table", tableID))
	}
	p.replyTables(ctx, personID, h, table.PubID)
}

func (p *Processor) leavePub(ctx context.Context, personID uuid.UUID, h registry.Handle) {
	p.reg.WithPerson(personID, func() {
		oldPub, oldTable, _ := p.reg.Membership(personID)

		if err := p.store.SetPersonTable(ctx, personID, nil); err != nil {
			p.fail("LeavePub", personID, err)
			return
		}
		if err := p.store.SetPersonPub(ctx, personID, nil); err != nil {
			p.reg.UpdateMembership(personID, oldPub, nil)
			p.notifyOldRooms(ctx, personID, nil, oldTable)
			p.fail("LeavePub", personID, err)
			return
		}
		p.reg.UpdateMembership(personID, nil, nil)

		p.notifyOldRooms(ctx, personID, oldPub, oldTable)
		p.replySelf(ctx, personID, h)
	})
}

func (p *Processor) leaveTable(ctx context.Context, personID uuid.UUID, h registry.Handle) {
	p.reg.WithPerson(personID, func() {
		curPub, oldTable, _ := p.reg.Membership(personID)

		if err := p.store.SetPersonTable(ctx, personID, nil); err != nil {
			p.fail("LeaveTable", personID, err)
			return
		}
		p.reg.UpdateMembership(personID, curPub, nil)

		p.notifyOldRooms(ctx, personID, nil, oldTable)
		p.replySelf(ctx, personID, h)
	})
}

func (p *Processor) send(ctx context.Context, personID, target uuid.UUID, content string) {
	payload, err := protocol.MarshalData(personID, content)
	if err != nil {
		p.fail("Send", personID, err)
		return
	}
	if !p.router.NotifyPerson(target, payload) {
		// Soft failure: the sender gets no error frame.
		p.log.Warn("send target not reachable",
			logutil.Person(personID), zap.String("target", target.String()))
	}
}

func (p *Processor) ping(ctx context.Context, personID uuid.UUID, h registry.Handle) {
	if err := p.store.TouchActivity(ctx, personID); err != nil {
		p.fail("Ping", personID, err)
		return
	}
	payload, err := protocol.MarshalPong()
	p.reply(personID, h, payload, err)
}

// notifyOldRooms broadcasts a presence refresh to the rooms the person just
// left: the pub member list to oldPub, the parent pub's table list to
// oldTable. The caller must have updated the person's cached membership
// already so the snapshots exclude them.
func (p *Processor) notifyOldRooms(ctx context.Context, personID uuid.UUID, oldPub, oldTable *uuid.UUID) {
	if oldPub != nil {
		if payload, ok := p.pubsPayload(ctx, personID); ok {
			p.router.NotifyRoom(p.reg.MembersOfPub(*oldPub), payload)
		}
	}
	if oldTable != nil {
		table, err := p.store.LoadTable(ctx, *oldTable)
		if err != nil {
			p.fail("refresh table", personID, err)
			return
		}
		if payload, ok := p.tablesPayload(ctx, personID, table.PubID); ok {
			p.router.NotifyRoom(p.reg.MembersOfTable(*oldTable), payload)
		}
	}
}

func (p *Processor) pubsPayload(ctx context.Context, personID uuid.UUID) ([]byte, bool) {
	list, err := p.store.ListPubsWithMembers(ctx)
	if err != nil {
		p.fail("ListPubs", personID, err)
		return nil, false
	}
	payload, err := protocol.MarshalPubs(list)
	if err != nil {
		p.fail("ListPubs", personID, err)
		return nil, false
	}
	return payload, true
}

func (p *Processor) tablesPayload(ctx context.Context, personID, pubID uuid.UUID) ([]byte, bool) {
	list, err := p.store.ListTablesWithMembers(ctx, pubID)
	if err != nil {
		p.fail("ListTables", personID, err)
		return nil, false
	}
	payload, err := protocol.MarshalTables(list)
	if err != nil {
		p.fail("ListTables", personID, err)
		return nil, false
	}
	return payload, true
}

func (p *Processor) replyTables(ctx context.Context, personID uuid.UUID, h registry.Handle, pubID uuid.UUID) {
	if payload, ok := p.tablesPayload(ctx, personID, pubID); ok {
		h.Enqueue(payload)
	}
}

// replySelf sends the person their own refreshed record, the ack most
// mutating commands end with.
func (p *Processor) replySelf(ctx context.Context, personID uuid.UUID, h registry.Handle) {
	person, err := p.store.LoadPerson(ctx, personID)
	if err != nil {
		p.fail("load self", personID, err)
		return
	}
	payload, err := protocol.MarshalPerson(person)
	p.reply(personID, h, payload, err)
}

func (p *Processor) reply(personID uuid.UUID, h registry.Handle, payload []byte, err error) {
	if err != nil {
		p.fail("encode reply", personID, err)
		return
	}
	h.Enqueue(payload)
}

// fail records a failed command. Missing entities are routine (stale ids
// from slow clients); anything else is a store problem worth an error.
func (p *Processor) fail(op string, personID uuid.UUID, err error) {
	if errors.Is(err, store.ErrNotFound) {
		p.log.Info("command target missing",
			zap.String("op", op), logutil.Person(personID))
		return
	}
	p.log.Error("command failed",
		zap.String("op", op), logutil.Person(personID), zap.Error(err))
}
