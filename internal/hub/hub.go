// Package hub fans live run events out to websocket subscribers.
//
// All state is owned by a single goroutine fed through a mailbox channel, so
// Subscribe, Unsubscribe and Publish are safe from any goroutine and events
// for one execution are delivered in publish order. Events published before
// the first subscriber arrives are buffered and replayed on subscription.
package hub

import (
	"context"
	"time"

	xerrors "xpertly/internal/errors"
	"xpertly/internal/logging"

	"github.com/google/uuid"
)

// Sink receives events for one session. Deliver must not block for long;
// websocket sessions back it with a buffered send queue.
type Sink interface {
	Deliver(event []byte) error
}

const (
	mailboxSize    = 256
	publishTimeout = 2 * time.Second
)

type subscription struct {
	executionID uuid.UUID
	sink        Sink
}

type subscribeCmd struct {
	executionID uuid.UUID
	sink        Sink
	reply       chan uuid.UUID
}

type unsubscribeCmd struct {
	sessionID uuid.UUID
}

type publishCmd struct {
	executionID uuid.UUID
	event       []byte
}

// Hub is the live-update broker.
type Hub struct {
	logger  logging.Logger
	mailbox chan any

	sessions      map[uuid.UUID]subscription
	subscriptions map[uuid.UUID]map[uuid.UUID]struct{}
	buffered      map[uuid.UUID][][]byte
}

// New builds a Hub. Call Run before using it.
func New(logger logging.Logger) *Hub {
	return &Hub{
		logger:        logging.OrNop(logger),
		mailbox:       make(chan any, mailboxSize),
		sessions:      make(map[uuid.UUID]subscription),
		subscriptions: make(map[uuid.UUID]map[uuid.UUID]struct{}),
		buffered:      make(map[uuid.UUID][][]byte),
	}
}

// Run owns the hub state until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-h.mailbox:
			switch c := cmd.(type) {
			case subscribeCmd:
				c.reply <- h.handleSubscribe(c.executionID, c.sink)
			case unsubscribeCmd:
				h.handleUnsubscribe(c.sessionID)
			case publishCmd:
				h.handlePublish(c.executionID, c.event)
			}
		}
	}
}

// Subscribe registers sink for an execution's events and returns the new
// session id. Any buffered events are replayed, in order, before returning.
func (h *Hub) Subscribe(ctx context.Context, executionID uuid.UUID, sink Sink) (uuid.UUID, error) {
	reply := make(chan uuid.UUID, 1)
	select {
	case h.mailbox <- subscribeCmd{executionID: executionID, sink: sink, reply: reply}:
	case <-ctx.Done():
		return uuid.Nil, ctx.Err()
	}
	select {
	case id := <-reply:
		return id, nil
	case <-ctx.Done():
		return uuid.Nil, ctx.Err()
	}
}

// Unsubscribe removes a session everywhere. Unknown ids are ignored.
func (h *Hub) Unsubscribe(sessionID uuid.UUID) {
	select {
	case h.mailbox <- unsubscribeCmd{sessionID: sessionID}:
	case <-time.After(publishTimeout):
		h.logger.Warn("hub mailbox full, unsubscribe %s dropped", sessionID)
	}
}

// Publish delivers event to every subscriber of executionID, or buffers it
// when nobody is listening yet. A full mailbox drops the event with a
// HubError rather than stalling the run.
func (h *Hub) Publish(executionID uuid.UUID, event []byte) error {
	select {
	case h.mailbox <- publishCmd{executionID: executionID, event: event}:
		eventsPublished.Inc()
		return nil
	case <-time.After(publishTimeout):
		eventsDropped.Inc()
		err := xerrors.NewHubError("hub mailbox full, event for execution %s dropped", executionID)
		h.logger.Warn("%v", err)
		return err
	}
}

func (h *Hub) handleSubscribe(executionID uuid.UUID, sink Sink) uuid.UUID {
	sessionID := uuid.New()
	h.sessions[sessionID] = subscription{executionID: executionID, sink: sink}
	members, ok := h.subscriptions[executionID]
	if !ok {
		members = make(map[uuid.UUID]struct{})
		h.subscriptions[executionID] = members
	}
	members[sessionID] = struct{}{}
	sessionsGauge.Set(float64(len(h.sessions)))

	if backlog, ok := h.buffered[executionID]; ok {
		for _, event := range backlog {
			if err := sink.Deliver(event); err != nil {
				h.logger.Warn("replay to session %s failed: %v", sessionID, err)
			}
		}
		delete(h.buffered, executionID)
		bufferedGauge.Sub(float64(len(backlog)))
	}
	return sessionID
}

func (h *Hub) handleUnsubscribe(sessionID uuid.UUID) {
	sub, ok := h.sessions[sessionID]
	if !ok {
		return
	}
	delete(h.sessions, sessionID)
	if members, ok := h.subscriptions[sub.executionID]; ok {
		delete(members, sessionID)
		if len(members) == 0 {
			delete(h.subscriptions, sub.executionID)
			// nobody left to replay to
			if backlog, ok := h.buffered[sub.executionID]; ok {
				delete(h.buffered, sub.executionID)
				bufferedGauge.Sub(float64(len(backlog)))
			}
		}
	}
	sessionsGauge.Set(float64(len(h.sessions)))
}

func (h *Hub) handlePublish(executionID uuid.UUID, event []byte) {
	members, ok := h.subscriptions[executionID]
	if !ok || len(members) == 0 {
		h.buffered[executionID] = append(h.buffered[executionID], event)
		bufferedGauge.Inc()
		return
	}
	for sessionID := range members {
		sub := h.sessions[sessionID]
		if err := sub.sink.Deliver(event); err != nil {
			h.logger.Warn("deliver to session %s failed: %v", sessionID, err)
		}
	}
}
