// Package handler routes decrypted callback events to their handlers, two
// dispatch layers deep: by event type, then by the numeric biz type of each
// nested business item.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ruicore/dingbridge/domain"
)

// SuiteRefresher receives the rotated suite ticket so the broker's in-memory
// suite snapshot stays current without a repository round trip.
type SuiteRefresher interface {
	RefreshSuite(corpID domain.CorpID, suiteTicket string)
}

// EventHandler handles one decrypted callback event.
type EventHandler func(ctx context.Context, event *domain.CallbackEvent) error

// BizHandler handles one business item of a sync push event.
type BizHandler func(ctx context.Context, item domain.BizItem) error

// Dispatcher holds the routing tables. Both maps are built once in
// NewDispatcher and never mutated afterwards, so dispatch needs no locking.
type Dispatcher struct {
	events map[domain.EventType]EventHandler
	biz    map[domain.BizType]BizHandler
}

// NewDispatcher wires the routing tables against the given repository and
// suite identity.
func NewDispatcher(repo domain.Repository, suiteKey string, refresher SuiteRefresher) *Dispatcher {
	d := &Dispatcher{}

	b := bizHandlers{repo: repo, suiteKey: suiteKey, refresher: refresher}
	d.biz = map[domain.BizType]BizHandler{
		domain.BizSuiteTicket:  b.handleSuiteTicket,
		domain.BizOrgSuiteAuth: b.handleOrgSuiteAuth,
		domain.BizDefault:      b.handleDefault,
	}

	d.events = map[domain.EventType]EventHandler{
		domain.EventCheckURL:            logOnly("callback url check"),
		domain.EventCheckUpdateSuiteURL: logOnly("callback url update check"),
		domain.EventSyncHTTPPushHigh:    d.handleSyncPush,
		domain.EventSyncHTTPPushMedium:  d.handleSyncPush,
		domain.EventDefault:             d.handleUnknownEvent,
	}

	return d
}

// Dispatch decodes the decrypted callback body and routes it. Unrecognized
// event types fall back to the DEFAULT handler; the platform expects every
// callback to be acknowledged, so unknown types are logged, not failed.
func (d *Dispatcher) Dispatch(ctx context.Context, payload []byte) error {
	var event domain.CallbackEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("decode callback event: %w", err)
	}
	event.Raw = json.RawMessage(payload)

	eventType := domain.EventType(strings.ToUpper(string(event.EventType)))
	h, ok := d.events[eventType]
	if !ok {
		h = d.events[domain.EventDefault]
	}
	return h(ctx, &event)
}

func (d *Dispatcher) handleUnknownEvent(ctx context.Context, event *domain.CallbackEvent) error {
	log.Ctx(ctx).Warn().
		Str("event_type", string(event.EventType)).
		RawJSON("event", event.Raw).
		Msg("no handler for event type")
	return nil
}

// handleSyncPush processes the business items of a sync push. Items are
// handled independently: a failing item is logged and does not abort its
// siblings, so a malformed item cannot void the rest of the batch.
func (d *Dispatcher) handleSyncPush(ctx context.Context, event *domain.CallbackEvent) error {
	for _, item := range event.BizData {
		h, ok := d.biz[item.BizType]
		if !ok {
			h = d.biz[domain.BizDefault]
		}
		if err := h(ctx, item); err != nil {
			log.Ctx(ctx).Error().Err(err).
				Int("biz_type", int(item.BizType)).
				Str("corp_id", item.CorpID).
				Msg("business item failed, continuing with remaining items")
		}
	}
	return nil
}

func logOnly(msg string) EventHandler {
	return func(ctx context.Context, event *domain.CallbackEvent) error {
		log.Ctx(ctx).Info().RawJSON("event", event.Raw).Msg(msg)
		return nil
	}
}
