package persistence

import (
	"context"

	"github.com/asaidimu/go-tabula/core/schema"
)

// PersistenceEventType defines the possible event types for persistence operations.
type PersistenceEventType string

const (
	CollectionCreateStart   PersistenceEventType = "collection:create:start"
	CollectionCreateSuccess PersistenceEventType = "collection:create:success"
	CollectionCreateFailed  PersistenceEventType = "collection:create:failed"
	CollectionDeleteStart   PersistenceEventType = "collection:delete:start"
	CollectionDeleteSuccess PersistenceEventType = "collection:delete:success"
	CollectionDeleteFailed  PersistenceEventType = "collection:delete:failed"
	CollectionInsertStart   PersistenceEventType = "collection:insert:start"
	CollectionInsertSuccess PersistenceEventType = "collection:insert:success"
	CollectionInsertFailed  PersistenceEventType = "collection:insert:failed"
	RowsDeleteStart         PersistenceEventType = "rows:delete:start"
	RowsDeleteSuccess       PersistenceEventType = "rows:delete:success"
	RowsDeleteFailed        PersistenceEventType = "rows:delete:failed"
	QueryExecuteStart       PersistenceEventType = "query:execute:start"
	QueryExecuteSuccess     PersistenceEventType = "query:execute:success"
	QueryExecuteFailed      PersistenceEventType = "query:execute:failed"
	TransactionStart        PersistenceEventType = "transaction:start"
	TransactionSuccess      PersistenceEventType = "transaction:success"
	TransactionFailed       PersistenceEventType = "transaction:failed"
	SubscriptionRegister    PersistenceEventType = "subscription:register"
	SubscriptionUnregister  PersistenceEventType = "subscription:unregister"
)

// PersistenceEvent is published on the event bus for every stage of a
// persistence operation. Start, success and failed events of one operation
// share a QueryID; Duration is set on the terminal events only.
type PersistenceEvent struct {
	Type       PersistenceEventType `json:"type"`
	Timestamp  int64                `json:"timestamp"` // Unix milliseconds
	Operation  string               `json:"operation"` // create, insert, query, pushdown, ...
	Collection *string              `json:"collection,omitempty"`
	Input      any                  `json:"input,omitempty"`
	Output     any                  `json:"output,omitempty"`
	Error      *string              `json:"error,omitempty"`
	Issues     []schema.Issue       `json:"issues,omitempty"` // validation issues behind a failure
	Query      any                  `json:"query,omitempty"`
	QueryID    *string              `json:"queryId,omitempty"`
	Duration   *int64               `json:"duration,omitempty"` // milliseconds
}

// EventCallbackFunction handles one event. Returned errors are reported by
// the bus and do not affect the operation that emitted the event.
type EventCallbackFunction func(ctx context.Context, event PersistenceEvent) error

// SubscriptionInfo is the bookkeeping kept for a registered callback.
type SubscriptionInfo struct {
	Id          *string              `json:"id,omitempty"`
	Event       PersistenceEventType `json:"event"`
	Label       *string              `json:"label,omitempty"`
	Description *string              `json:"description,omitempty"`
	Unsubscribe func()               `json:"-"`
}

// RegisterSubscriptionOptions names the event to listen for and the callback
// to run. Label and Description are informational.
type RegisterSubscriptionOptions struct {
	Event       PersistenceEventType `json:"event"`
	Label       *string              `json:"label,omitempty"`
	Description *string              `json:"description,omitempty"`
	Callback    EventCallbackFunction
}
