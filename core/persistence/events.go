package persistence

import (
	"errors"
	"time"

	"github.com/asaidimu/go-events"
	"github.com/asaidimu/go-tabula/core/schema"
	"github.com/google/uuid"
)

// eventSet names the three events that bracket one operation.
type eventSet struct {
	start   PersistenceEventType
	success PersistenceEventType
	failed  PersistenceEventType
}

var (
	collectionCreateEvents = eventSet{CollectionCreateStart, CollectionCreateSuccess, CollectionCreateFailed}
	collectionDeleteEvents = eventSet{CollectionDeleteStart, CollectionDeleteSuccess, CollectionDeleteFailed}
	collectionInsertEvents = eventSet{CollectionInsertStart, CollectionInsertSuccess, CollectionInsertFailed}
	rowsDeleteEvents       = eventSet{RowsDeleteStart, RowsDeleteSuccess, RowsDeleteFailed}
	queryExecuteEvents     = eventSet{QueryExecuteStart, QueryExecuteSuccess, QueryExecuteFailed}
	transactionEvents      = eventSet{TransactionStart, TransactionSuccess, TransactionFailed}
)

// emitter publishes PersistenceEvents on a shared bus.
type emitter struct {
	bus *events.TypedEventBus[PersistenceEvent]
}

// emitEvent is a helper method to emit events
func (e emitter) emitEvent(event PersistenceEvent) {
	if e.bus != nil {
		e.bus.Emit(string(event.Type), event)
	}
}

// withEventEmission wraps an operation with start, success, and failure events.
// All three events carry the same QueryID.
func (e emitter) withEventEmission(
	operation string,
	set eventSet,
	collectionName string,
	input any,
	queryParam any,
	fn func() (any, error),
) (any, error) {
	startTime := time.Now()
	id := uuid.New().String()

	startEvent := createEvent(set.start, operation, collectionName, input, nil, queryParam, nil, nil, time.Time{})
	startEvent.QueryID = &id
	e.emitEvent(startEvent)

	result, err := fn()

	if err != nil {
		errStr := err.Error()
		var issues []schema.Issue
		var schemaErr *schema.SchemaError
		var rowErr *RowValidationError
		switch {
		case errors.As(err, &rowErr):
			issues = rowErr.Issues
		case errors.As(err, &schemaErr):
			issues = schemaErr.Issues
		}
		failEvent := createEvent(set.failed, operation, collectionName, input, nil, queryParam, &errStr, issues, startTime)
		failEvent.QueryID = &id
		e.emitEvent(failEvent)
		return nil, err
	}

	successEvent := createEvent(set.success, operation, collectionName, input, result, queryParam, nil, nil, startTime)
	successEvent.QueryID = &id
	e.emitEvent(successEvent)

	return result, nil
}

func createEvent(
	eventType PersistenceEventType,
	operation string,
	collectionName string,
	input any,
	output any,
	query any,
	err *string,
	issues []schema.Issue,
	startTime time.Time,
) PersistenceEvent {
	var duration *int64
	if !startTime.IsZero() {
		d := time.Since(startTime).Milliseconds()
		duration = &d
	}

	var collectionNamePtr *string
	if collectionName != "" {
		collectionNamePtr = &collectionName
	}

	return PersistenceEvent{
		Type:       eventType,
		Timestamp:  time.Now().UnixMilli(),
		Operation:  operation,
		Collection: collectionNamePtr,
		Input:      input,
		Output:     output,
		Error:      err,
		Issues:     issues,
		Query:      query,
		Duration:   duration,
	}
}
