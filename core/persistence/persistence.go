// Package persistence binds dataset schemas to database tables. It keeps a
// registry of collection schemas, loads collections into immutable Datasets,
// runs queries through the engine or the database, and publishes lifecycle
// events for observability.
package persistence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/asaidimu/go-events"
	"github.com/asaidimu/go-tabula/core/query"
	"github.com/asaidimu/go-tabula/core/schema"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Persistence is the entry point of the persistence layer. It orchestrates
// interactions with the database through a DatabaseInteractor, manages schema
// definitions, and handles event subscriptions for observability.
type Persistence struct {
	interactor    DatabaseInteractor
	executor      *Executor
	schema        *schema.SchemaDefinition // the `_schemas` registry
	logger        *zap.Logger
	subscriptions map[string]*SubscriptionInfo // To store unsubscribe functions
	subMu         sync.RWMutex                 // Mutex to protect subscriptions map
	bus           *events.TypedEventBus[PersistenceEvent]
	emitter       emitter
}

// NewPersistence creates a new instance of the Persistence service. It initializes the
// event bus and ensures that the internal schema registry exists. A nil engine is
// replaced by one with default options.
func NewPersistence(interactor DatabaseInteractor, engine *query.Engine, logger *zap.Logger) (*Persistence, error) {
	bus, err := events.NewTypedEventBus[PersistenceEvent](events.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("could not initialize event bus: %w", err)
	}
	return newPersistence(interactor, engine, logger, bus)
}

func newPersistence(interactor DatabaseInteractor, engine *query.Engine, logger *zap.Logger, bus *events.TypedEventBus[PersistenceEvent]) (*Persistence, error) {
	if interactor == nil {
		return nil, fmt.Errorf("interactor cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s, err := schemasCollection()
	if err != nil {
		return nil, err
	}

	exists, err := interactor.CollectionExists(s.Name)
	if err != nil {
		return nil, fmt.Errorf("error looking up schema collection: %w", err)
	}
	if !exists {
		if err := interactor.CreateCollection(*s); err != nil {
			return nil, fmt.Errorf("failed to create table for collections %s: %w", s.Name, err)
		}
	}

	return &Persistence{
		interactor:    interactor,
		executor:      NewExecutor(interactor, engine, logger),
		schema:        s,
		logger:        logger,
		subscriptions: make(map[string]*SubscriptionInfo),
		bus:           bus,
		emitter:       emitter{bus: bus},
	}, nil
}

// Engine returns the query engine shared by every collection.
func (p *Persistence) Engine() *query.Engine {
	return p.executor.Engine()
}

// Create creates a new collection based on the provided schema definition and
// records it in the registry. It fails if a collection with the same name
// already exists.
func (p *Persistence) Create(ctx context.Context, s schema.SchemaDefinition) (*Collection, error) {
	_, err := p.emitter.withEventEmission("create", collectionCreateEvents, s.Name, s, nil, func() (any, error) {
		if result := schema.ValidateSchema(&s); !result.Valid {
			return nil, &schema.SchemaError{Schema: s.Name, Issues: result.Issues}
		}

		exists, err := p.interactor.CollectionExists(s.Name)
		if err != nil {
			return nil, fmt.Errorf("error accessing database: %w", err)
		}
		if exists {
			return nil, fmt.Errorf("a collection named '%s' already exists", s.Name)
		}

		record, err := newSchemaRecord(&s)
		if err != nil {
			return nil, err
		}

		if err := p.interactor.CreateCollection(s); err != nil {
			return nil, fmt.Errorf("failed to create collection %s: %w", s.Name, err)
		}

		if _, err := p.executor.Insert(ctx, p.schema, []schema.Document{record.document()}); err != nil {
			if dropErr := p.interactor.DropCollection(s.Name); dropErr != nil {
				p.logger.Error("Failed to drop collection after registry failure", zap.String("collection", s.Name), zap.Error(dropErr))
			}
			return nil, fmt.Errorf("failed to register collection %s: %w", s.Name, err)
		}
		return s.Name, nil
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info("Collection created", zap.String("collection", s.Name), zap.Int("columns", len(s.Columns)))
	return newCollection(&s, p.executor, p.emitter), nil
}

// Collection returns the collection registered under name.
func (p *Persistence) Collection(ctx context.Context, name string) (*Collection, error) {
	s, err := p.Schema(ctx, name)
	if err != nil {
		return nil, err
	}
	return newCollection(s, p.executor, p.emitter), nil
}

// Schema retrieves the schema definition for a given collection name.
func (p *Persistence) Schema(ctx context.Context, name string) (*schema.SchemaDefinition, error) {
	exists, err := p.interactor.CollectionExists(name)
	if err != nil {
		return nil, fmt.Errorf("error accessing database: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("collection %s does not exist", name)
	}

	q := query.NewQueryBuilder().Where("name").Eq(name).Build()
	ds, err := p.executor.Pushdown(ctx, p.schema, &q)
	if err != nil {
		return nil, fmt.Errorf("error reading schema collection: %w", err)
	}
	if ds.Len() != 1 {
		return nil, fmt.Errorf("unexpected count for schema name %s: %d", name, ds.Len())
	}

	record, err := mapToSchemaRecord(ds.Row(0))
	if err != nil {
		return nil, fmt.Errorf("error converting row to SchemaRecord: %w", err)
	}
	return record.Definition()
}

// Collections returns the names of all registered collections in
// registration order.
func (p *Persistence) Collections(ctx context.Context) ([]string, error) {
	ds, err := p.executor.Load(ctx, p.schema)
	if err != nil {
		return nil, fmt.Errorf("error reading schemas to get collection names: %w", err)
	}

	names := make([]string, 0, ds.Len())
	for _, row := range ds.Rows() {
		record, err := mapToSchemaRecord(row)
		if err != nil {
			p.logger.Warn("Failed to convert row to SchemaRecord while listing collections", zap.Error(err))
			continue
		}
		names = append(names, record.Name)
	}
	return names, nil
}

// Delete removes a collection by its name. This operation is transactional, ensuring that
// both the collection and its schema definition are removed atomically.
func (p *Persistence) Delete(ctx context.Context, name string) (bool, error) {
	_, err := p.emitter.withEventEmission("delete", collectionDeleteEvents, name, name, nil, func() (any, error) {
		tx, err := p.interactor.StartTransaction(ctx)
		if err != nil {
			return nil, err
		}

		q := query.NewQueryBuilder().Where("name").Eq(name).Build()
		if _, err := tx.DeleteDocuments(ctx, p.schema, q.Filters, false); err != nil {
			tx.Rollback(ctx)
			return nil, err
		}

		if err := tx.DropCollection(name); err != nil {
			tx.Rollback(ctx)
			return nil, err
		}

		if err := tx.Commit(ctx); err != nil {
			tx.Rollback(ctx)
			return nil, err
		}
		return true, nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// Transact executes a callback within a database transaction. The callback
// receives a Persistence bound to the transaction; if it returns an error the
// transaction is rolled back, otherwise it is committed.
func (p *Persistence) Transact(ctx context.Context, callback func(tx *Persistence) error) error {
	_, err := p.emitter.withEventEmission("transact", transactionEvents, "", nil, nil, func() (any, error) {
		tx, err := p.interactor.StartTransaction(ctx)
		if err != nil {
			return nil, err
		}

		transactionCtx, err := newPersistence(tx, p.executor.Engine(), p.logger, p.bus)
		if err != nil {
			tx.Rollback(ctx)
			return nil, err
		}

		if err := callback(transactionCtx); err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				p.logger.Error("Rollback failed", zap.Error(rbErr))
			}
			return nil, err
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	})
	return err
}

// RegisterSubscription registers a callback for a specific persistence event. It returns
// a unique ID that can be used to unregister the subscription later.
func (p *Persistence) RegisterSubscription(options RegisterSubscriptionOptions) string {
	p.subMu.Lock()
	defer p.subMu.Unlock()

	unsubscribe := p.bus.Subscribe(string(options.Event), options.Callback)
	id := uuid.New().String()

	data := SubscriptionInfo{
		Id:          &id,
		Event:       options.Event,
		Unsubscribe: unsubscribe,
		Label:       options.Label,
		Description: options.Description,
	}

	p.subscriptions[id] = &data
	p.emitter.emitEvent(createEvent(SubscriptionRegister, "register_subscription", "", map[string]any{"event": options.Event}, id, nil, nil, nil, time.Time{}))
	return id
}

// UnregisterSubscription removes a subscription by its ID.
func (p *Persistence) UnregisterSubscription(id string) {
	p.subMu.Lock()
	defer p.subMu.Unlock()

	if info, ok := p.subscriptions[id]; ok {
		info.Unsubscribe()
		delete(p.subscriptions, id)
		p.emitter.emitEvent(createEvent(SubscriptionUnregister, "unregister_subscription", "", id, nil, nil, nil, nil, time.Time{}))
	}
}

// Subscriptions returns a list of all currently active subscriptions.
func (p *Persistence) Subscriptions() []SubscriptionInfo {
	p.subMu.RLock()
	defer p.subMu.RUnlock()

	subs := make([]SubscriptionInfo, 0, len(p.subscriptions))
	for _, sub := range p.subscriptions {
		subs = append(subs, *sub)
	}
	return subs
}
