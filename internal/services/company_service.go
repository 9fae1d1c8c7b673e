package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/DLXSERVEIS/Facturacion/internal/models"
)

// ICompanyService defines access to the company configuration singleton.
type ICompanyService interface {
	Get(ctx context.Context) (models.CompanyConfig, error)
	Update(ctx context.Context, upd models.CompanyConfigUpdate) (models.CompanyConfig, error)
	SetLogo(ctx context.Context, objectKey string) error
	Load(ctx context.Context) error
	SubscribeToChanges(ctx context.Context) error
}

const (
	empresaCollection    = "empresa"
	empresaDocID         = "config"
	empresaUpdateChannel = "empresa_updates"
)

// companyService implements ICompanyService with an in-memory cache that is
// invalidated across processes via Redis pub/sub.
type companyService struct {
	db     *mongo.Database
	rdb    *redis.Client
	mutex  sync.RWMutex
	cached *models.CompanyConfig
}

// NewCompanyService creates a new CompanyService. A nil Redis client is
// allowed; the cache then only refreshes on local writes.
func NewCompanyService(db *mongo.Database, rdb *redis.Client) ICompanyService {
	s := &companyService{db: db, rdb: rdb}
	if err := s.Load(context.Background()); err != nil {
		log.Printf("WARNING: Failed to load company config from DB: %v. Using defaults.", err)
	}
	go func() {
		if err := s.SubscribeToChanges(context.Background()); err != nil {
			log.Printf("Company config Pub/Sub listener stopped: %v", err)
		}
	}()
	return s
}

// Load fetches the singleton document into the cache, falling back to the
// fixed defaults when no document exists yet.
func (s *companyService) Load(ctx context.Context) error {
	var cfg models.CompanyConfig
	err := s.db.Collection(empresaCollection).FindOne(ctx, bson.M{"_id": empresaDocID}).Decode(&cfg)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			cfg = models.DefaultCompanyConfig()
		} else {
			return fmt.Errorf("failed to load company config: %w", err)
		}
	}

	s.mutex.Lock()
	s.cached = &cfg
	s.mutex.Unlock()
	return nil
}

// Get returns the current configuration (cached).
func (s *companyService) Get(ctx context.Context) (models.CompanyConfig, error) {
	s.mutex.RLock()
	cached := s.cached
	s.mutex.RUnlock()

	if cached != nil {
		return *cached, nil
	}
	if err := s.Load(ctx); err != nil {
		return models.CompanyConfig{}, err
	}
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return *s.cached, nil
}

// Update merges the provided fields into the singleton (upserting on first
// write), refreshes the cache and notifies other processes. An empty partial
// returns the current config unchanged.
func (s *companyService) Update(ctx context.Context, upd models.CompanyConfigUpdate) (models.CompanyConfig, error) {
	changes := upd.Changes()
	if len(changes) == 0 {
		return s.Get(ctx)
	}

	// Seed the absent fields from the current config so the upserted
	// document is always complete.
	current, err := s.Get(ctx)
	if err != nil {
		return models.CompanyConfig{}, err
	}

	opts := options.Update().SetUpsert(true)
	update := bson.M{"$set": changes}
	if onInsert := setOnInsertFields(current, changes); len(onInsert) > 0 {
		update["$setOnInsert"] = onInsert
	}
	_, err = s.db.Collection(empresaCollection).UpdateOne(ctx, bson.M{"_id": empresaDocID}, update, opts)
	if err != nil {
		return models.CompanyConfig{}, fmt.Errorf("failed to update company config: %w", err)
	}

	if err := s.Load(ctx); err != nil {
		return models.CompanyConfig{}, err
	}

	if s.rdb != nil {
		if err := s.rdb.Publish(ctx, empresaUpdateChannel, "updated").Err(); err != nil {
			log.Printf("Warning: Failed to publish company config update: %v", err)
		}
	}

	return s.Get(ctx)
}

// SetLogo stores the S3 object key of the uploaded logo. Convenience wrapper
// over the same merge.
func (s *companyService) SetLogo(ctx context.Context, objectKey string) error {
	_, err := s.Update(ctx, models.CompanyConfigUpdate{Logo: &objectKey})
	return err
}

// SubscribeToChanges reloads the cache whenever another process publishes a
// config update.
func (s *companyService) SubscribeToChanges(ctx context.Context) error {
	if s.rdb == nil {
		return nil
	}

	pubsub := s.rdb.Subscribe(ctx, empresaUpdateChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to confirm company config subscription: %w", err)
	}

	for msg := range pubsub.Channel() {
		log.Printf("Company config update notification received: %s", msg.Payload)
		if err := s.Load(context.Background()); err != nil {
			log.Printf("ERROR reloading company config after notification: %v", err)
		}
	}
	return nil
}

// setOnInsertFields fills the fields not present in changes so an upsert
// creates a complete document.
func setOnInsertFields(current models.CompanyConfig, changes bson.M) bson.M {
	full := bson.M{
		"nombre":        current.Name,
		"nif":           current.TaxID,
		"direccion":     current.Address,
		"codigo_postal": current.PostalCode,
		"ciudad":        current.City,
		"telefono":      current.Phone,
		"email":         current.Email,
	}
	for key := range changes {
		delete(full, key)
	}
	return full
}
