package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/DLXSERVEIS/Facturacion/internal/db"
	"github.com/DLXSERVEIS/Facturacion/internal/models"
)

// ErrDuplicateID is returned when an insert carries an identifier that
// already exists in the collection.
var ErrDuplicateID = errors.New("a record with that id already exists")

// IPartyService defines the store operations shared by clients and suppliers.
type IPartyService interface {
	Add(ctx context.Context, party *models.Party) error
	FindByID(ctx context.Context, id string) (*models.Party, error)
	Update(ctx context.Context, id string, upd models.PartyUpdate) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]models.Party, error)
	EnsureSeeded(ctx context.Context) error
}

const (
	clientesCollection    = "clientes"
	proveedoresCollection = "proveedores"
)

// partyService implements IPartyService over a named collection.
type partyService struct {
	db         *mongo.Database
	collection string
	seed       []models.Party
}

// NewClienteService creates the client store.
func NewClienteService(db *mongo.Database) IPartyService {
	return &partyService{db: db, collection: clientesCollection, seed: defaultClientes()}
}

// NewProveedorService creates the supplier store.
func NewProveedorService(db *mongo.Database) IPartyService {
	return &partyService{db: db, collection: proveedoresCollection, seed: defaultProveedores()}
}

// Add inserts a new party. When the caller supplied an identifier, a
// collision is rejected; when the record arrives without one, the id is
// generated here and regenerated on the (unlikely) duplicate.
func (s *partyService) Add(ctx context.Context, party *models.Party) error {
	collection := s.db.Collection(s.collection)
	party.CreatedAt = time.Now().UTC()

	if party.ID == "" {
		operation := func() error {
			party.GenID()
			_, insertErr := collection.InsertOne(ctx, party)
			return insertErr
		}
		if err := db.Try(operation); err != nil {
			return fmt.Errorf("failed to insert %s %s: %w", s.collection, party.ID, err)
		}
		return nil
	}

	_, err := collection.InsertOne(ctx, party)
	if err != nil {
		if db.IsMongoDuplicateKeyError(err) {
			return ErrDuplicateID
		}
		return fmt.Errorf("failed to insert %s %s: %w", s.collection, party.ID, err)
	}
	return nil
}

// FindByID returns the party or mongo.ErrNoDocuments.
func (s *partyService) FindByID(ctx context.Context, id string) (*models.Party, error) {
	var party models.Party
	err := s.db.Collection(s.collection).FindOne(ctx, bson.M{"_id": id}).Decode(&party)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding %s by id %s: %w", s.collection, id, err)
	}
	return &party, nil
}

// Update merges the provided fields into the matching record. An unknown id
// and an empty partial are both silent no-ops.
func (s *partyService) Update(ctx context.Context, id string, upd models.PartyUpdate) error {
	changes := upd.Changes()
	if len(changes) == 0 {
		return nil
	}
	_, err := s.db.Collection(s.collection).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": changes})
	if err != nil {
		return fmt.Errorf("failed to update %s %s: %w", s.collection, id, err)
	}
	return nil
}

// Delete removes the matching record; removing an absent id is a no-op.
func (s *partyService) Delete(ctx context.Context, id string) error {
	_, err := s.db.Collection(s.collection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", s.collection, id, err)
	}
	return nil
}

// List returns the full collection in insertion order.
func (s *partyService) List(ctx context.Context) ([]models.Party, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.db.Collection(s.collection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", s.collection, err)
	}
	defer cursor.Close(ctx)

	parties := []models.Party{}
	if err = cursor.All(ctx, &parties); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", s.collection, err)
	}
	return parties, nil
}

// EnsureSeeded inserts the sample records when the collection is empty, so a
// fresh install starts with data to click on.
func (s *partyService) EnsureSeeded(ctx context.Context) error {
	collection := s.db.Collection(s.collection)
	count, err := collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("failed to count %s: %w", s.collection, err)
	}
	if count > 0 {
		return nil
	}

	now := time.Now().UTC()
	docs := make([]interface{}, len(s.seed))
	for i := range s.seed {
		party := s.seed[i]
		party.CreatedAt = now.Add(time.Duration(i) * time.Millisecond)
		docs[i] = party
	}
	if _, err := collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to seed %s: %w", s.collection, err)
	}
	return nil
}

func defaultClientes() []models.Party {
	return []models.Party{
		{
			Base:       models.Base{ID: "1"},
			Name:       "Empresa ABC S.L.",
			TaxID:      "B12345678",
			Email:      "contacto@empresaabc.com",
			Phone:      "912345678",
			Address:    "Calle Principal 123",
			City:       "Madrid",
			PostalCode: "28001",
		},
		{
			Base:       models.Base{ID: "2"},
			Name:       "Comercial XYZ S.A.",
			TaxID:      "A87654321",
			Email:      "info@comercialxyz.com",
			Phone:      "934567890",
			Address:    "Avenida Central 456",
			City:       "Barcelona",
			PostalCode: "08001",
		},
	}
}

func defaultProveedores() []models.Party {
	return []models.Party{
		{
			Base:       models.Base{ID: "1"},
			Name:       "Proveedor ABC S.L.",
			TaxID:      "B12345678",
			Email:      "contacto@proveedorabc.com",
			Phone:      "912345678",
			Address:    "Calle Principal 123",
			City:       "Madrid",
			PostalCode: "28001",
		},
		{
			Base:       models.Base{ID: "2"},
			Name:       "Proveedor XYZ S.A.",
			TaxID:      "A87654321",
			Email:      "info@proveedorxyz.com",
			Phone:      "934567890",
			Address:    "Avenida Central 456",
			City:       "Barcelona",
			PostalCode: "08001",
		},
	}
}
