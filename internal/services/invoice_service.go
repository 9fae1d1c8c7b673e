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

// IInvoiceService defines the invoice store and lifecycle operations.
type IInvoiceService interface {
	Add(ctx context.Context, invoice *models.Invoice) error
	FindByID(ctx context.Context, id string) (*models.Invoice, error)
	Update(ctx context.Context, id string, upd models.InvoiceUpdate) error
	Delete(ctx context.Context, id string) error
	MarkPaid(ctx context.Context, id, paymentDate string) error
	MarkPending(ctx context.Context, id string) error
	List(ctx context.Context, invoiceType, query string) ([]models.Invoice, error)
	AttachFile(ctx context.Context, id string, attachment models.Attachment) (*models.Attachment, error)
	RemoveAttachment(ctx context.Context, id string) (*models.Attachment, error)
	FindOverdue(ctx context.Context, today string) ([]models.Invoice, error)
	MarkOverdueNotified(ctx context.Context, id string) error
}

const facturasCollection = "facturas"

// invoiceService implements IInvoiceService.
type invoiceService struct {
	db *mongo.Database
}

// NewInvoiceService creates a new InvoiceService.
func NewInvoiceService(db *mongo.Database) IInvoiceService {
	return &invoiceService{db: db}
}

// Add inserts a fully formed invoice: totals and status are the caller's
// responsibility (the handler runs the calculator before calling this).
func (s *invoiceService) Add(ctx context.Context, invoice *models.Invoice) error {
	collection := s.db.Collection(facturasCollection)
	invoice.CreatedAt = time.Now().UTC()
	if invoice.Status == "" {
		invoice.Status = models.StatusPending
	}

	if invoice.ID == "" {
		operation := func() error {
			invoice.GenID()
			_, insertErr := collection.InsertOne(ctx, invoice)
			return insertErr
		}
		if err := db.Try(operation); err != nil {
			return fmt.Errorf("failed to insert invoice %s: %w", invoice.ID, err)
		}
		return nil
	}

	_, err := collection.InsertOne(ctx, invoice)
	if err != nil {
		if db.IsMongoDuplicateKeyError(err) {
			return ErrDuplicateID
		}
		return fmt.Errorf("failed to insert invoice %s: %w", invoice.ID, err)
	}
	return nil
}

// FindByID returns the invoice or mongo.ErrNoDocuments.
func (s *invoiceService) FindByID(ctx context.Context, id string) (*models.Invoice, error) {
	var invoice models.Invoice
	err := s.db.Collection(facturasCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&invoice)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding invoice by id %s: %w", id, err)
	}
	return &invoice, nil
}

// Update merges the provided fields. When items are provided, line totals and
// the invoice totals are recomputed before persisting, so the stored amounts
// always satisfy the derivation invariants. Unknown id and empty partial are
// silent no-ops.
func (s *invoiceService) Update(ctx context.Context, id string, upd models.InvoiceUpdate) error {
	changes := upd.Changes()
	if upd.DueDate != nil {
		// A new due date restarts the overdue reminder cycle.
		changes["aviso_vencida"] = false
	}
	if upd.Items != nil {
		lines, totals := ComputeTotals(*upd.Items)
		changes["items"] = lines
		changes["subtotal"] = totals.Subtotal
		changes["iva"] = totals.Tax
		changes["total"] = totals.Total
	}
	if len(changes) == 0 {
		return nil
	}
	_, err := s.db.Collection(facturasCollection).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": changes})
	if err != nil {
		return fmt.Errorf("failed to update invoice %s: %w", id, err)
	}
	return nil
}

// Delete removes the invoice; deleting an absent id is a no-op. Attachment
// blob cleanup is the caller's concern (it runs as a background task).
func (s *invoiceService) Delete(ctx context.Context, id string) error {
	_, err := s.db.Collection(facturasCollection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete invoice %s: %w", id, err)
	}
	return nil
}

// MarkPaid sets the invoice to pagada and records the payment date. Unknown
// id is a silent no-op.
func (s *invoiceService) MarkPaid(ctx context.Context, id, paymentDate string) error {
	update := bson.M{"$set": bson.M{"estado": models.StatusPaid, "fecha_pago": paymentDate}}
	_, err := s.db.Collection(facturasCollection).UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to mark invoice %s paid: %w", id, err)
	}
	return nil
}

// MarkPending undoes a payment: status back to pendiente, payment date
// cleared. The overdue-reminder flag is reset too, so an invoice that goes
// overdue again after the undo gets reminded again. Unknown id is a silent
// no-op.
func (s *invoiceService) MarkPending(ctx context.Context, id string) error {
	update := bson.M{
		"$set":   bson.M{"estado": models.StatusPending, "aviso_vencida": false},
		"$unset": bson.M{"fecha_pago": ""},
	}
	_, err := s.db.Collection(facturasCollection).UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to mark invoice %s pending: %w", id, err)
	}
	return nil
}

// List returns invoices in insertion order, optionally restricted to one
// direction and filtered by a case-insensitive substring across displayed
// fields. The substring filter runs here rather than in the query, matching
// the way the list views search every visible column.
func (s *invoiceService) List(ctx context.Context, invoiceType, query string) ([]models.Invoice, error) {
	filter := bson.M{}
	if invoiceType != "" {
		filter["tipo"] = invoiceType
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.db.Collection(facturasCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer cursor.Close(ctx)

	invoices := []models.Invoice{}
	if err = cursor.All(ctx, &invoices); err != nil {
		return nil, fmt.Errorf("failed to decode invoices: %w", err)
	}

	if query == "" {
		return invoices, nil
	}
	matched := invoices[:0]
	for i := range invoices {
		if invoices[i].MatchesQuery(query) {
			matched = append(matched, invoices[i])
		}
	}
	return matched, nil
}

// AttachFile sets the attachment descriptor and returns the descriptor it
// replaced, if any, so the caller can clean up the orphaned blob. Returns
// mongo.ErrNoDocuments when the invoice does not exist.
func (s *invoiceService) AttachFile(ctx context.Context, id string, attachment models.Attachment) (*models.Attachment, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)
	update := bson.M{"$set": bson.M{"archivo": attachment}}

	var previous models.Invoice
	err := s.db.Collection(facturasCollection).FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&previous)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("failed to attach file to invoice %s: %w", id, err)
	}
	return previous.Attachment, nil
}

// RemoveAttachment unsets the attachment and returns the removed descriptor
// so its blob can be cleaned up. Unknown id yields (nil, nil): removing from
// an absent invoice is a no-op like every other not-found write.
func (s *invoiceService) RemoveAttachment(ctx context.Context, id string) (*models.Attachment, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)
	update := bson.M{"$unset": bson.M{"archivo": ""}}

	var previous models.Invoice
	err := s.db.Collection(facturasCollection).FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&previous)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to remove attachment from invoice %s: %w", id, err)
	}
	return previous.Attachment, nil
}

// FindOverdue retrieves pending invoices past their due date that have not
// been reminded yet. ISO date strings order correctly under the plain $lt
// comparison.
func (s *invoiceService) FindOverdue(ctx context.Context, today string) ([]models.Invoice, error) {
	filter := bson.M{
		"estado":            models.StatusPending,
		"fecha_vencimiento": bson.M{"$lt": today},
		"aviso_vencida":     false,
	}
	cursor, err := s.db.Collection(facturasCollection).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query overdue invoices: %w", err)
	}
	defer cursor.Close(ctx)

	var invoices []models.Invoice
	if err = cursor.All(ctx, &invoices); err != nil {
		return nil, fmt.Errorf("failed to decode overdue invoices: %w", err)
	}
	return invoices, nil
}

// MarkOverdueNotified flags an invoice so the reminder is sent once.
func (s *invoiceService) MarkOverdueNotified(ctx context.Context, id string) error {
	update := bson.M{"$set": bson.M{"aviso_vencida": true}}
	result, err := s.db.Collection(facturasCollection).UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("db error marking invoice %s overdue notified: %w", id, err)
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}
