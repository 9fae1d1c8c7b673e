package models

import (
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// Invoice direction. Immutable after creation: it decides whether the invoice
// shows up under sales or purchases.
const (
	InvoiceSale     = "venta"
	InvoicePurchase = "compra"
)

// Invoice status values. StatusOverdue is a display-derived state: no store
// operation writes it, but it is accepted when already present in the data.
const (
	StatusPending = "pendiente"
	StatusPaid    = "pagada"
	StatusOverdue = "vencida"
)

// InvoiceLineItem is one billable row on an invoice.
type InvoiceLineItem struct {
	Description string  `bson:"descripcion" json:"descripcion"`
	Quantity    float64 `bson:"cantidad" json:"cantidad"`
	UnitPrice   float64 `bson:"precio_unitario" json:"precioUnitario"`
	Total       float64 `bson:"total" json:"total"`
}

// Counterparty is the invoice-time snapshot of the other party. It is copied
// at creation and never follows later edits to the party record.
type Counterparty struct {
	Name       string `bson:"nombre" json:"nombre"`
	TaxID      string `bson:"nif" json:"nif"`
	Address    string `bson:"direccion" json:"direccion"`
	City       string `bson:"ciudad" json:"ciudad"`
	PostalCode string `bson:"codigo_postal" json:"codigoPostal"`
	Email      string `bson:"email" json:"email"`
	Phone      string `bson:"telefono" json:"telefono"`
}

// Attachment describes a scanned document stored in S3. ObjectKey is the
// durable reference; the file itself is only ever handled by the storage
// layer.
type Attachment struct {
	Filename    string `bson:"nombre" json:"nombre"`
	ObjectKey   string `bson:"clave" json:"clave"`
	ContentType string `bson:"tipo" json:"tipo"`
}

// Invoice represents a sale or purchase invoice. Dates are date-only strings
// (YYYY-MM-DD), matching the original persisted data.
type Invoice struct {
	Base            `bson:",inline"`
	Type            string            `bson:"tipo" json:"tipo"`
	Number          string            `bson:"numero" json:"numero"`
	IssueDate       string            `bson:"fecha" json:"fecha"`
	DueDate         string            `bson:"fecha_vencimiento" json:"fechaVencimiento"`
	Counterparty    Counterparty      `bson:"cliente" json:"cliente"`
	Items           []InvoiceLineItem `bson:"items" json:"items"`
	Subtotal        float64           `bson:"subtotal" json:"subtotal"`
	Tax             float64           `bson:"iva" json:"iva"`
	Total           float64           `bson:"total" json:"total"`
	Status          string            `bson:"estado" json:"estado"`
	PaymentDate     *string           `bson:"fecha_pago,omitempty" json:"fechaPago,omitempty"`
	Attachment      *Attachment       `bson:"archivo,omitempty" json:"archivo,omitempty"`
	OverdueNotified bool              `bson:"aviso_vencida" json:"-"`
	CreatedAt       time.Time         `bson:"created_at" json:"-"`
}

// EffectiveStatus returns the status to display for the given day: a pending
// invoice past its due date reads as vencida. Stored status is never mutated
// by this. ISO date strings compare correctly as plain strings.
func (inv *Invoice) EffectiveStatus(today string) string {
	if inv.Status == StatusPending && inv.DueDate != "" && inv.DueDate < today {
		return StatusOverdue
	}
	return inv.Status
}

// MatchesQuery reports whether the case-insensitive substring q occurs in any
// displayed field of the invoice, mirroring the free-text filter of the list
// views.
func (inv *Invoice) MatchesQuery(q string) bool {
	if q == "" {
		return true
	}
	q = strings.ToLower(q)
	fields := []string{
		inv.Number,
		inv.IssueDate,
		inv.DueDate,
		inv.Status,
		inv.Counterparty.Name,
		inv.Counterparty.TaxID,
		inv.Counterparty.Address,
		inv.Counterparty.City,
		inv.Counterparty.PostalCode,
		inv.Counterparty.Email,
		inv.Counterparty.Phone,
		fmt.Sprintf("%.2f", inv.Subtotal),
		fmt.Sprintf("%.2f", inv.Tax),
		fmt.Sprintf("%.2f", inv.Total),
	}
	for _, item := range inv.Items {
		fields = append(fields, item.Description)
	}
	if inv.Attachment != nil {
		fields = append(fields, inv.Attachment.Filename)
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

// InvoiceUpdate is a partial update payload for general invoice edits. The
// direction (tipo) is deliberately absent: it cannot change after creation.
// Attachment changes go through the dedicated attach/remove operations.
type InvoiceUpdate struct {
	Number       *string            `json:"numero"`
	IssueDate    *string            `json:"fecha"`
	DueDate      *string            `json:"fechaVencimiento"`
	Counterparty *Counterparty      `json:"cliente"`
	Items        *[]InvoiceLineItem `json:"items"`
}

// Changes returns the BSON $set document for the scalar fields. Items are
// handled by the invoice service, which recomputes totals alongside.
func (u InvoiceUpdate) Changes() bson.M {
	changes := bson.M{}
	if u.Number != nil {
		changes["numero"] = *u.Number
	}
	if u.IssueDate != nil {
		changes["fecha"] = *u.IssueDate
	}
	if u.DueDate != nil {
		changes["fecha_vencimiento"] = *u.DueDate
	}
	if u.Counterparty != nil {
		changes["cliente"] = *u.Counterparty
	}
	return changes
}
