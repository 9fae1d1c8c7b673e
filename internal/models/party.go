package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// Party is a client or supplier record. The two are structurally identical;
// which collection holds a record decides which one it is.
// JSON keys keep the original Spanish data format.
type Party struct {
	Base       `bson:",inline"`
	Name       string    `bson:"nombre" json:"nombre"`
	TaxID      string    `bson:"nif" json:"nif"`
	Email      string    `bson:"email" json:"email"`
	Phone      string    `bson:"telefono" json:"telefono"`
	Address    string    `bson:"direccion" json:"direccion"`
	City       string    `bson:"ciudad" json:"ciudad"`
	PostalCode string    `bson:"codigo_postal" json:"codigoPostal"`
	CreatedAt  time.Time `bson:"created_at" json:"-"`
}

// PartyUpdate is a partial update payload. Nil pointers mean "leave the field
// unchanged"; JSON null is treated the same as an absent key.
type PartyUpdate struct {
	Name       *string `json:"nombre"`
	TaxID      *string `json:"nif"`
	Email      *string `json:"email"`
	Phone      *string `json:"telefono"`
	Address    *string `json:"direccion"`
	City       *string `json:"ciudad"`
	PostalCode *string `json:"codigoPostal"`
}

// Changes returns the BSON $set document for the provided fields.
func (u PartyUpdate) Changes() bson.M {
	changes := bson.M{}
	if u.Name != nil {
		changes["nombre"] = *u.Name
	}
	if u.TaxID != nil {
		changes["nif"] = *u.TaxID
	}
	if u.Email != nil {
		changes["email"] = *u.Email
	}
	if u.Phone != nil {
		changes["telefono"] = *u.Phone
	}
	if u.Address != nil {
		changes["direccion"] = *u.Address
	}
	if u.City != nil {
		changes["ciudad"] = *u.City
	}
	if u.PostalCode != nil {
		changes["codigo_postal"] = *u.PostalCode
	}
	return changes
}
