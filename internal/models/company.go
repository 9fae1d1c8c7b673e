package models

import (
	"go.mongodb.org/mongo-driver/bson"
)

// CompanyConfig is the singleton record describing the business issuing the
// invoices. Logo is an S3 object key when set.
type CompanyConfig struct {
	Name       string `bson:"nombre" json:"nombre"`
	TaxID      string `bson:"nif" json:"nif"`
	Address    string `bson:"direccion" json:"direccion"`
	PostalCode string `bson:"codigo_postal" json:"codigoPostal"`
	City       string `bson:"ciudad" json:"ciudad"`
	Phone      string `bson:"telefono" json:"telefono"`
	Email      string `bson:"email" json:"email"`
	Logo       string `bson:"logo,omitempty" json:"logo,omitempty"`
}

// DefaultCompanyConfig returns the seeded defaults used until the user edits
// the configuration.
func DefaultCompanyConfig() CompanyConfig {
	return CompanyConfig{
		Name:       "Tu Empresa S.L.",
		TaxID:      "B12345678",
		Address:    "Calle Principal 123",
		PostalCode: "28001",
		City:       "Madrid",
		Phone:      "912345678",
		Email:      "info@tuempresa.com",
	}
}

// CompanyConfigUpdate is a partial update payload; nil means unchanged.
type CompanyConfigUpdate struct {
	Name       *string `json:"nombre"`
	TaxID      *string `json:"nif"`
	Address    *string `json:"direccion"`
	PostalCode *string `json:"codigoPostal"`
	City       *string `json:"ciudad"`
	Phone      *string `json:"telefono"`
	Email      *string `json:"email"`
	Logo       *string `json:"logo"`
}

func (u CompanyConfigUpdate) Changes() bson.M {
	changes := bson.M{}
	if u.Name != nil {
		changes["nombre"] = *u.Name
	}
	if u.TaxID != nil {
		changes["nif"] = *u.TaxID
	}
	if u.Address != nil {
		changes["direccion"] = *u.Address
	}
	if u.PostalCode != nil {
		changes["codigo_postal"] = *u.PostalCode
	}
	if u.City != nil {
		changes["ciudad"] = *u.City
	}
	if u.Phone != nil {
		changes["telefono"] = *u.Phone
	}
	if u.Email != nil {
		changes["email"] = *u.Email
	}
	if u.Logo != nil {
		changes["logo"] = *u.Logo
	}
	return changes
}
