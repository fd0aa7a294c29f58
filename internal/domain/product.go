package domain

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Product types the catalog partitioner buckets on. Any other value is
// carried through but never lands in a bucket.
const (
	ProductTypeShoes       = "shoes"
	ProductTypeBags        = "bags"
	ProductTypeClothing    = "clothing"
	ProductTypeAccessories = "accessories"
)

// RecognizedTypes lists the bucketed product types in canonical order.
var RecognizedTypes = []string{
	ProductTypeShoes,
	ProductTypeBags,
	ProductTypeClothing,
	ProductTypeAccessories,
}

// IsRecognizedType reports whether t is one of RecognizedTypes.
func IsRecognizedType(t string) bool {
	for _, rt := range RecognizedTypes {
		if rt == t {
			return true
		}
	}
	return false
}

// Attributes is the opaque bag of catalog fields the similarity core never
// inspects. It is stored as JSON text in the database.
type Attributes map[string]interface{}

// Value implements the driver.Valuer interface for database serialization.
func (a Attributes) Value() (driver.Value, error) {
	if a == nil {
		return "{}", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (a *Attributes) Scan(value interface{}) error {
	if value == nil {
		*a = Attributes{}
		return nil
	}
	raw, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan Attributes")
		}
		raw = []byte(str)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(a)
}

// ProductRecord is one catalog item as seen by the similarity core.
// ProductID is the only durable key; it is unique across the whole catalog.
type ProductRecord struct {
	ProductID   string     `json:"product_id"`
	ProductType string     `json:"product_type"`
	ImageURL    string     `json:"image_url"`
	Name        string     `json:"name,omitempty"`
	Attributes  Attributes `json:"attributes,omitempty"`

	// Embedding is nil until computed.
	Embedding Vector `json:"-"`
}

// HasEmbedding reports whether an embedding has been attached.
func (r ProductRecord) HasEmbedding() bool {
	return len(r.Embedding) > 0
}

// WithEmbedding returns a copy of the record with v attached.
func (r ProductRecord) WithEmbedding(v Vector) ProductRecord {
	r.Embedding = v.Clone()
	return r
}

// DisplayName is the human-facing label for results.
func (r ProductRecord) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.ProductID
}

// UnmarshalJSON decodes a raw catalog line. product_id may be a JSON number or
// string; every field other than the core ones goes into Attributes.
func (r *ProductRecord) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	id, err := stringField(raw, "product_id")
	if err != nil {
		return err
	}
	if id == "" {
		return errors.New("product_id is required")
	}
	productType, err := stringField(raw, "product_type")
	if err != nil {
		return err
	}
	imageURL, err := stringField(raw, "image_url")
	if err != nil {
		return err
	}

	name, _ := raw["name"].(string)
	if name == "" {
		name, _ = raw["short_description"].(string)
	}

	delete(raw, "product_id")
	delete(raw, "product_type")
	delete(raw, "image_url")
	delete(raw, "name")
	delete(raw, "image_embedding")

	*r = ProductRecord{
		ProductID:   id,
		ProductType: productType,
		ImageURL:    imageURL,
		Name:        strings.TrimSpace(name),
		Attributes:  Attributes(raw),
	}
	return nil
}

func stringField(raw map[string]interface{}, key string) (string, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return "", nil
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), nil
	case json.Number:
		return t.String(), nil
	default:
		return "", fmt.Errorf("field %s has unsupported type %T", key, v)
	}
}

// Product mirrors the catalog's products table.
type Product struct {
	ProductID        string   `gorm:"column:product_id;type:text;primaryKey" json:"product_id"`
	Color            string   `gorm:"type:text" json:"color"`
	Gender           string   `gorm:"type:text" json:"gender"`
	ProductType      string   `gorm:"type:text;index:idx_products_type" json:"product_type"`
	Category         string   `gorm:"type:text" json:"category"`
	Subcategory      string   `gorm:"type:text" json:"subcategory"`
	Designer         string   `gorm:"type:text" json:"designer"`
	Retailer         string   `gorm:"type:text" json:"retailer"`
	OnSale           bool     `json:"on_sale"`
	RegularPrice     float64  `json:"regular_price"`
	DiscountPrice    *float64 `json:"discount_price"`
	ShortDescription string   `gorm:"type:text" json:"short_description"`
	LongDescription  string   `gorm:"type:text" json:"long_description"`
	ImageURL         string   `gorm:"type:text" json:"image_url"`
	ItemScore        float64  `json:"item_score"`

	// Extra holds catalog fields that have no column of their own.
	Extra Attributes `gorm:"type:text" json:"extra,omitempty"`

	// Position is the record's index in the source catalog; it fixes list order.
	Position int `gorm:"index:idx_products_position" json:"-"`
}

// columnAttributes are the attribute keys stored in dedicated columns.
var columnAttributes = map[string]bool{
	"color":             true,
	"gender":            true,
	"category":          true,
	"subcategory":       true,
	"designer":          true,
	"retailer":          true,
	"on_sale":           true,
	"regular_price":     true,
	"discount_price":    true,
	"short_description": true,
	"long_description":  true,
	"item_score":        true,
}

// TableName returns the database table name for Product.
func (Product) TableName() string {
	return "products"
}

// ToRecord converts a table row into the record the similarity core consumes.
func (p Product) ToRecord() ProductRecord {
	attrs := make(Attributes, len(p.Extra)+len(columnAttributes))
	for k, v := range p.Extra {
		attrs[k] = v
	}
	attrs["color"] = p.Color
	attrs["gender"] = p.Gender
	attrs["category"] = p.Category
	attrs["subcategory"] = p.Subcategory
	attrs["designer"] = p.Designer
	attrs["retailer"] = p.Retailer
	attrs["on_sale"] = p.OnSale
	attrs["regular_price"] = p.RegularPrice
	attrs["long_description"] = p.LongDescription
	attrs["item_score"] = p.ItemScore
	if p.DiscountPrice != nil {
		attrs["discount_price"] = *p.DiscountPrice
	}
	if p.ShortDescription != "" {
		attrs["short_description"] = p.ShortDescription
	}
	return ProductRecord{
		ProductID:   p.ProductID,
		ProductType: p.ProductType,
		ImageURL:    p.ImageURL,
		Name:        strings.TrimSpace(p.ShortDescription),
		Attributes:  attrs,
	}
}

// ProductFromRecord builds a table row from a catalog record, pulling the
// well-known columns out of Attributes. Everything else lands in Extra.
func ProductFromRecord(r ProductRecord) Product {
	p := Product{
		ProductID:        r.ProductID,
		ProductType:      r.ProductType,
		ImageURL:         r.ImageURL,
		Color:            r.Attributes.String("color"),
		Gender:           r.Attributes.String("gender"),
		Category:         r.Attributes.String("category"),
		Subcategory:      r.Attributes.String("subcategory"),
		Designer:         r.Attributes.String("designer"),
		Retailer:         r.Attributes.String("retailer"),
		OnSale:           r.Attributes.Bool("on_sale"),
		RegularPrice:     r.Attributes.Float("regular_price"),
		ShortDescription: r.Attributes.String("short_description"),
		LongDescription:  r.Attributes.String("long_description"),
		ItemScore:        r.Attributes.Float("item_score"),
	}
	if p.ShortDescription == "" {
		p.ShortDescription = r.Name
	}
	if _, ok := r.Attributes["discount_price"]; ok && r.Attributes["discount_price"] != nil {
		d := r.Attributes.Float("discount_price")
		p.DiscountPrice = &d
	}
	for k, v := range r.Attributes {
		if columnAttributes[k] {
			continue
		}
		if p.Extra == nil {
			p.Extra = Attributes{}
		}
		p.Extra[k] = v
	}
	return p
}

// String returns the attribute as a string, or "" when absent.
func (a Attributes) String(key string) string {
	switch v := a[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Float returns the attribute as a float64, or 0 when absent or not numeric.
func (a Attributes) Float(key string) float64 {
	switch v := a[key].(type) {
	case json.Number:
		f, _ := v.Float64()
		return f
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// Bool returns the attribute as a bool, or false when absent.
func (a Attributes) Bool(key string) bool {
	b, _ := a[key].(bool)
	return b
}
