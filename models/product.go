package models

type ProductType string

const (
	ProductWine      ProductType = "wine"
	ProductAccessory ProductType = "accessory"
)

func (t ProductType) Valid() bool {
	return t == ProductWine || t == ProductAccessory
}

// Product is the catalog entry a line item points at. It is either a
// WineProduct or an AccessoryProduct.
type Product interface {
	Type() ProductType
	DisplayName() string
	ImageURLs() []string
}

type WineProduct struct {
	Name    string
	Images  []string
	Winery  *string
	Country *string
	Year    *int
}

func (WineProduct) Type() ProductType { return ProductWine }
func (w WineProduct) DisplayName() string { return w.Name }
func (w WineProduct) ImageURLs() []string { return w.Images }

type AccessoryProduct struct {
	Name          string
	Images        []string
	AccessoryType *string
	Brand         *string
}

func (AccessoryProduct) Type() ProductType { return ProductAccessory }
func (a AccessoryProduct) DisplayName() string { return a.Name }
func (a AccessoryProduct) ImageURLs() []string { return a.Images }
