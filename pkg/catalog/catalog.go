package catalog

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"vending/pkg/inventory"
)

// Catalog is the initial stock and change reserve a new machine starts with.
type Catalog struct {
	Items         []inventory.Item
	Denominations []inventory.Denomination
}

type itemEntry struct {
	Name     string `koanf:"name"`
	Price    int    `koanf:"price"`
	Quantity int    `koanf:"quantity"`
}

type denominationEntry struct {
	Value    int `koanf:"value"`
	Quantity int `koanf:"quantity"`
}

type document struct {
	Items         []itemEntry         `koanf:"items"`
	Denominations []denominationEntry `koanf:"denominations"`
}

// Default returns the stock the machine ships with.
func Default() Catalog {
	return Catalog{
		Items: []inventory.Item{
			{Name: "Americano", Price: 950, Quantity: 10},
			{Name: "Cappuccino", Price: 1200, Quantity: 8},
			{Name: "Lates", Price: 1350, Quantity: 10},
			{Name: "Mocaccino", Price: 1500, Quantity: 15},
		},
		Denominations: []inventory.Denomination{
			{Value: 1000, Quantity: 0},
			{Value: 500, Quantity: 20},
			{Value: 100, Quantity: 30},
			{Value: 50, Quantity: 50},
			{Value: 25, Quantity: 25},
		},
	}
}

// Load reads a YAML catalog. An empty path yields Default.
func Load(path string) (Catalog, error) {
	if path == "" {
		return Default(), nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return Catalog{}, fmt.Errorf("load catalog %s: %w", path, err)
	}

	var doc document
	if err := k.Unmarshal("", &doc); err != nil {
		return Catalog{}, fmt.Errorf("unmarshal catalog: %w", err)
	}

	c := Catalog{
		Items:         make([]inventory.Item, 0, len(doc.Items)),
		Denominations: make([]inventory.Denomination, 0, len(doc.Denominations)),
	}
	for _, e := range doc.Items {
		c.Items = append(c.Items, inventory.Item{Name: e.Name, Price: e.Price, Quantity: e.Quantity})
	}
	for _, e := range doc.Denominations {
		c.Denominations = append(c.Denominations, inventory.Denomination{Value: e.Value, Quantity: e.Quantity})
	}
	if err := c.Validate(); err != nil {
		return Catalog{}, err
	}
	return c, nil
}

// Validate checks every row and rejects duplicates.
func (c Catalog) Validate() error {
	if len(c.Items) == 0 {
		return fmt.Errorf("catalog: at least one item required")
	}
	names := make(map[string]struct{}, len(c.Items))
	for _, item := range c.Items {
		if err := item.Validate(); err != nil {
			return fmt.Errorf("catalog: %w", err)
		}
		key := strings.ToLower(item.Name)
		if _, dup := names[key]; dup {
			return fmt.Errorf("catalog: duplicate item %s", item.Name)
		}
		names[key] = struct{}{}
	}

	values := make(map[int]struct{}, len(c.Denominations))
	for _, d := range c.Denominations {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("catalog: %w", err)
		}
		if _, dup := values[d.Value]; dup {
			return fmt.Errorf("catalog: duplicate denomination %d", d.Value)
		}
		values[d.Value] = struct{}{}
	}
	return nil
}
