package store

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/edgeflare/retailpipe/pkg/entity"
)

// DefaultSeed makes every generated dataset identical unless asked otherwise.
const DefaultSeed = 42

// Category is a product group: a display label and a machine code.
type Category struct {
	Label string
	Code  string
}

var categories = []Category{
	{"🥖🥖 Зерновые и хлебобулочные изделия", "grains"},
	{"🥩🥩 Мясо, рыба, яйца и бобовые", "meat_eggs_fish"},
	{"🥛🥛 Молочные продукты", "milk"},
	{"🍏🍏 Фрукты и ягоды", "fruits"},
	{"🥦🥦 Овощи и зелень", "vegetables"},
}

// Network is a chain of stores.
type Network struct {
	Name        string
	Stores      int
	Description string
}

// Sizes controls the generated volume.
type Sizes struct {
	Networks  []Network
	Products  int
	Purchases int
}

// DefaultSizes: 45 stores in two networks, 20 products, one customer per
// store and 200 purchases.
func DefaultSizes() Sizes {
	return Sizes{
		Networks: []Network{
			{Name: "Большая Пикча", Stores: 30, Description: "Супермаркет более 200 кв.м."},
			{Name: "Маленькая Пикча", Stores: 15, Description: "Магазин у дома менее 100 кв.м."},
		},
		Products:  20,
		Purchases: 200,
	}
}

// Dataset holds generated documents per kind in generation order.
type Dataset map[entity.Kind][]map[string]any

// Generator produces a deterministic dataset for a seed.
type Generator struct {
	fake  *gofakeit.Faker
	sizes Sizes
	now   time.Time
}

// NewGenerator returns a Generator. now anchors every generated date.
func NewGenerator(seed int64, sizes Sizes, now time.Time) *Generator {
	return &Generator{fake: gofakeit.New(seed), sizes: sizes, now: now.UTC()}
}

// Generate builds stores, products, customers and purchases, in that order,
// so references between them always resolve.
func (g *Generator) Generate() Dataset {
	stores := g.stores()
	products := g.products()
	customers := g.customers(stores)
	purchases := g.purchases(stores, products, customers)

	return Dataset{
		entity.KindStore:    stores,
		entity.KindProduct:  products,
		entity.KindCustomer: customers,
		entity.KindPurchase: purchases,
	}
}

func (g *Generator) stores() []map[string]any {
	labels := make([]string, 0, len(categories))
	codes := make([]string, 0, len(categories))
	for _, c := range categories {
		labels = append(labels, c.Label)
		codes = append(codes, c.Code)
	}

	var stores []map[string]any
	for _, network := range g.sizes.Networks {
		for range network.Stores {
			id := fmt.Sprintf("store-%03d", len(stores)+1)
			stores = append(stores, map[string]any{
				"store_id":               id,
				"store_name":             fmt.Sprintf("%s — Магазин на %s", network.Name, g.fake.StreetName()),
				"store_network":          network.Name,
				"store_type_description": fmt.Sprintf("%s Входит в сеть из %d магазинов.", network.Description, network.Stores),
				"type":                   "offline",
				"categories_labels":      labels,
				"categories_codes":       codes,
				"manager": map[string]any{
					"name":  g.fake.Name(),
					"phone": g.fake.PhoneFormatted(),
					"email": g.fake.Email(),
				},
				"location": g.location(),
				"opening_hours": map[string]any{
					"mon_fri": "09:00-21:00",
					"sat":     "10:00-20:00",
					"sun":     "10:00-18:00",
				},
				"accepts_online_orders": true,
				"delivery_available":    true,
				"warehouse_connected":   g.fake.Bool(),
				"last_inventory_date":   g.now.Format(time.DateOnly),
			})
		}
	}
	return stores
}

func (g *Generator) location() map[string]any {
	return map[string]any{
		"country":     "Россия",
		"city":        g.fake.City(),
		"street":      g.fake.StreetName(),
		"house":       g.fake.StreetNumber(),
		"postal_code": g.fake.Zip(),
		"coordinates": map[string]any{
			"latitude":  round(g.fake.Latitude(), 6),
			"longitude": round(g.fake.Longitude(), 6),
		},
	}
}

func (g *Generator) products() []map[string]any {
	products := make([]map[string]any, 0, g.sizes.Products)
	for i := range g.sizes.Products {
		c := categories[g.fake.IntRange(0, len(categories)-1)]
		products = append(products, map[string]any{
			"product_id":    fmt.Sprintf("prd-%d", 1000+i),
			"product_name":  g.fake.ProductName(),
			"group":         c.Label,
			"category_code": c.Code,
			"description":   g.fake.Sentence(8),
			"kbju": map[string]any{
				"calories":      round(g.fake.Float64Range(50, 300), 1),
				"protein":       round(g.fake.Float64Range(0.5, 20), 1),
				"fat":           round(g.fake.Float64Range(0.1, 15), 1),
				"carbohydrates": round(g.fake.Float64Range(0.5, 50), 1),
			},
			"price":          round(g.fake.Float64Range(30, 300), 2),
			"unit":           "шт",
			"origin_country": "Россия",
			"expiry_days":    g.fake.IntRange(5, 30),
			"is_organic":     g.fake.Bool(),
			"barcode":        g.fake.Numerify("#############"),
			"manufacturer": map[string]any{
				"name":    g.fake.Company(),
				"country": "Россия",
				"website": "https://" + g.fake.DomainName(),
				"inn":     g.fake.Numerify("##########"),
			},
		})
	}
	return products
}

func (g *Generator) customers(stores []map[string]any) []map[string]any {
	customers := make([]map[string]any, 0, len(stores))
	for _, store := range stores {
		location := store["location"].(map[string]any)
		birth := g.fake.DateRange(g.now.AddDate(-70, 0, 0), g.now.AddDate(-18, 0, 0))
		customers = append(customers, map[string]any{
			"customer_id":         fmt.Sprintf("cus-%d", 1000+len(customers)),
			"first_name":          g.fake.FirstName(),
			"last_name":           g.fake.LastName(),
			"email":               g.fake.Email(),
			"phone":               g.fake.PhoneFormatted(),
			"birth_date":          birth.Format(time.DateOnly),
			"gender":              g.fake.RandomString([]string{"male", "female"}),
			"registration_date":   g.now.Format(time.RFC3339),
			"is_loyalty_member":   true,
			"loyalty_card_number": "LOYAL-" + g.fake.Regex(`[0-9A-F]{10}`),
			"home_store_id":       store["store_id"],
			"purchase_location":   location,
			"delivery_address": map[string]any{
				"country":     "Россия",
				"city":        location["city"],
				"street":      g.fake.StreetName(),
				"house":       g.fake.StreetNumber(),
				"apartment":   fmt.Sprint(g.fake.IntRange(1, 100)),
				"postal_code": g.fake.Zip(),
			},
			"preferences": map[string]any{
				"preferred_language":       "ru",
				"preferred_payment_method": g.fake.RandomString([]string{"card", "cash"}),
				"receive_promotions":       g.fake.Bool(),
			},
		})
	}
	return customers
}

func (g *Generator) purchases(stores, products, customers []map[string]any) []map[string]any {
	if len(stores) == 0 || len(products) == 0 || len(customers) == 0 {
		return nil
	}

	purchases := make([]map[string]any, 0, g.sizes.Purchases)
	for i := range g.sizes.Purchases {
		customer := customers[g.fake.IntRange(0, len(customers)-1)]
		store := stores[g.fake.IntRange(0, len(stores)-1)]

		var (
			items []map[string]any
			total float64
		)
		for _, idx := range g.sample(len(products), g.fake.IntRange(1, min(3, len(products)))) {
			p := products[idx]
			qty := g.fake.IntRange(1, 5)
			price := p["price"].(float64)
			lineTotal := round(price*float64(qty), 2)
			total += lineTotal
			items = append(items, map[string]any{
				"product_id":     p["product_id"],
				"product_name":   p["product_name"],
				"category":       p["group"],
				"category_code":  p["category_code"],
				"quantity":       qty,
				"unit":           p["unit"],
				"price_per_unit": price,
				"total_price":    lineTotal,
				"kbju":           p["kbju"],
				"manufacturer":   p["manufacturer"],
			})
		}

		cash := g.fake.Bool()
		purchases = append(purchases, map[string]any{
			"purchase_id": fmt.Sprintf("ord-%05d", i+1),
			"customer": map[string]any{
				"customer_id": customer["customer_id"],
				"first_name":  customer["first_name"],
				"last_name":   customer["last_name"],
			},
			"store": map[string]any{
				"store_id":      store["store_id"],
				"store_name":    store["store_name"],
				"store_network": store["store_network"],
				"location":      store["location"],
			},
			"items":             items,
			"total_amount":      round(total, 2),
			"paid_cash":         boolInt(cash),
			"paid_card":         boolInt(!cash),
			"delivery":          boolInt(g.fake.Float64Range(0, 1) < 0.3),
			"delivery_address":  customer["delivery_address"],
			"purchase_datetime": g.now.AddDate(0, 0, -g.fake.IntRange(0, 90)).Format(time.RFC3339),
		})
	}
	return purchases
}

// sample returns k distinct indexes out of n.
func (g *Generator) sample(n, k int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	for i := range k {
		j := g.fake.IntRange(i, n-1)
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx[:k]
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Write stores the dataset as <dir>/<collection>/<natural id>.json and
// returns the number of files written.
func Write(dir string, ds Dataset) (int, error) {
	var n int
	for _, kind := range entity.Kinds() {
		collDir := filepath.Join(dir, kind.Collection())
		if err := os.MkdirAll(collDir, 0o755); err != nil {
			return n, fmt.Errorf("create %s: %w", collDir, err)
		}

		for _, doc := range ds[kind] {
			id, _ := doc[kind.IDField()].(string)
			if id == "" {
				return n, fmt.Errorf("%s document without %s", kind, kind.IDField())
			}
			data, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return n, fmt.Errorf("encode %s %s: %w", kind, id, err)
			}
			if err := os.WriteFile(filepath.Join(collDir, id+".json"), data, 0o644); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}
