// Package fixtures generates randomized demo data and loads it through the
// command layer. Nothing in the core packages depends on it.
package fixtures

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/example/marketplace-ledger/internal/command"
	"github.com/example/marketplace-ledger/internal/domain/order"
)

type product struct {
	name     string
	minPrice int64
	maxPrice int64
}

var catalogue = map[string][]product{
	"bakery": {
		{"Sourdough loaf", 350, 650},
		{"Baguette", 200, 400},
		{"Cinnamon roll", 150, 300},
	},
	"produce": {
		{"Heirloom tomatoes", 300, 700},
		{"Salad greens", 250, 500},
		{"Strawberries", 400, 900},
	},
	"dairy": {
		{"Goat cheese", 500, 1100},
		{"Whole milk", 180, 320},
		{"Greek yogurt", 220, 480},
	},
	"pantry": {
		{"Wildflower honey", 700, 1400},
		{"Olive oil", 900, 1900},
		{"Granola", 450, 800},
	},
}

var categories = []string{"bakery", "produce", "dairy", "pantry"}

// stages an order can be driven to, weighted towards completed deliveries
var stages = []order.Status{
	order.StatusPending,
	order.StatusAccepted,
	order.StatusPickedUp,
	order.StatusInTransit,
	order.StatusDelivered,
	order.StatusDelivered,
	order.StatusDelivered,
	order.StatusCancelled,
}

type Options struct {
	Producers int
	Buyers    int
	Couriers  int
	Orders    int
}

func DefaultOptions() Options {
	return Options{Producers: 3, Buyers: 5, Couriers: 2, Orders: 20}
}

// PlannedOrder is an order to place and the status to drive it to
type PlannedOrder struct {
	BuyerID   string
	CourierID string
	Command   command.PlaceOrder
	Stage     order.Status
}

type Scenario struct {
	Producers []string
	Buyers    []string
	Couriers  []string
	// TopUps is the amount credited to each buyer before ordering; it always
	// covers the buyer's planned orders.
	TopUps map[string]int64
	Orders []PlannedOrder
}

// Actors lists every participant with the role they act in
func (s Scenario) Actors() []order.Actor {
	var actors []order.Actor
	add := func(ids []string, role order.Role) {
		for _, id := range ids {
			actors = append(actors, order.Actor{ID: id, Role: role})
		}
	}
	add(s.Producers, order.RoleProducer)
	add(s.Buyers, order.RoleBuyer)
	add(s.Couriers, order.RoleCourier)
	return actors
}

// Generator builds scenarios from a seeded source, so one seed always yields
// the same data.
type Generator struct {
	rng *rand.Rand
	now func() time.Time
}

func NewGenerator(seed uint64) *Generator {
	return &Generator{
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now: time.Now,
	}
}

func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

func ids(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s-%d", prefix, i+1)
	}
	return out
}

func (g *Generator) Scenario(opts Options) (Scenario, error) {
	if opts.Producers <= 0 || opts.Buyers <= 0 || opts.Couriers <= 0 || opts.Orders < 0 {
		return Scenario{}, fmt.Errorf("fixtures need at least one producer, buyer and courier")
	}

	s := Scenario{
		Producers: ids("producer", opts.Producers),
		Buyers:    ids("buyer", opts.Buyers),
		Couriers:  ids("courier", opts.Couriers),
		TopUps:    make(map[string]int64, opts.Buyers),
	}

	for range opts.Orders {
		buyer := s.Buyers[g.rng.IntN(len(s.Buyers))]
		planned := PlannedOrder{
			BuyerID: buyer,
			Command: g.placeOrder(s.Producers[g.rng.IntN(len(s.Producers))]),
			Stage:   stages[g.rng.IntN(len(stages))],
		}
		if planned.Stage != order.StatusPending && planned.Stage != order.StatusCancelled {
			planned.CourierID = s.Couriers[g.rng.IntN(len(s.Couriers))]
		}
		s.TopUps[buyer] += total(planned.Command.Items)
		s.Orders = append(s.Orders, planned)
	}

	// some spare balance on top of what the orders need
	for _, buyer := range s.Buyers {
		s.TopUps[buyer] += 1000 + 100*g.rng.Int64N(50)
	}
	return s, nil
}

func (g *Generator) placeOrder(producerID string) command.PlaceOrder {
	category := categories[g.rng.IntN(len(categories))]
	products := catalogue[category]

	n := 1 + g.rng.IntN(len(products))
	items := make([]command.OrderItem, 0, n)
	for _, i := range g.rng.Perm(len(products))[:n] {
		p := products[i]
		items = append(items, command.OrderItem{
			Name:      p.name,
			Quantity:  1 + g.rng.IntN(4),
			UnitPrice: p.minPrice + 10*g.rng.Int64N((p.maxPrice-p.minPrice)/10+1),
		})
	}

	distance := float64(5+g.rng.IntN(150)) / 10
	return command.PlaceOrder{
		ProducerID:          producerID,
		Items:               items,
		Category:            category,
		Distance:            distance,
		EstimatedDeliveryAt: g.now().Add(time.Duration(20+g.rng.IntN(70)) * time.Minute).UTC().Truncate(time.Second),
	}
}

func total(items []command.OrderItem) int64 {
	var sum int64
	for _, item := range items {
		sum += int64(item.Quantity) * item.UnitPrice
	}
	return sum
}
