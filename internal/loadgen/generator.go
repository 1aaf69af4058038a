// Package loadgen produces synthetic CloudEvents to a Kafka topic so a
// running kafbulk instance has something to batch and store.
package loadgen

import (
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"github.com/jaswdr/faker"
)

// Event types emitted by the generator.
const (
	EventTypeOrderPlaced  = "io.kafbulk.sample.order.placed"
	EventTypeOrderShipped = "io.kafbulk.sample.order.shipped"

	EventSource = "kafbulk-loadgen"
)

// OrderPlaced is the data of an order.placed event.
type OrderPlaced struct {
	OrderID       string    `json:"orderId"`
	CustomerID    string    `json:"customerId"`
	CustomerName  string    `json:"customerName"`
	CustomerEmail string    `json:"customerEmail"`
	Item          string    `json:"item"`
	Quantity      int       `json:"quantity"`
	AmountCents   int       `json:"amountCents"`
	PlacedAt      time.Time `json:"placedAt"`
}

// OrderShipped is the data of an order.shipped event.
type OrderShipped struct {
	OrderID     string    `json:"orderId"`
	Carrier     string    `json:"carrier"`
	Destination string    `json:"destination"`
	ShippedAt   time.Time `json:"shippedAt"`
	Express     bool      `json:"express"`
}

var carriers = []string{"ups", "fedex", "dhl", "usps", "local"}

// Generator builds fake order events.
type Generator struct {
	faker faker.Faker
	now   func() time.Time
}

// NewGenerator returns a generator stamping events with now; nil means
// time.Now.
func NewGenerator(now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{faker: faker.New(), now: now}
}

// Next returns an order.shipped event with probability shippedRatio and an
// order.placed event otherwise.
func (g *Generator) Next(shippedRatio float64) (cloudevents.Event, error) {
	if shippedRatio > 0 && g.faker.IntBetween(1, 100) <= int(shippedRatio*100) {
		return g.OrderShipped()
	}
	return g.OrderPlaced()
}

// OrderPlaced returns a new order.placed event.
func (g *Generator) OrderPlaced() (cloudevents.Event, error) {
	now := g.now()
	qty := g.faker.IntBetween(1, 5)
	data := OrderPlaced{
		OrderID:       g.id("O", 8),
		CustomerID:    g.id("C", 8),
		CustomerName:  g.faker.Person().Name(),
		CustomerEmail: g.faker.Internet().Email(),
		Item:          g.faker.Lorem().Sentence(3),
		Quantity:      qty,
		AmountCents:   qty * g.faker.IntBetween(199, 19999),
		PlacedAt:      now,
	}
	return g.event(EventTypeOrderPlaced, now, data)
}

// OrderShipped returns a new order.shipped event.
func (g *Generator) OrderShipped() (cloudevents.Event, error) {
	now := g.now()
	data := OrderShipped{
		OrderID:     g.id("O", 8),
		Carrier:     carriers[g.faker.IntBetween(0, len(carriers)-1)],
		Destination: g.faker.Address().City(),
		ShippedAt:   now,
		Express:     g.faker.IntBetween(1, 10) == 1,
	}
	return g.event(EventTypeOrderShipped, now, data)
}

func (g *Generator) event(eventType string, at time.Time, data any) (cloudevents.Event, error) {
	ev := cloudevents.NewEvent()
	ev.SetSpecVersion(cloudevents.VersionV1)
	ev.SetID(uuid.NewString())
	ev.SetType(eventType)
	ev.SetSource(EventSource)
	ev.SetTime(at)
	if err := ev.SetData(cloudevents.ApplicationJSON, data); err != nil {
		return cloudevents.Event{}, fmt.Errorf("failed to set %s data: %w", eventType, err)
	}
	return ev, nil
}

func (g *Generator) id(prefix string, n int) string {
	return prefix + g.faker.UUID().V4()[:n]
}
