// simulator publishes synthetic order-update deltas to the restaurant's
// live channel so the console can be exercised without a real kitchen.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/forkline/ordersync/internal/domain"
)

var statuses = []domain.Status{
	domain.StatusPending,
	domain.StatusInProgress,
	domain.StatusReady,
	domain.StatusServed,
	domain.StatusCancelled,
	domain.StatusCompleted,
}

var menu = []struct {
	name  string
	price float64
}{
	{"margherita", 11.50},
	{"carbonara", 13.00},
	{"tiramisu", 6.50},
	{"espresso", 2.20},
	{"house red", 5.00},
}

func main() {
	brokers := flag.String("brokers", envDefault("KAFKA_BROKERS", "localhost:9092"), "comma-separated kafka brokers")
	restaurant := flag.String("restaurant", envDefault("RESTAURANT_ID", "rest-1"), "restaurant id")
	prefix := flag.String("topic-prefix", envDefault("KAFKA_TOPIC_PREFIX", "orders"), "live channel topic prefix")
	rate := flag.Duration("rate", 500*time.Millisecond, "delay between deltas")
	flag.Parse()

	topic := *prefix + "." + *restaurant
	writer := &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(*brokers, ",")...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
	}
	defer writer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("publishing deltas to %s every %v", topic, *rate)

	// Keep a small pool of live order ids so the same order walks through
	// several statuses, like a real service period.
	var pool []string
	ticker := time.NewTicker(*rate)
	defer ticker.Stop()

	sent := 0
	for {
		select {
		case <-ctx.Done():
			log.Printf("done, sent %d deltas", sent)
			return
		case <-ticker.C:
		}

		var id string
		if len(pool) > 0 && rand.Intn(3) > 0 {
			id = pool[rand.Intn(len(pool))]
		} else {
			id = uuid.NewString()
			pool = append(pool, id)
			if len(pool) > 40 {
				pool = pool[1:]
			}
		}

		raw, err := json.Marshal(fakeDelta(id))
		if err != nil {
			log.Printf("marshal delta: %v", err)
			continue
		}
		err = writer.WriteMessages(ctx, kafka.Message{
			Key:   []byte(topic),
			Value: raw,
			Time:  time.Now(),
			Headers: []kafka.Header{
				{Key: "event", Value: []byte("order-update")},
			},
		})
		if err != nil {
			log.Printf("write delta: %v", err)
			continue
		}
		sent++
	}
}

func fakeDelta(id string) domain.Order {
	n := 1 + rand.Intn(3)
	items := make([]domain.Item, 0, n)
	total := 0.0
	for i := 0; i < n; i++ {
		dish := menu[rand.Intn(len(menu))]
		qty := 1 + rand.Intn(2)
		items = append(items, domain.Item{
			ID:          uuid.NewString(),
			MenuItemID:  dish.name,
			Name:        dish.name,
			Quantity:    qty,
			PriceAtTime: dish.price,
		})
		total += dish.price * float64(qty)
	}

	now := time.Now().UTC()
	return domain.Order{
		ID:          id,
		Status:      statuses[rand.Intn(len(statuses))],
		TableRef:    []string{"T1", "T2", "T3", "T7", "bar"}[rand.Intn(5)],
		Items:       items,
		TotalAmount: total,
		CreatedAt:   now.Add(-time.Duration(rand.Intn(1800)) * time.Second),
		UpdatedAt:   now,
	}
}

func envDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
