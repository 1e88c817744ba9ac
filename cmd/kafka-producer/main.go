package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
)

// EndorsementEvent mirrors the consumer's message format
type EndorsementEvent struct {
	Endorser  string    `json:"endorser"`
	Owner     string    `json:"owner"`
	SkillID   string    `json:"skill_id"`
	Timestamp time.Time `json:"timestamp"`
}

// syntheticAddress returns a deterministic fake wallet address for index idx
func syntheticAddress(idx int) string {
	return fmt.Sprintf("0x%040x", idx+1)
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "skill-endorsements", "Kafka topic")
	skillIDs := flag.String("skills", "", "Skill ids to endorse (comma-separated, required)")
	totalUsers := flag.Int("users", 200, "Number of synthetic wallet addresses")
	eventsPerSecond := flag.Int("rate", 50, "Endorsement events per second")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	flag.Parse()

	if *skillIDs == "" {
		log.Fatal("-skills is required (comma-separated skill ids that exist in the catalog)")
	}
	skills := strings.Split(*skillIDs, ",")
	brokerList := strings.Split(*brokers, ",")

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("  🚀 Kafka Endorsement Producer")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("  Brokers:      %s\n", *brokers)
	fmt.Printf("  Topic:        %s\n", *topic)
	fmt.Printf("  Skills:       %d\n", len(skills))
	fmt.Printf("  Users:        %d\n", *totalUsers)
	fmt.Printf("  Events/sec:   %d\n", *eventsPerSecond)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	// Configure Sarama producer
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}
	defer producer.Close()

	// Handle producer errors and successes
	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})

	sendEvent := func(event EndorsementEvent) {
		data, err := json.Marshal(event)
		if err != nil {
			log.Printf("Failed to marshal event: %v", err)
			return
		}

		msg := &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(event.SkillID),
			Value: sarama.ByteEncoder(data),
		}

		select {
		case producer.Input() <- msg:
		case <-done:
			return
		}
	}

	shutdown := func() {
		close(done)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("\n✓ Completed. Sent: %d, Errors: %d\n",
			atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	fmt.Printf("Producing endorsement events (%d/sec)\n", *eventsPerSecond)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	interval := time.Second / time.Duration(*eventsPerSecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	for {
		select {
		case <-sigChan:
			fmt.Println("\n\nShutting down...")
			shutdown()
			return

		case <-statsTicker.C:
			fmt.Printf("\r  Sent: %d, Errors: %d",
				atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))

		case <-ticker.C:
			if *duration > 0 && time.Now().After(endTime) {
				fmt.Println("\n\nDuration reached, shutting down...")
				shutdown()
				return
			}

			// Distinct endorser and owner so events pass the
			// self-endorsement check
			ownerIdx := rand.Intn(*totalUsers)
			endorserIdx := rand.Intn(*totalUsers - 1)
			if endorserIdx >= ownerIdx {
				endorserIdx++
			}

			sendEvent(EndorsementEvent{
				Endorser:  syntheticAddress(endorserIdx),
				Owner:     syntheticAddress(ownerIdx),
				SkillID:   skills[rand.Intn(len(skills))],
				Timestamp: time.Now(),
			})
		}
	}
}
