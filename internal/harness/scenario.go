package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario is one end-to-end run: a fixed clock, a sequence of inbound
// commands, and what the log must look like afterwards.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Clock is the RFC 3339 instant every decision is stamped with.
	Clock string `yaml:"clock"`

	// Steps are executed in order; subscriptions settle between steps.
	Steps []Step `yaml:"steps"`

	Expect Expectations `yaml:"expect"`

	// Golden enables the snapshot comparison of RunWithGolden.
	Golden bool `yaml:"golden,omitempty"`
}

// Step is one inbound command. Exactly one field is set.
type Step struct {
	Receive    *ReceiveStep    `yaml:"receive,omitempty"`
	PlaceOrder *PlaceOrderStep `yaml:"place_order,omitempty"`
}

// ReceiveStep receives stock into inventory.
type ReceiveStep struct {
	Items []StockLine `yaml:"items"`
}

// StockLine is a quantity of one SKU.
type StockLine struct {
	SKU      string `yaml:"sku"`
	Quantity int    `yaml:"quantity"`
}

// PlaceOrderStep places an order.
type PlaceOrderStep struct {
	OrderID    string      `yaml:"order_id"`
	FromCartID string      `yaml:"from_cart_id"`
	CustomerID string      `yaml:"customer_id"`
	Items      []OrderLine `yaml:"items"`
}

// OrderLine is one product line of a placed order.
type OrderLine struct {
	ProductID string `yaml:"product_id"`
	Quantity  int    `yaml:"quantity"`
	UnitPrice string `yaml:"unitPrice"`
}

// Expectations are checked once all steps have settled.
type Expectations struct {
	// Streams maps a stream name to its wire types in revision order.
	Streams map[string][]string `yaml:"streams"`

	// Parked is the number of messages all subscriptions parked in total.
	Parked int `yaml:"parked"`
}

// ClockTime parses the scenario clock.
func (s *Scenario) ClockTime() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s.Clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("clock: %w", err)
	}
	return t.UTC(), nil
}

// LoadScenario loads and validates a scenario from a YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos)
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if _, err := s.ClockTime(); err != nil {
		return err
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}

	if s.Expect.Parked < 0 {
		return fmt.Errorf("expect.parked must be non-negative")
	}
	for stream, types := range s.Expect.Streams {
		if stream == "" {
			return fmt.Errorf("expect.streams: stream name is required")
		}
		if len(types) == 0 {
			return fmt.Errorf("expect.streams[%s]: at least one type is required", stream)
		}
	}
	return nil
}

func validateStep(i int, step Step) error {
	switch {
	case step.Receive != nil && step.PlaceOrder != nil:
		return fmt.Errorf("steps[%d]: exactly one of receive or place_order is allowed", i)
	case step.Receive != nil:
		if len(step.Receive.Items) == 0 {
			return fmt.Errorf("steps[%d].receive: items is required", i)
		}
		for j, item := range step.Receive.Items {
			if item.SKU == "" {
				return fmt.Errorf("steps[%d].receive.items[%d]: sku is required", i, j)
			}
		}
	case step.PlaceOrder != nil:
		p := step.PlaceOrder
		if p.OrderID == "" {
			return fmt.Errorf("steps[%d].place_order: order_id is required", i)
		}
		if p.CustomerID == "" {
			return fmt.Errorf("steps[%d].place_order: customer_id is required", i)
		}
		for j, item := range p.Items {
			if item.ProductID == "" {
				return fmt.Errorf("steps[%d].place_order.items[%d]: product_id is required", i, j)
			}
		}
	default:
		return fmt.Errorf("steps[%d]: one of receive or place_order is required", i)
	}
	return nil
}
