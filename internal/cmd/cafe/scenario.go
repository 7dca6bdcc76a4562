package cafe

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/louisbranch/cafe/internal/services/cafe/domain/tab"
	"github.com/louisbranch/cafe/internal/services/cafe/menu"
)

//go:embed demo.yaml
var demoScenario string

// Scenario is a script of tables, each served by one waiter and driven
// through its steps in order. Tables run concurrently.
type Scenario struct {
	Name   string  `yaml:"name"`
	Tables []Table `yaml:"tables"`
}

// Table is the script for one tab.
type Table struct {
	Number int    `yaml:"table"`
	Waiter string `yaml:"waiter"`
	Steps  []Step `yaml:"steps"`
}

// Step holds exactly one action. Expect names the rejection code the step
// must fail with; empty means the step must succeed.
type Step struct {
	Order       []menu.Line `yaml:"order"`
	ServeDrinks []int       `yaml:"serve_drinks"`
	PrepareFood []int       `yaml:"prepare_food"`
	ServeFood   []int       `yaml:"serve_food"`
	Close       string      `yaml:"close"`
	Expect      string      `yaml:"expect"`
}

const (
	actionOrder       = "order"
	actionServeDrinks = "serve_drinks"
	actionPrepareFood = "prepare_food"
	actionServeFood   = "serve_food"
	actionClose       = "close"
)

// Action names the step's single action.
func (s Step) Action() (string, error) {
	var actions []string
	if s.Order != nil {
		actions = append(actions, actionOrder)
	}
	if s.ServeDrinks != nil {
		actions = append(actions, actionServeDrinks)
	}
	if s.PrepareFood != nil {
		actions = append(actions, actionPrepareFood)
	}
	if s.ServeFood != nil {
		actions = append(actions, actionServeFood)
	}
	if strings.TrimSpace(s.Close) != "" {
		actions = append(actions, actionClose)
	}
	switch len(actions) {
	case 0:
		return "", errors.New("step has no action")
	case 1:
		return actions[0], nil
	default:
		return "", fmt.Errorf("step has %d actions (%s), want one", len(actions), strings.Join(actions, ", "))
	}
}

// LoadScenario reads the scenario at path, or the embedded demo when path is
// empty.
func LoadScenario(path string) (Scenario, error) {
	if strings.TrimSpace(path) == "" {
		return ParseScenario(strings.NewReader(demoScenario))
	}
	f, err := os.Open(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("open scenario: %w", err)
	}
	defer f.Close()
	return ParseScenario(f)
}

// ParseScenario decodes and validates a scenario document.
func ParseScenario(r io.Reader) (Scenario, error) {
	var sc Scenario
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return Scenario{}, fmt.Errorf("decode scenario: %w", err)
	}
	if err := sc.validate(); err != nil {
		return Scenario{}, err
	}
	return sc, nil
}

func (sc Scenario) validate() error {
	if len(sc.Tables) == 0 {
		return errors.New("scenario has no tables")
	}
	seen := make(map[int]struct{}, len(sc.Tables))
	for _, table := range sc.Tables {
		if table.Number <= 0 {
			return fmt.Errorf("table number must be positive, got %d", table.Number)
		}
		if _, dup := seen[table.Number]; dup {
			return fmt.Errorf("table %d scripted twice", table.Number)
		}
		seen[table.Number] = struct{}{}
		if strings.TrimSpace(table.Waiter) == "" {
			return fmt.Errorf("table %d: waiter is required", table.Number)
		}
		for i, step := range table.Steps {
			action, err := step.Action()
			if err != nil {
				return fmt.Errorf("table %d step %d: %w", table.Number, i+1, err)
			}
			if action == actionClose {
				if _, err := tab.ParseMoney(step.Close); err != nil {
					return fmt.Errorf("table %d step %d: %w", table.Number, i+1, err)
				}
			}
		}
	}
	return nil
}
