package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/friendsync/internal/reconcile"
)

// Scenario is a scripted sequence of writes and deliveries plus the
// assertions that must hold afterwards.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions are checked after the last step.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one scenario action. Exactly one field must be set.
type Step struct {
	Create  *RecordArgs `yaml:"create,omitempty"`
	Set     *RecordArgs `yaml:"set,omitempty"`
	Deliver int         `yaml:"deliver,omitempty"`
	Settle  bool        `yaml:"settle,omitempty"`
}

// RecordArgs names a record and the number to write.
type RecordArgs struct {
	ID     string `yaml:"id"`
	Number int64  `yaml:"number"`
}

// kind returns the step's action name, or "" if the step sets zero or
// several actions.
func (s Step) kind() string {
	var kinds []string
	if s.Create != nil {
		kinds = append(kinds, StepCreate)
	}
	if s.Set != nil {
		kinds = append(kinds, StepSet)
	}
	if s.Deliver != 0 {
		kinds = append(kinds, StepDeliver)
	}
	if s.Settle {
		kinds = append(kinds, StepSettle)
	}
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

// Step kinds.
const (
	StepCreate  = "create"
	StepSet     = "set"
	StepDeliver = "deliver"
	StepSettle  = "settle"
)

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Record is the subject of friends and number assertions.
	Record string `yaml:"record,omitempty"`

	// Friends is the exact expected friend set (friends). Omitted means empty.
	Friends []string `yaml:"friends,omitempty"`

	// Number is the expected number (number).
	Number *int64 `yaml:"number,omitempty"`

	// Step and Event locate one delivery in the trace (delivery).
	Step  int `yaml:"step,omitempty"`
	Event int `yaml:"event,omitempty"`

	// Outcome and Writes are the expected result of that delivery.
	Outcome string `yaml:"outcome,omitempty"`
	Writes  *int   `yaml:"writes,omitempty"`
}

// Assertion type constants.
const (
	AssertFriends    = "friends"
	AssertNumber     = "number"
	AssertDelivery   = "delivery"
	AssertConsistent = "consistent"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so that typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
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

// validateScenario checks that required fields are present and that step and
// event references point inside the scenario.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	writes := 0
	for i, step := range s.Steps {
		switch step.kind() {
		case StepCreate, StepSet:
			args := step.Create
			if args == nil {
				args = step.Set
			}
			if args.ID == "" {
				return fmt.Errorf("steps[%d]: id is required", i)
			}
			writes++
		case StepDeliver:
			if step.Deliver < 1 || step.Deliver > writes {
				return fmt.Errorf("steps[%d]: deliver %d: only %d notifications exist at this point", i, step.Deliver, writes)
			}
		case StepSettle:
		default:
			return fmt.Errorf("steps[%d]: exactly one of create, set, deliver, settle is required", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a, len(s.Steps)); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion, steps int) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertFriends:
		if a.Record == "" {
			return fmt.Errorf("assertions[%d]: record is required for friends", index)
		}
	case AssertNumber:
		if a.Record == "" || a.Number == nil {
			return fmt.Errorf("assertions[%d]: record and number are required for number", index)
		}
	case AssertDelivery:
		if a.Step < 1 || a.Step > steps {
			return fmt.Errorf("assertions[%d]: step %d is out of range", index, a.Step)
		}
		if a.Event < 1 {
			return fmt.Errorf("assertions[%d]: event is required for delivery", index)
		}
		if a.Outcome == "" && a.Writes == nil {
			return fmt.Errorf("assertions[%d]: outcome or writes is required for delivery", index)
		}
		if a.Outcome != "" && !validOutcome(a.Outcome) {
			return fmt.Errorf("assertions[%d]: unknown outcome %q", index, a.Outcome)
		}
	case AssertConsistent:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func validOutcome(s string) bool {
	for _, st := range []reconcile.Status{reconcile.StatusUnchanged, reconcile.StatusStale, reconcile.StatusApplied} {
		if st.String() == s {
			return true
		}
	}
	return s == OutcomeError
}
