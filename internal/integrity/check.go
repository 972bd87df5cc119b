package integrity

import "context"

// Check detects one kind of inconsistency.
type Check interface {
	// Key is the stable identifier used to run the check on its own.
	Key() string

	// Name is the display name recorded in CheckResult.ChecksRun.
	Name() string

	// Category is the record kind the check inspects.
	Category() Category

	// Run reads through the gateway and returns the issues it found, in
	// emission order. It never writes.
	Run(ctx context.Context) ([]Issue, error)
}

// CheckFunc is the body of a check built with NewCheck.
type CheckFunc func(ctx context.Context) ([]Issue, error)

type funcCheck struct {
	key      string
	name     string
	category Category
	run      CheckFunc
}

// NewCheck adapts a function into a Check.
func NewCheck(key, name string, category Category, run CheckFunc) Check {
	return &funcCheck{key: key, name: name, category: category, run: run}
}

func (c *funcCheck) Key() string        { return c.key }
func (c *funcCheck) Name() string       { return c.name }
func (c *funcCheck) Category() Category { return c.category }

func (c *funcCheck) Run(ctx context.Context) ([]Issue, error) {
	return c.run(ctx)
}

// CheckInfo describes a registered check for listings.
type CheckInfo struct {
	Key      string   `json:"key"`
	Name     string   `json:"name"`
	Category Category `json:"category"`
	Enabled  bool     `json:"enabled"`
}
