package vipsfit

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// EnvConcurrency overrides the initial engine worker-thread count.
const EnvConcurrency = "VIPSFIT_CONCURRENCY"

// ConcurrencyFromEnv reads EnvConcurrency. It returns nil when the variable is
// unset, and an error when it is not a positive integer.
func ConcurrencyFromEnv() (*int, error) {
	return parseConcurrency(os.Getenv(EnvConcurrency))
}

func parseConcurrency(value string) (*int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return nil, errors.Wrapf(err, "%s must be an integer", EnvConcurrency)
	}
	if n <= 0 {
		return nil, errors.Errorf("%s must be positive, got %d", EnvConcurrency, n)
	}
	return &n, nil
}

var (
	controllersMu sync.Mutex
	controllers   = map[Engine]*ConcurrencyController{}
)

// controllerFor returns the controller of engine, creating it on first use.
// Pipelines sharing an engine share its worker count.
func controllerFor(engine Engine) *ConcurrencyController {
	controllersMu.Lock()
	defer controllersMu.Unlock()
	c, ok := controllers[engine]
	if !ok {
		c = NewConcurrencyController(engine)
		controllers[engine] = c
	}
	return c
}

// ConcurrencyController owns the engine's process-wide worker-thread count.
type ConcurrencyController struct {
	engine Engine

	once sync.Once
	mu   sync.Mutex
	n    int
}

func NewConcurrencyController(engine Engine) *ConcurrencyController {
	return &ConcurrencyController{engine: engine}
}

// Init sets the initial worker count from override, or the number of logical
// CPUs. Only the first call has an effect.
func (c *ConcurrencyController) Init(override *int) {
	c.once.Do(func() {
		n := runtime.NumCPU()
		if override != nil && *override > 0 {
			n = *override
		}
		c.set(n)
	})
}

// Set changes the worker count for operations started afterwards.
func (c *ConcurrencyController) Set(n int) {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	c.once.Do(func() {})
	c.set(n)
}

func (c *ConcurrencyController) set(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.engine.SetConcurrency(n)
	c.n = n
}

func (c *ConcurrencyController) Get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
