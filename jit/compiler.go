package jit

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/ketrewq/v8/broker"
	"github.com/ketrewq/v8/codecache"
	"github.com/ketrewq/v8/maglev"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("jit")

// Compiler manages adaptive compilation of hot functions. It connects
// the profiler (which detects hot code) to the graph builder (which
// speculates on feedback); successful compilations land in the code
// cache, failed speculation just stays in the interpreter tier.
type Compiler struct {
	profiler *Profiler
	cache    *codecache.Store
	persist  *codecache.SQLStore // optional; nil means in-memory only
	opts     maglev.Options

	// Compilation queue for background processing.
	pending chan compileJob
	done    chan struct{}

	mu       sync.RWMutex
	compiled map[*broker.FunctionInfo]bool

	// Statistics.
	functionsCompiled uint64
	failures          uint64
	compilationTime   uint64 // nanoseconds

	// Enabled is the master switch for tier-up.
	Enabled bool
}

// compileJob represents a unit of compilation work.
type compileJob struct {
	id string
	fn *broker.FunctionInfo
}

// NewCompiler creates a compiler wired to a profiler and a code cache
// and starts its background worker. queueSize bounds the pending queue;
// when it is full new jobs are dropped (the function stays hot and a
// later call re-queues it only if it was never marked compiled).
func NewCompiler(profiler *Profiler, cache *codecache.Store, opts maglev.Options, queueSize int) *Compiler {
	c := &Compiler{
		profiler: profiler,
		cache:    cache,
		opts:     opts,
		pending:  make(chan compileJob, queueSize),
		done:     make(chan struct{}),
		compiled: make(map[*broker.FunctionInfo]bool),
		Enabled:  true,
	}

	if profiler != nil {
		profiler.OnHot = func(fn *broker.FunctionInfo, _ *FunctionProfile) {
			c.Queue(fn)
		}
	}

	go c.compilationWorker()

	return c
}

// SetPersistentStore attaches a SQLite-backed store; artifacts are then
// written through to it in addition to the in-memory cache.
func (c *Compiler) SetPersistentStore(s *codecache.SQLStore) {
	c.persist = s
}

// Queue adds a function to the compilation queue.
func (c *Compiler) Queue(fn *broker.FunctionInfo) {
	if !c.Enabled || fn == nil {
		return
	}

	c.mu.RLock()
	already := c.compiled[fn]
	c.mu.RUnlock()
	if already {
		return
	}

	job := compileJob{id: uuid.New().String(), fn: fn}
	select {
	case c.pending <- job:
	default:
		log.Debugf("queue full, dropping job %s for %s", job.id, fn.Name)
	}
}

// compilationWorker processes the compilation queue in the background.
func (c *Compiler) compilationWorker() {
	for {
		select {
		case job := <-c.pending:
			c.compile(job)
		case <-c.done:
			return
		}
	}
}

// compile runs one tier-up compilation: build the graph over the
// function's bytecode and feedback, commit the accumulated assumptions,
// and store the artifact.
func (c *Compiler) compile(job compileJob) {
	fn := job.fn

	// Mark before compiling so a duplicate queue entry is a no-op.
	c.mu.Lock()
	if c.compiled[fn] {
		c.mu.Unlock()
		return
	}
	c.compiled[fn] = true
	c.mu.Unlock()

	start := time.Now()
	deps := broker.NewDependencies()

	graph, err := maglev.BuildGraph(fn, deps, c.opts)
	if err != nil {
		atomic.AddUint64(&c.failures, 1)
		log.Errorf("job %s: building %s failed: %v", job.id, fn.Name, err)
		return
	}

	if err := deps.Commit(); err != nil {
		atomic.AddUint64(&c.failures, 1)
		log.Infof("job %s: discarding %s: %v", job.id, fn.Name, err)
		return
	}

	artifact := &codecache.Artifact{
		FunctionID:       fn.Name,
		BytecodeHash:     codecache.HashBytecode(fn.Bytecode),
		Summary:          codecache.Summarize(graph),
		DependencyDigest: deps.Digest(),
		CreatedAt:        time.Now().UTC(),
	}
	c.cache.Put(artifact)
	if c.persist != nil {
		if err := c.persist.Put(artifact); err != nil {
			log.Errorf("job %s: persisting %s: %v", job.id, fn.Name, err)
		}
	}

	elapsed := time.Since(start)
	atomic.AddUint64(&c.functionsCompiled, 1)
	atomic.AddUint64(&c.compilationTime, uint64(elapsed))

	log.Infof("job %s: compiled %s in %v (%d blocks, %d nodes, %d deopt points)",
		job.id, fn.Name, elapsed,
		artifact.Summary.BlockCount, artifact.Summary.NodeCount, artifact.Summary.DeoptCount)
}

// Stats holds compiler statistics.
type Stats struct {
	FunctionsCompiled uint64
	Failures          uint64
	CompilationTime   time.Duration
	QueueLength       int
}

// GetStats returns a snapshot of the compiler's counters.
func (c *Compiler) GetStats() Stats {
	return Stats{
		FunctionsCompiled: atomic.LoadUint64(&c.functionsCompiled),
		Failures:          atomic.LoadUint64(&c.failures),
		CompilationTime:   time.Duration(atomic.LoadUint64(&c.compilationTime)),
		QueueLength:       len(c.pending),
	}
}

// IsCompiled reports whether a compilation for fn has been accepted.
func (c *Compiler) IsCompiled(fn *broker.FunctionInfo) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.compiled[fn]
}

// Stop stops the background compilation worker.
func (c *Compiler) Stop() {
	close(c.done)
}

// Reset clears the compiled registry and statistics.
func (c *Compiler) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.compiled = make(map[*broker.FunctionInfo]bool)
	atomic.StoreUint64(&c.functionsCompiled, 0)
	atomic.StoreUint64(&c.failures, 0)
	atomic.StoreUint64(&c.compilationTime, 0)
}
