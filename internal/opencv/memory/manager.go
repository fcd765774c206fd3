package memory

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"cvbridge/internal/debug/memtracker"
	"cvbridge/internal/logger"
	"cvbridge/internal/opencv/safe"

	"gocv.io/x/gocv"
)

var (
	ErrInvalidHandle  = errors.New("invalid image handle")
	ErrStaleHandle    = errors.New("image handle already released")
	ErrTooManyHandles = errors.New("image handle limit reached")
)

// Handle is an opaque reference to a decoded image. The low 32 bits hold a
// 1-based slot index and the high 32 bits the slot generation, so a handle
// stops resolving once its slot is released or reused. Zero is never issued.
type Handle uint64

const NullHandle Handle = 0

// generations is shared by every Manager in the process, so a handle value
// is never issued twice even when a Manager is replaced.
var generations atomic.Uint32

func nextGeneration() uint32 {
	for {
		if g := generations.Add(1); g != 0 {
			return g
		}
	}
}

func makeHandle(index, generation uint32) Handle {
	return Handle(uint64(generation)<<32 | uint64(index))
}

func (h Handle) index() uint32      { return uint32(h) }
func (h Handle) generation() uint32 { return uint32(h >> 32) }

func (h Handle) String() string {
	return fmt.Sprintf("%d@%d", h.index(), h.generation())
}

type slot struct {
	mat        *safe.Mat
	generation uint32
	createdAt  time.Time
}

type PoolKey struct {
	Rows    int
	Cols    int
	MatType gocv.MatType
}

type Stats struct {
	ActiveHandles   int64
	TotalRegistered int64
	TotalReleased   int64
	StaleLookups    int64
	PoolHits        int64
	PoolMisses      int64
	PooledMats      int
}

// Manager issues handles for decoded Mats and recycles scratch Mats used as
// filter destinations.
type Manager struct {
	mu         sync.RWMutex
	slots      []slot
	free       []uint32
	maxHandles int

	poolMu   sync.Mutex
	pools    map[PoolKey]*Pool
	poolSize int
	closed   bool

	stats      Stats
	memTracker safe.MemoryTracker
	log        logger.Logger
}

func NewManager(log logger.Logger, memTracker safe.MemoryTracker, maxHandles, poolSize int) *Manager {
	return &Manager{
		// slot 0 is reserved so index 0 never appears in a handle
		slots:      make([]slot, 1),
		maxHandles: maxHandles,
		pools:      make(map[PoolKey]*Pool),
		poolSize:   poolSize,
		memTracker: memTracker,
		log:        log,
	}
}

// Register takes ownership of mat and returns its handle.
func (m *Manager) Register(mat *safe.Mat) (Handle, error) {
	if err := safe.ValidateMatForOperation(mat, "Register"); err != nil {
		return NullHandle, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if int(m.stats.ActiveHandles) >= m.maxHandles {
		return NullHandle, fmt.Errorf("%w: %d", ErrTooManyHandles, m.maxHandles)
	}

	var index uint32
	if n := len(m.free); n > 0 {
		index = m.free[n-1]
		m.free = m.free[:n-1]
	} else {
		m.slots = append(m.slots, slot{generation: nextGeneration()})
		index = uint32(len(m.slots) - 1)
	}

	s := &m.slots[index]
	s.mat = mat
	s.createdAt = time.Now()

	m.stats.ActiveHandles++
	m.stats.TotalRegistered++

	h := makeHandle(index, s.generation)
	m.log.Debug("MemoryManager", "handle registered", map[string]interface{}{
		"handle": h.String(),
		"mat_id": mat.ID(),
		"tag":    mat.Tag(),
	})
	return h, nil
}

// Lookup resolves h. The returned Mat may still be closed concurrently by
// Release; callers go through Mat.Read which reports that.
func (m *Manager) Lookup(h Handle) (*safe.Mat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, err := m.resolve(h)
	if err != nil {
		return nil, err
	}
	return s.mat, nil
}

func (m *Manager) resolve(h Handle) (*slot, error) {
	if h == NullHandle {
		return nil, ErrInvalidHandle
	}

	index := h.index()
	if index == 0 || int(index) >= len(m.slots) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidHandle, h)
	}

	s := &m.slots[index]
	if s.mat == nil || s.generation != h.generation() {
		m.noteStale()
		return nil, fmt.Errorf("%w: %s", ErrStaleHandle, h)
	}
	return s, nil
}

func (m *Manager) noteStale() {
	m.poolMu.Lock()
	m.stats.StaleLookups++
	m.poolMu.Unlock()
}

// Release closes the Mat behind h and retires the handle.
func (m *Manager) Release(h Handle) error {
	m.mu.Lock()
	s, err := m.resolve(h)
	if err != nil {
		m.mu.Unlock()
		return err
	}

	mat := s.mat
	lifetime := time.Since(s.createdAt)
	s.mat = nil
	s.generation = nextGeneration()
	m.free = append(m.free, h.index())
	m.stats.ActiveHandles--
	m.stats.TotalReleased++
	m.mu.Unlock()

	// Close outside the registry lock; it waits for in-flight readers.
	mat.Close()

	m.log.Debug("MemoryManager", "handle released", map[string]interface{}{
		"handle":   h.String(),
		"lifetime": lifetime.String(),
	})
	return nil
}

// GetScratch returns a Mat of the given shape, reused from the pool when
// one is available. Its contents are unspecified.
func (m *Manager) GetScratch(rows, cols int, matType gocv.MatType) (*safe.Mat, error) {
	key := PoolKey{Rows: rows, Cols: cols, MatType: matType}

	m.poolMu.Lock()
	pool, exists := m.pools[key]
	m.poolMu.Unlock()

	if exists {
		if mat := pool.Get(); mat != nil {
			m.poolMu.Lock()
			m.stats.PoolHits++
			m.poolMu.Unlock()
			return mat, nil
		}
	}

	m.poolMu.Lock()
	m.stats.PoolMisses++
	m.poolMu.Unlock()

	return safe.NewMatWithTracker(rows, cols, matType, m.memTracker, memtracker.TagScratch)
}

// PutScratch hands a scratch Mat back. Mats that do not fit the pool are
// closed.
func (m *Manager) PutScratch(mat *safe.Mat) {
	if mat == nil {
		return
	}
	if m.poolSize <= 0 || !mat.IsValid() || mat.Empty() {
		mat.Close()
		return
	}

	key := PoolKey{
		Rows:    mat.Rows(),
		Cols:    mat.Cols(),
		MatType: mat.Type(),
	}

	m.poolMu.Lock()
	if m.closed {
		m.poolMu.Unlock()
		mat.Close()
		return
	}
	pool, exists := m.pools[key]
	if !exists {
		pool = NewPool(m.poolSize)
		m.pools[key] = pool
	}
	m.poolMu.Unlock()

	if !pool.Put(mat) {
		mat.Close()
	}
}

func (m *Manager) GetStats() Stats {
	m.mu.RLock()
	active := m.stats.ActiveHandles
	registered := m.stats.TotalRegistered
	released := m.stats.TotalReleased
	m.mu.RUnlock()

	m.poolMu.Lock()
	defer m.poolMu.Unlock()

	pooled := 0
	for _, pool := range m.pools {
		pooled += pool.Size()
	}

	return Stats{
		ActiveHandles:   active,
		TotalRegistered: registered,
		TotalReleased:   released,
		StaleLookups:    m.stats.StaleLookups,
		PoolHits:        m.stats.PoolHits,
		PoolMisses:      m.stats.PoolMisses,
		PooledMats:      pooled,
	}
}

// Cleanup releases every live handle and drains the scratch pools. It
// returns the number of Mats closed.
func (m *Manager) Cleanup() int {
	m.mu.Lock()
	var live []*safe.Mat
	for i := 1; i < len(m.slots); i++ {
		s := &m.slots[i]
		if s.mat == nil {
			continue
		}
		live = append(live, s.mat)
		s.mat = nil
		s.generation = nextGeneration()
		m.free = append(m.free, uint32(i))
		m.stats.ActiveHandles--
		m.stats.TotalReleased++
	}
	m.mu.Unlock()

	for _, mat := range live {
		mat.Close()
	}

	m.poolMu.Lock()
	pooled := 0
	for key, pool := range m.pools {
		pooled += pool.Cleanup()
		delete(m.pools, key)
	}
	m.poolMu.Unlock()

	matCount := len(live) + pooled
	m.log.Info("MemoryManager", fmt.Sprintf("Cleaned up %d Mats", matCount), map[string]interface{}{
		"handles": len(live),
		"scratch": pooled,
	})
	return matCount
}

// Shutdown stops pooling and closes every Mat the manager holds. Scratch
// Mats handed back afterwards are closed instead of pooled. It returns the
// number of Mats closed.
func (m *Manager) Shutdown() int {
	m.poolMu.Lock()
	m.closed = true
	m.poolMu.Unlock()

	return m.Cleanup()
}
