package memory

import (
	"sync"

	"cvbridge/internal/opencv/safe"
)

// Pool is a bounded LIFO of same-shaped scratch Mats.
type Pool struct {
	mats    []*safe.Mat
	maxSize int
	mu      sync.Mutex
}

func NewPool(maxSize int) *Pool {
	return &Pool{
		mats:    make([]*safe.Mat, 0, maxSize),
		maxSize: maxSize,
	}
}

// Get pops the most recently returned Mat, discarding any that were closed
// while pooled. It returns nil when the pool is empty.
func (p *Pool) Get() *safe.Mat {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.mats) > 0 {
		mat := p.mats[len(p.mats)-1]
		p.mats[len(p.mats)-1] = nil
		p.mats = p.mats[:len(p.mats)-1]

		if mat.IsValid() && !mat.Empty() {
			return mat
		}
		mat.Close()
	}
	return nil
}

// Put reports whether mat was kept. The caller still owns mat on false.
func (p *Pool) Put(mat *safe.Mat) bool {
	if mat == nil || !mat.IsValid() || mat.Empty() {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.mats) >= p.maxSize {
		return false
	}

	p.mats = append(p.mats, mat)
	return true
}

func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.mats)
}

func (p *Pool) Cleanup() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	count := len(p.mats)
	for i, mat := range p.mats {
		mat.Close()
		p.mats[i] = nil
	}
	p.mats = p.mats[:0]
	return count
}
