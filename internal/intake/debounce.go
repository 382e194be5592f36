package intake

import (
	"strings"
	"sync"
	"time"
)

const DefaultDebounceWindow = 10 * time.Second

// Batch is the coalesced text of one sender.
type Batch struct {
	Address    string
	Texts      []string
	MessageIDs []string
	FirstAt    time.Time
}

// Text joins the buffered texts in arrival order.
func (b Batch) Text() string {
	return strings.Join(b.Texts, "\n")
}

type pendingBatch struct {
	batch Batch
	timer *time.Timer
	gen   uint64
}

// Debouncer buffers texts per sender and fires once the sender has been
// quiet for the window. Each Add rearms the timer; a generation counter
// makes a timer that lost the race to a later Add a no-op.
type Debouncer struct {
	mu      sync.Mutex
	window  time.Duration
	pending map[string]*pendingBatch
	flush   func(Batch)
	now     func() time.Time
}

func NewDebouncer(window time.Duration, flush func(Batch)) *Debouncer {
	if flush == nil {
		panic("intake: flush func cannot be nil")
	}
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &Debouncer{
		window:  window,
		pending: make(map[string]*pendingBatch),
		flush:   flush,
		now:     time.Now,
	}
}

// Add buffers text for address and rearms its timer.
func (d *Debouncer) Add(address, text, messageID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.pending[address]
	if !ok {
		p = &pendingBatch{batch: Batch{Address: address, FirstAt: d.now()}}
		d.pending[address] = p
	}
	p.batch.Texts = append(p.batch.Texts, text)
	if messageID != "" {
		p.batch.MessageIDs = append(p.batch.MessageIDs, messageID)
	}
	p.gen++
	if p.timer != nil {
		p.timer.Stop()
	}
	gen := p.gen
	p.timer = time.AfterFunc(d.window, func() { d.fire(address, gen) })
}

func (d *Debouncer) fire(address string, gen uint64) {
	d.mu.Lock()
	p, ok := d.pending[address]
	if !ok || p.gen != gen {
		d.mu.Unlock()
		return
	}
	delete(d.pending, address)
	d.mu.Unlock()

	d.flush(p.batch)
}

// Pending reports how many senders have buffered text.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// FlushAll fires every buffered batch immediately. Used on shutdown.
func (d *Debouncer) FlushAll() {
	d.mu.Lock()
	batches := make([]Batch, 0, len(d.pending))
	for address, p := range d.pending {
		if p.timer != nil {
			p.timer.Stop()
		}
		batches = append(batches, p.batch)
		delete(d.pending, address)
	}
	d.mu.Unlock()

	for _, b := range batches {
		d.flush(b)
	}
}
