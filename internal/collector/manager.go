package collector

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ernie/hostlog/internal/domain"
)

// Publisher receives classified batches from the tailers
type Publisher interface {
	PublishLines(serverID int64, lines []domain.LiveLine) error
}

// TailManager runs one tailer per server while at least one subscriber
// wants its live lines
type TailManager struct {
	pub      Publisher
	interval time.Duration

	mu    sync.Mutex
	tails map[int64]*tailState
	wg    sync.WaitGroup
}

type tailState struct {
	tailer *Tailer
	refs   int
}

// NewTailManager creates a manager publishing to pub
func NewTailManager(pub Publisher, interval time.Duration) *TailManager {
	return &TailManager{
		pub:      pub,
		interval: interval,
		tails:    make(map[int64]*tailState),
	}
}

// Acquire registers a subscriber for serverID, starting its tailer on the
// first one
func (m *TailManager) Acquire(serverID int64, logPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st, ok := m.tails[serverID]; ok {
		st.refs++
		return nil
	}

	tailer := NewTailer(logPath, m.interval)
	if err := tailer.Start(); err != nil {
		return fmt.Errorf("starting tailer for server %d: %w", serverID, err)
	}
	m.tails[serverID] = &tailState{tailer: tailer, refs: 1}

	m.wg.Add(2)
	go m.forward(serverID, tailer)
	go m.logErrors(serverID, tailer)

	log.Printf("Started log tailer for server %d: %s", serverID, logPath)
	return nil
}

// Release drops a subscriber; the tailer stops with the last one
func (m *TailManager) Release(serverID int64) {
	m.mu.Lock()
	st, ok := m.tails[serverID]
	if !ok {
		m.mu.Unlock()
		return
	}
	st.refs--
	if st.refs > 0 {
		m.mu.Unlock()
		return
	}
	delete(m.tails, serverID)
	m.mu.Unlock()

	st.tailer.Stop()
	log.Printf("Stopped log tailer for server %d", serverID)
}

// Subscribers returns how many subscribers hold serverID's tailer
func (m *TailManager) Subscribers(serverID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.tails[serverID]; ok {
		return st.refs
	}
	return 0
}

// Stop shuts down every tailer regardless of subscribers
func (m *TailManager) Stop() {
	m.mu.Lock()
	tails := m.tails
	m.tails = make(map[int64]*tailState)
	m.mu.Unlock()

	for _, st := range tails {
		st.tailer.Stop()
	}
	m.wg.Wait()
}

func (m *TailManager) forward(serverID int64, tailer *Tailer) {
	defer m.wg.Done()
	for batch := range tailer.Lines {
		if err := m.pub.PublishLines(serverID, ClassifyLines(batch)); err != nil {
			log.Printf("Error publishing log lines for server %d: %v", serverID, err)
		}
	}
}

// logErrors reports tailer errors until the tailer stops
func (m *TailManager) logErrors(serverID int64, tailer *Tailer) {
	defer m.wg.Done()
	for {
		select {
		case err := <-tailer.Errors:
			log.Printf("Log tailer error for server %d: %v", serverID, err)
		case <-tailer.done:
			return
		}
	}
}
