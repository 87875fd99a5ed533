package idgen

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// Snowflake layout (64 bits):
//
//	0 - 41 bit millisecond timestamp - 10 bit worker id - 12 bit sequence
//
// Numbers are unique per worker and trend upward, which keeps the
// invoice_number / transaction_no unique indexes cheap to maintain.
const (
	epoch          = int64(1704067200000) // 2024-01-01 00:00:00 UTC
	workerIDBits   = 10
	sequenceBits   = 12
	maxWorkerID    = -1 ^ (-1 << workerIDBits)
	maxSequence    = -1 ^ (-1 << sequenceBits)
	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

// Snowflake generates 64-bit time-ordered ids.
type Snowflake struct {
	mu        sync.Mutex
	timestamp int64
	workerID  int64
	sequence  int64
}

var (
	defaultGenerator *Snowflake
	once             sync.Once
)

// Init sets up the default generator. Call once at process start.
func Init(workerID int64) {
	once.Do(func() {
		if workerID < 0 || workerID > maxWorkerID {
			log.Fatalf("idgen: worker id must be in 0-%d", maxWorkerID)
		}
		defaultGenerator = &Snowflake{workerID: workerID}
	})
}

// NextID returns the next id from the default generator.
func NextID() int64 {
	if defaultGenerator == nil {
		Init(1)
	}
	return defaultGenerator.Generate()
}

// Generate returns the next id.
func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()

	if now == s.timestamp {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			// Sequence exhausted for this millisecond, spin to the next.
			for now <= s.timestamp {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		s.sequence = 0
	}

	s.timestamp = now

	return ((now - epoch) << timestampShift) |
		(s.workerID << workerIDShift) |
		s.sequence
}

func numbered(prefix string) string {
	id := NextID()
	timestamp := time.Now().UTC().Format("20060102150405")
	return fmt.Sprintf("%s-%s-%08d", prefix, timestamp, id%100000000)
}

// GenerateInvoiceNumber returns a human-readable unique invoice number,
// e.g. INV-20260114093052-12345678.
func GenerateInvoiceNumber() string {
	return numbered("INV")
}

// GenerateRefundNumber returns a unique refund reference number.
func GenerateRefundNumber() string {
	return numbered("REF")
}

// GenerateTransactionNumber returns a unique token-ledger entry number.
func GenerateTransactionNumber() string {
	return numbered("TXN")
}
