package producer

import "github.com/usedatabrew/kinesis-producer/internal/stream"

// recordLimiter gates *record items on two independent token buckets (a
// records/sec bucket and a bytes/sec bucket) for a single shard key.
// TryTake is two-phase: it peeks both buckets for availability and only
// commits a withdrawal from either once both have agreed to proceed, so a
// record can never consume one bucket's credit while being rejected by the
// other.
type recordLimiter struct {
	records *stream.TokenBucket
	bytes   *stream.TokenBucket
}

func newRecordLimiter(recordsPerSecond, bytesPerSecond uint64) *recordLimiter {
	return &recordLimiter{
		records: stream.PerSecond(recordsPerSecond),
		bytes:   stream.PerSecond(bytesPerSecond),
	}
}

func (l *recordLimiter) Active() bool {
	return l.records.Active() || l.bytes.Active()
}

func (l *recordLimiter) TryTake(item *record) error {
	recOK, recShort := l.records.Peek(1)
	bytesOK, bytesShort := l.bytes.Peek(float64(item.len()))

	if !recOK || !bytesOK {
		shortfall := recShort
		if bytesShort > shortfall {
			shortfall = bytesShort
		}
		return &stream.ErrInsufficientCredit{Shortfall: shortfall}
	}

	l.records.Commit(1)
	l.bytes.Commit(float64(item.len()))
	return nil
}
