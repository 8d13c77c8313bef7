package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"property-scraper/utils"

	"github.com/dgraph-io/badger/v4"
)

const (
	sequenceBandwidth = 100
	maxPopConflicts   = 5
	conflictBackoff   = 2 * time.Millisecond
)

// BadgerQueue is an embedded FIFO stored next to the job records. Items
// are keyed by a badger sequence so iteration order is enqueue order.
type BadgerQueue struct {
	db     *badger.DB
	name   string
	prefix []byte
	seq    *badger.Sequence
}

func NewBadgerQueue(db *badger.DB, name string) (*BadgerQueue, error) {
	if db == nil {
		return nil, errors.New("badger db is required")
	}
	if name == "" {
		name = DefaultName
	}
	seq, err := db.GetSequence([]byte(fmt.Sprintf("queue:%s:seq", name)), sequenceBandwidth)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue sequence: %w", err)
	}
	return &BadgerQueue{
		db:     db,
		name:   name,
		prefix: []byte(fmt.Sprintf("queue:%s:item:", name)),
		seq:    seq,
	}, nil
}

// Connect is a no-op; the database is local.
func (q *BadgerQueue) Connect(ctx context.Context) error {
	return nil
}

func (q *BadgerQueue) Push(ctx context.Context, jobID string) error {
	n, err := q.seq.Next()
	if err != nil {
		return fmt.Errorf("failed to allocate queue position: %w", err)
	}
	key := q.itemKey(n)
	return q.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, []byte(jobID))
	})
}

// Pop removes the oldest id. Concurrent pops that collide on the same item
// are retried with a short exponential backoff.
func (q *BadgerQueue) Pop(ctx context.Context) (string, error) {
	var id string
	err := utils.Retry(ctx, maxPopConflicts, utils.Exponential(conflictBackoff), func(int) error {
		var err error
		id, err = q.popOnce()
		if err != nil && !errors.Is(err, badger.ErrConflict) {
			return fmt.Errorf("%w: %w", utils.ErrPermanent, err)
		}
		return err
	})
	switch {
	case errors.Is(err, ErrEmpty):
		return "", ErrEmpty
	case err != nil:
		return "", err
	}
	return id, nil
}

func (q *BadgerQueue) popOnce() (string, error) {
	var id string
	err := q.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		it.Seek(q.prefix)
		if !it.ValidForPrefix(q.prefix) {
			return ErrEmpty
		}
		item := it.Item()
		key := item.KeyCopy(nil)
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		id = string(val)
		return txn.Delete(key)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (q *BadgerQueue) Len(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(q.prefix); it.ValidForPrefix(q.prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Close releases unused sequence leases. The database itself belongs to the
// caller.
func (q *BadgerQueue) Close() error {
	return q.seq.Release()
}

func (q *BadgerQueue) itemKey(n uint64) []byte {
	return []byte(fmt.Sprintf("queue:%s:item:%020d", q.name, n))
}
