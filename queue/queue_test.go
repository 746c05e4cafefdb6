package queue

import (
	"testing"
	"time"

	"github.com/guidoreina/netbuf/buffer"
	"github.com/stretchr/testify/require"
)

func mkbuf(s string) *buffer.Buffer {
	b := &buffer.Buffer{}
	_ = b.Init([]byte(s))
	return b
}

func TestPushBackPopFrontFIFO(t *testing.T) {
	q := New()
	a, b, c := mkbuf("a"), mkbuf("b"), mkbuf("c")

	require.Equal(t, 1, q.PushBack(a))
	require.Equal(t, 2, q.PushBack(b))
	require.Equal(t, 3, q.PushBack(c))

	got, ok := q.PopFront()
	require.True(t, ok)
	require.Same(t, a, got)

	got, ok = q.PopFront()
	require.True(t, ok)
	require.Same(t, b, got)

	got, ok = q.PopFront()
	require.True(t, ok)
	require.Same(t, c, got)

	_, ok = q.PopFront()
	require.False(t, ok)
}

func TestPushBackOnEmptyThenPopFrontReturnsSameBuffer(t *testing.T) {
	q := New()
	b := mkbuf("only")
	q.PushBack(b)
	got, ok := q.PopFront()
	require.True(t, ok)
	require.Same(t, b, got)
}

func TestPushFrontPreservesHeadOrder(t *testing.T) {
	q := New()
	a, b, c := mkbuf("a"), mkbuf("b"), mkbuf("c")
	q.PushBack(a)

	// Re-push [b,c] (a well-formed chain) to the front, as the worker
	// does with an un-sent suffix after a transport failure.
	b.SetNext(c)
	c.SetPrev(b)
	count := q.PushFrontChain(b, c)
	require.Equal(t, 3, count)

	first, second, third := mustPop(t, q), mustPop(t, q), mustPop(t, q)
	require.Same(t, b, first)
	require.Same(t, c, second)
	require.Same(t, a, third)
}

func mustPop(t *testing.T, q *Queue) *buffer.Buffer {
	t.Helper()
	got, ok := q.PopFront()
	require.True(t, ok)
	return got
}

func TestPopFrontTimeoutZeroReturnsImmediately(t *testing.T) {
	q := New()
	start := time.Now()
	_, ok := q.PopFrontTimeout(0)
	require.False(t, ok)
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestPopFrontTimeoutWakesOnPush(t *testing.T) {
	q := New()
	go func() {
		time.Sleep(20 * time.Millisecond)
		q.PushBack(mkbuf("late"))
	}()

	buf, ok := q.PopFrontTimeout(500 * time.Millisecond)
	require.True(t, ok)
	require.Equal(t, "late", string(buf.Data()))
}

func TestBulkPopDetachesWholeList(t *testing.T) {
	q := New()
	q.PushBack(mkbuf("a"))
	q.PushBack(mkbuf("b"))
	q.PushBack(mkbuf("c"))

	first, last, count := q.Pop()
	require.Equal(t, 3, count)
	require.Equal(t, "a", string(first.Data()))
	require.Equal(t, "c", string(last.Data()))
	require.Equal(t, 0, q.Len())

	// Walking the detached chain must still work after detaching.
	n := 1
	for cur := first; cur != last; cur = cur.Next() {
		n++
	}
	require.Equal(t, 3, n)
}

func TestPopTimeoutOnEmptyQueueTimesOut(t *testing.T) {
	q := New()
	start := time.Now()
	first, last, count := q.PopTimeout(50 * time.Millisecond)
	require.Nil(t, first)
	require.Nil(t, last)
	require.Equal(t, 0, count)
	require.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestDistanceCountsChain(t *testing.T) {
	a, b, c := mkbuf("a"), mkbuf("b"), mkbuf("c")
	a.SetNext(b)
	b.SetNext(c)
	require.Equal(t, 1, Distance(a, a))
	require.Equal(t, 3, Distance(a, c))
}

func TestCountInvariantAfterMixedPushes(t *testing.T) {
	q := New()
	for i := 0; i < 5; i++ {
		q.PushBack(mkbuf("x"))
	}
	require.Equal(t, 5, q.Len())
	q.PopFront()
	require.Equal(t, 4, q.Len())
}
