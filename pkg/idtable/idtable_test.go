package idtable

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTable(t *testing.T) *Table {
	t.Helper()
	table, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { table.Close() })
	return table
}

func TestGetAssignsSequentialIds(t *testing.T) {
	table := openTable(t)

	a, err := table.Get([]byte("alpha"))
	require.NoError(t, err)
	b, err := table.Get([]byte("beta"))
	require.NoError(t, err)
	c, err := table.Get([]byte("gamma"))
	require.NoError(t, err)

	assert.Equal(t, 0, a)
	assert.Equal(t, 1, b)
	assert.Equal(t, 2, c)

	// Re-asking returns the same id.
	again, err := table.Get([]byte("beta"))
	require.NoError(t, err)
	assert.Equal(t, b, again)
}

func TestIdsStableAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	table, err := Open(dir)
	require.NoError(t, err)
	first, err := table.Get([]byte("key-0"))
	require.NoError(t, err)
	second, err := table.Get([]byte("key-1"))
	require.NoError(t, err)
	require.NoError(t, table.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	gotFirst, err := reopened.Get([]byte("key-0"))
	require.NoError(t, err)
	gotSecond, err := reopened.Get([]byte("key-1"))
	require.NoError(t, err)
	assert.Equal(t, first, gotFirst)
	assert.Equal(t, second, gotSecond)

	// New keys continue from the table size.
	third, err := reopened.Get([]byte("key-2"))
	require.NoError(t, err)
	assert.Equal(t, 2, third)
}

func TestContainsAndListKeys(t *testing.T) {
	table := openTable(t)

	_, err := table.Get([]byte("present"))
	require.NoError(t, err)

	ok, err := table.Contains([]byte("present"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = table.Contains([]byte("absent"))
	require.NoError(t, err)
	assert.False(t, ok)

	keys, err := table.ListKeys()
	require.NoError(t, err)
	assert.Equal(t, []string{"present"}, keys)
}

func TestClearResetsAssignment(t *testing.T) {
	table := openTable(t)

	_, err := table.Get([]byte("one"))
	require.NoError(t, err)
	_, err = table.Get([]byte("two"))
	require.NoError(t, err)

	require.NoError(t, table.Clear())

	n, err := table.Len()
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// The in-process cache must not resurrect old assignments.
	id, err := table.Get([]byte("two"))
	require.NoError(t, err)
	assert.Equal(t, 0, id)
}

func TestConcurrentGetIsInjective(t *testing.T) {
	table := openTable(t)

	const keys = 50
	const workers = 8

	var wg sync.WaitGroup
	results := make([][]int, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			ids := make([]int, keys)
			for i := 0; i < keys; i++ {
				id, err := table.Get([]byte(fmt.Sprintf("key-%03d", i)))
				if err != nil {
					t.Error(err)
					return
				}
				ids[i] = id
			}
			results[w] = ids
		}(w)
	}
	wg.Wait()

	// Every worker observed the same assignment, and ids form a
	// permutation of 0..keys-1.
	seen := make(map[int]bool)
	for _, id := range results[0] {
		assert.False(t, seen[id], "id %d assigned twice", id)
		seen[id] = true
		assert.Less(t, id, keys)
	}
	for w := 1; w < workers; w++ {
		assert.Equal(t, results[0], results[w])
	}
}
