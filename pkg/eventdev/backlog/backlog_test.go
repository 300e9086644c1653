/*
Copyright 2025 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package backlog

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_LifecycleAndOrdering(t *testing.T) {
	t.Parallel()
	q := New[int]()

	_, ok := q.PeekHead()
	assert.False(t, ok, "PeekHead on an empty queue should report nothing")

	for i := 1; i <= 3; i++ {
		q.Add(i)
	}
	assert.Equal(t, 3, q.Len())

	head, ok := q.PeekHead()
	require.True(t, ok)
	assert.Equal(t, 1, head)
	assert.Equal(t, 3, q.Len(), "PeekHead must not remove the item")
	assert.Equal(t, []int{1, 2, 3}, q.Snapshot())
}

func TestQueue_CleanupKeepsRelativeOrder(t *testing.T) {
	t.Parallel()
	q := New[int]()
	for i := range 6 {
		q.Add(i)
	}

	removed := q.Cleanup(func(v int) bool { return v%2 == 0 })
	assert.Equal(t, []int{0, 2, 4}, removed)
	assert.Equal(t, []int{1, 3, 5}, q.Snapshot())
}

func TestQueue_PopHead(t *testing.T) {
	t.Parallel()
	q := New[string]()
	_, ok := q.PopHead()
	assert.False(t, ok, "PopHead on an empty queue should report nothing")

	q.Add("first")
	q.Add("second")
	got, ok := q.PopHead()
	require.True(t, ok)
	assert.Equal(t, "first", got)
	assert.Equal(t, 1, q.Len())
}

func TestQueue_Drain(t *testing.T) {
	t.Parallel()
	q := New[int]()
	q.Add(7)
	q.Add(8)

	assert.Equal(t, []int{7, 8}, q.Drain())
	assert.Zero(t, q.Len())
	assert.Empty(t, q.Drain(), "draining an empty queue returns nothing")
}

func TestQueue_ConcurrentAdds(t *testing.T) {
	t.Parallel()
	q := New[int]()
	const workers, perWorker = 8, 100

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWorker {
				q.Add(i)
				_ = q.Len()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, workers*perWorker, q.Len())
}
