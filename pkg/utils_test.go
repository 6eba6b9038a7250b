package pkg_test

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"

	. "github.com/tobsdb/jsondb/pkg"
	"gotest.tools/assert"
)

func TestFilter(t *testing.T) {
	res := Filter([]int{1, 2, 3, 4, 5, 6}, func(i int) bool {
		return i%2 == 0
	})

	assert.DeepEqual(t, res, []int{2, 4, 6})
}

func TestMapSlice(t *testing.T) {
	res := MapSlice([]int{1, 2, 3}, func(i int) string { return strings.Repeat("a", i) })
	assert.DeepEqual(t, res, []string{"a", "aa", "aaa"})
}

func TestInsertSortMap(t *testing.T) {
	m := NewInsertSortMap[string, int]()
	m.Push("c", 1)
	m.Push("a", 2)
	m.Push("b", 3)
	m.Push("c", 4)

	assert.Equal(t, m.Len(), 3)
	assert.DeepEqual(t, m.Sorted, []string{"c", "a", "b"})
	assert.Equal(t, m.Get("c"), 4)

	c := m.Clone()
	m.Delete("a")
	m.Delete("missing")
	assert.DeepEqual(t, m.Sorted, []string{"c", "b"})
	assert.DeepEqual(t, c.Sorted, []string{"c", "a", "b"})

	keys := []string{}
	c.Each(func(k string, _ int) bool {
		keys = append(keys, k)
		return k != "a"
	})
	assert.DeepEqual(t, keys, []string{"c", "a"})
}

func TestSortedKeys(t *testing.T) {
	m := Map[string, int]{"b": 1, "a": 2, "c": 3}
	assert.DeepEqual(t, SortedKeys(m), []string{"a", "b", "c"})
}

func TestLogLevels(t *testing.T) {
	var buf bytes.Buffer
	SetLogOutput(&buf)
	defer SetLogLevel(LogLevelNone)

	SetLogLevel(LogLevelErrOnly)
	DebugLog("hidden")
	ErrorLog("shown", "table", "users")
	assert.Assert(t, !strings.Contains(buf.String(), "hidden"))
	assert.Assert(t, strings.Contains(buf.String(), "shown"))
	assert.Assert(t, strings.Contains(buf.String(), "table=users"))

	buf.Reset()
	SetLogLevel(LogLevelNone)
	ErrorLog("silenced")
	assert.Equal(t, buf.String(), "")

	lvl, err := ParseLogLevel("debug")
	assert.NilError(t, err)
	assert.Equal(t, lvl, LogLevelDebug)
	_, err = ParseLogLevel("loud")
	assert.ErrorContains(t, err, "invalid log level")
}

type locked struct{ mu sync.RWMutex }

func (l *locked) GetLocker() *sync.RWMutex { return &l.mu }

func TestLockResult(t *testing.T) {
	l := &locked{}
	n, err := LockResult(l, func() (int, error) { return 3, nil })
	assert.NilError(t, err)
	assert.Equal(t, n, 3)

	_, err = RLockResult(l, func() (string, error) { return "", errors.New("boom") })
	assert.Error(t, err, "boom")

	// lock is released after the call
	assert.Assert(t, l.mu.TryLock())
}
