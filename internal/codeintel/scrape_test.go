// ABOUTME: Tests for the watch, inline-test and run-tests scrapers
// ABOUTME: Grammar matches, unrecognized lines, pairing rules and deduplication

package codeintel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScanWatches(t *testing.T) {
	t.Parallel()

	text := `
  Now evaluating any watch expressions (lines starting with ` + "`>`" + `)...

    1 | > 1 + 1
          ⧩
          2

    4 | > List.map (x -> x * 2) [1, 2]
          ⧩

          [2, 4]
`
	got := scanWatches(text)
	assert.Equal(t, []WatchResult{
		{Line: 1, Expression: "1 + 1", Result: "2"},
		{Line: 4, Expression: "List.map (x -> x * 2) [1, 2]", Result: "[2, 4]"},
	}, got)
}

func TestScanWatchesDedupsRepeatedBlocks(t *testing.T) {
	t.Parallel()

	block := "  3 | > answer\n        ⧩\n        42\n"
	got := scanWatches(block + "Done.\n" + block)
	assert.Equal(t, []WatchResult{{Line: 3, Expression: "answer", Result: "42"}}, got)
}

func TestScanWatchesIgnoresUnarmedLines(t *testing.T) {
	t.Parallel()

	// no marker: the next line is not a result
	got := scanWatches("  1 | > x\n  some unrelated output\n  2 | > y\n  ⧩\n  7\n")
	assert.Equal(t, []WatchResult{{Line: 2, Expression: "y", Result: "7"}}, got)
	assert.Empty(t, scanWatches("⧩\n5\nno watch here"))
}

func TestScanInlineTests(t *testing.T) {
	t.Parallel()

	text := `
    3 | test> square.tests.ex1 = check (square 4 == 16)
          ✅ Passed

    5 | test> square.tests.ex2 = check (square 2 == 5)
          🚫 FAILED
`
	got := scanInlineTests(text)
	assert.Equal(t, []TestResult{
		{Name: "square.tests.ex1", Passed: true},
		{Name: "square.tests.ex2", Passed: false},
	}, got)
}

func TestScanInlineTestsPairsMostRecentName(t *testing.T) {
	t.Parallel()

	text := "1 | test> a = x\n2 | test> b = y\n✅ Passed\n✅ Passed\n1 | test> b = y\n🚫 FAILED\n"
	got := scanInlineTests(text)
	// a never got its own glyph line; b is kept once with its first outcome
	assert.Equal(t, []TestResult{{Name: "b", Passed: true}}, got)
}

func TestScanInlineTestsUnrecognized(t *testing.T) {
	t.Parallel()

	assert.Empty(t, scanInlineTests("✅ Passed\ntest> noline = 1\n"))
	assert.Empty(t, scanInlineTests("1 | test> missing-equals\n✅\n"))
}

func TestScanTestRows(t *testing.T) {
	t.Parallel()

	text := `
  Cached test results (` + "`help testcache`" + ` to learn more)

  1. tests.square.ex1   ◉
  2. tests.square.ex2   ✗
  3. tests.other ✅
  4. tests.broken 🚫
  1. tests.square.ex1   ◉

  ✅ 2 test(s) passing
  not a row ◉
`
	got := scanTestRows(text)
	assert.Equal(t, []TestResult{
		{Name: "tests.square.ex1", Passed: true},
		{Name: "tests.square.ex2", Passed: false},
		{Name: "tests.other", Passed: true},
		{Name: "tests.broken", Passed: false},
	}, got)
}
