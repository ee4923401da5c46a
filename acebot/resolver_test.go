package acebot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDocsFinder is a DocsFinder that records how often each tier ran.
type fakeDocsFinder struct {
	exact   *DocsName
	similar []DocsName

	exactCalls   int
	similarCalls int
}

func (f *fakeDocsFinder) FindByExactName(string) (*DocsName, error) {
	f.exactCalls++
	return f.exact, nil
}

func (f *fakeDocsFinder) FindSimilar(string, int) ([]DocsName, error) {
	f.similarCalls++
	return f.similar, nil
}

func docsName(id uint, docsID uint, name string) DocsName {
	return DocsName{
		ModelUintID: ModelUintID{ID: id},
		DocsID:      docsID,
		Name:        name,
	}
}

func TestResolveExactMatchShortCircuits(t *testing.T) {
	exact := docsName(1, 10, "MsgBox")
	finder := &fakeDocsFinder{
		exact:   &exact,
		similar: []DocsName{docsName(2, 20, "InputBox")},
	}
	resolver := NewDocsResolver(finder, nil)

	matches, err := resolver.Resolve("msgbox", 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "MsgBox", matches[0].Name.Name)
	assert.Equal(t, 100, matches[0].Score)

	assert.Equal(t, 1, finder.exactCalls)
	assert.Equal(t, 0, finder.similarCalls, "similarity tier should not run")
}

func TestResolveRanksAndDeduplicates(t *testing.T) {
	exact := docsName(1, 10, "Loop")
	finder := &fakeDocsFinder{
		exact: &exact,
		similar: []DocsName{
			// same entry as the exact match, under an alias
			docsName(5, 10, "loop"),
			docsName(2, 20, "LoopFiles"),
			docsName(3, 30, "LoopParse"),
		},
	}
	resolver := NewDocsResolver(finder, nil)

	matches, err := resolver.Resolve("loop", 3)
	require.NoError(t, err)
	require.Len(t, matches, 3)

	assert.Equal(t, uint(10), matches[0].Name.DocsID)
	assert.Equal(t, 100, matches[0].Score)

	seen := map[uint]bool{}
	for _, match := range matches {
		assert.False(t, seen[match.Name.DocsID], "duplicate entry id in results")
		seen[match.Name.DocsID] = true
	}
	assert.Equal(t, 1, finder.similarCalls)
}

func TestResolveCapsResultCount(t *testing.T) {
	finder := &fakeDocsFinder{
		similar: []DocsName{
			docsName(1, 10, "StrLen"),
			docsName(2, 20, "StrSplit"),
			docsName(3, 30, "StrReplace"),
			docsName(4, 40, "StrLower"),
		},
	}
	resolver := NewDocsResolver(finder, nil)

	matches, err := resolver.Resolve("str", 2)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestResolveNoMatch(t *testing.T) {
	resolver := NewDocsResolver(&fakeDocsFinder{}, nil)

	matches, err := resolver.Resolve("definitely missing", 3)
	assert.Nil(t, matches)
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestResolveEach(t *testing.T) {
	exact := docsName(1, 10, "MsgBox")
	finder := &fakeDocsFinder{exact: &exact}
	resolver := NewDocsResolver(finder, nil)

	// only the exact tier hits; similarity returns nothing, so every
	// subquery resolves to the same match and all are kept
	matches, err := resolver.ResolveEach("msgbox, msgbox2")
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "MsgBox", matches[0].Name.Name)

	_, err = resolver.ResolveEach("a, b, c, d")
	assert.ErrorIs(t, err, ErrTooManyQueries)

	empty := NewDocsResolver(&fakeDocsFinder{}, nil)
	_, err = empty.ResolveEach("missing, also missing")
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestParseQueries(t *testing.T) {
	resolver := NewDocsResolver(&fakeDocsFinder{}, nil)

	t.Run("dedupes and normalizes", func(t *testing.T) {
		queries, err := resolver.ParseQueries("MsgBox, msgbox , Loop,")
		require.NoError(t, err)
		assert.Equal(t, []string{"msgbox", "loop"}, queries)
	})

	t.Run("rejects too many distinct queries", func(t *testing.T) {
		_, err := resolver.ParseQueries("a, b, c, d")
		assert.ErrorIs(t, err, ErrTooManyQueries)
	})

	t.Run("limit applies after deduplication", func(t *testing.T) {
		queries, err := resolver.ParseQueries("a, A, b, B, c, C")
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, queries)
	})
}
