package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndString(t *testing.T) {
	v, err := Parse("1.2.3-alpha.1+build.123")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v.Major)
	assert.Equal(t, uint64(2), v.Minor)
	assert.Equal(t, uint64(3), v.Patch)
	assert.Equal(t, "alpha.1", v.Prerelease)
	assert.Equal(t, "build.123", v.Build)
	assert.Equal(t, "1.2.3-alpha.1+build.123", v.String())
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse("not-a-version")
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
}

func TestCompareNumeric(t *testing.T) {
	assert.True(t, Less(New(1, 0, 0), New(2, 0, 0)))
	assert.True(t, Less(New(1, 0, 0), New(1, 1, 0)))
	assert.True(t, Less(New(1, 0, 0), New(1, 0, 1)))
	assert.Equal(t, 0, Compare(New(1, 2, 3), New(1, 2, 3)))
}

func TestComparePrereleaseOutrankedByRelease(t *testing.T) {
	pre := New(1, 0, 0).WithPrerelease("alpha")
	rel := New(1, 0, 0)
	assert.True(t, Less(pre, rel))
}

func TestComparePrereleaseSegments(t *testing.T) {
	// alpha < alpha.1 < alpha.beta < beta < beta.2 < beta.11 < rc.1
	ordered := []SemanticVersion{
		New(1, 0, 0).WithPrerelease("alpha"),
		New(1, 0, 0).WithPrerelease("alpha.1"),
		New(1, 0, 0).WithPrerelease("alpha.beta"),
		New(1, 0, 0).WithPrerelease("beta"),
		New(1, 0, 0).WithPrerelease("beta.2"),
		New(1, 0, 0).WithPrerelease("beta.11"),
		New(1, 0, 0).WithPrerelease("rc.1"),
	}
	for i := 1; i < len(ordered); i++ {
		assert.Truef(t, Less(ordered[i-1], ordered[i]), "%s should be < %s", ordered[i-1], ordered[i])
	}
}

func TestBuildMetadataIgnoredInOrder(t *testing.T) {
	a := New(1, 0, 0).WithBuild("001")
	b := New(1, 0, 0).WithBuild("002")
	assert.Equal(t, 0, Compare(a, b))
}

func TestIncrement(t *testing.T) {
	v := New(1, 2, 3).WithPrerelease("alpha")
	assert.Equal(t, New(1, 2, 4), v.IncrementPatch())
	assert.Equal(t, New(1, 3, 0), v.IncrementMinor())
	assert.Equal(t, New(2, 0, 0), v.IncrementMajor())
}

func TestContentHashDeterministic(t *testing.T) {
	h1 := ContentHash([]byte(`{"a":1}`))
	h2 := ContentHash([]byte(`{"a":1}`))
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, ContentHash([]byte(`{"a":2}`)))
}
