package assetregistry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Company Logo", "company-logo"},
		{"  Hello,   World!  ", "hello-world"},
		{"Café Crème", "cafe-creme"},
		{"Ångström_units--v2", "angstrom-units-v2"},
		{"already-a-slug", "already-a-slug"},
		{"日本語", ""},
		{"!!!", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Slugify(tt.in))
		})
	}
}

func TestSlugify_Length(t *testing.T) {
	long := strings.Repeat("a", MaxSlugLength-1) + " bcd"
	got := Slugify(long)
	assert.LessOrEqual(t, len(got), MaxSlugLength)
	assert.False(t, strings.HasSuffix(got, "-"))
}

func TestRandomSlug(t *testing.T) {
	a, b := RandomSlug(), RandomSlug()
	assert.Len(t, a, 10)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, Slugify(a))
}

func TestSHA256(t *testing.T) {
	const helloSum = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	assert.Equal(t, helloSum, SHA256Hex([]byte("hello")))

	sum, n, err := SHA256Reader(strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, helloSum, sum)
	assert.Equal(t, int64(5), n)

	assert.True(t, IsSHA256Hex(helloSum))
	assert.False(t, IsSHA256Hex("abc"))
	assert.False(t, IsSHA256Hex(strings.Repeat("z", 64)))
}
