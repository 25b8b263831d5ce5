package discover

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShapeFilterAdmit(t *testing.T) {
	f := NewShapeFilter()

	cases := []struct {
		name  string
		url   string
		admit bool
	}{
		{"hospital detail page", "https://example.com/hospitals/chennai/hospital-apollo", true},
		{"doctor detail page", "https://example.com/doctors/delhi/dr-rakesh-sharma", true},
		{"treatment detail page", "https://example.com/treatments/cardiology/heart-bypass", true},
		{"bare country listing", "https://example.com/hospitals/india", false},
		{"root listing", "https://example.com/hospitals", false},
		{"paginated listing", "https://example.com/hospitals/chennai/hospital-apollo?page=2", false},
		{"search result", "https://example.com/hospitals/search/apollo", false},
		{"category page", "https://example.com/hospitals/category/cardiac", false},
		{"image asset", "https://example.com/hospitals/chennai/apollo.jpg", false},
		{"trailing slash detail", "https://example.com/hospitals/chennai/hospital-apollo/", true},
		{"empty path", "https://example.com", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.admit, f.Admit(tc.url))
		})
	}
}

func TestShapeFilterCustomPatterns(t *testing.T) {
	f, err := NewShapeFilterFromPatterns([]string{`^/clinics/[a-z\-]+$`}, nil)
	require.NoError(t, err)
	assert.True(t, f.Admit("https://example.com/clinics/fortis-noida"))
	assert.False(t, f.Admit("https://example.com/hospitals/chennai/hospital-apollo"))

	_, err = NewShapeFilterFromPatterns([]string{`(unclosed`}, nil)
	require.Error(t, err)
}

func TestSetDeduplicatesByCanonicalForm(t *testing.T) {
	s := NewSet()
	require.True(t, s.Add("https://Example.com/hospitals/chennai/hospital-apollo/"))
	require.False(t, s.Add("https://example.com/hospitals/chennai/hospital-apollo"))
	require.False(t, s.Add("https://example.com/hospitals/chennai/hospital-apollo#reviews"))
	require.True(t, s.Add("https://example.com/hospitals/chennai/hospital-fortis"))
	require.False(t, s.Add("not a url"))

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []string{
		"https://example.com/hospitals/chennai/hospital-apollo",
		"https://example.com/hospitals/chennai/hospital-fortis",
	}, s.URLs())
}
