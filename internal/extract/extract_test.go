package extract

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const samplePage = `<!DOCTYPE html>
<html>
<head><title>  Admissions |  Example School </title><style>body{color:red}</style></head>
<body>
<nav><a href="/home">Home</a> navigation chrome</nav>
<header>site header</header>
<main>
  <h1>Admissions</h1>
  <p>Applications open in   November. The   process has three steps.</p>
  <a href="/apply">Apply now</a>
  <a href="/apply">Apply now again</a>
  <a href="fees#table">Fee structure</a>
  <a href="mailto:office@example.com">Mail us</a>
  <a href="javascript:void(0)">Click</a>
  <a href="https://other.example.org/page">External</a>
</main>
<script>console.log("hi")</script>
<footer>footer text</footer>
</body>
</html>`

func TestParseExtractsTitleTextAndLinks(t *testing.T) {
	page, err := Parse(samplePage, "https://school.example.com/admissions")
	require.NoError(t, err)

	require.Equal(t, "Admissions | Example School", page.Title)
	require.Contains(t, page.Text, "Applications open in November. The process has three steps.")

	// Chrome and executable content never reach the text.
	require.NotContains(t, page.Text, "navigation chrome")
	require.NotContains(t, page.Text, "site header")
	require.NotContains(t, page.Text, "footer text")
	require.NotContains(t, page.Text, "console.log")
	require.NotContains(t, page.Text, "color:red")

	require.Equal(t, []string{
		"https://school.example.com/apply",
		"https://school.example.com/fees",
		"https://other.example.org/page",
	}, page.Links)
}

func TestParseFallsBackToHostnameTitle(t *testing.T) {
	page, err := Parse("<html><body><p>No title here.</p></body></html>", "https://school.example.com/")
	require.NoError(t, err)
	require.Equal(t, "school.example.com", page.Title)
}

func TestParseCapsPageText(t *testing.T) {
	body := strings.Repeat("word ", 10000)
	page, err := Parse("<html><body><p>"+body+"</p></body></html>", "https://school.example.com/long")
	require.NoError(t, err)
	require.LessOrEqual(t, len(page.Text), 15000)
}

func TestCollapseWhitespace(t *testing.T) {
	require.Equal(t, "a b c", CollapseWhitespace("  a \n\t b \r\n  c  "))
	require.Equal(t, "", CollapseWhitespace(" \n \t "))
}

func TestNormalizeURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"HTTP://School.Example.COM/Path", "http://school.example.com/Path"},
		{"http://school.example.com:80/a", "http://school.example.com/a"},
		{"https://school.example.com:443/a", "https://school.example.com/a"},
		{"https://school.example.com/a#section", "https://school.example.com/a"},
		{"https://school.example.com/a?b=2&a=1", "https://school.example.com/a?a=1&b=2"},
	}
	for _, tc := range cases {
		got, err := NormalizeURL(tc.in)
		require.NoError(t, err)
		require.Equal(t, tc.want, got)
	}
}

func TestSameOrigin(t *testing.T) {
	require.True(t, SameOrigin("https://school.example.com/", "https://school.example.com/fees"))
	require.False(t, SameOrigin("https://school.example.com/", "https://other.example.org/"))
	require.False(t, SameOrigin("https://school.example.com/", "http://school.example.com/"))
}

func TestQualityFilterAllowURL(t *testing.T) {
	f := NewQualityFilter(QualityConfig{})

	require.True(t, f.AllowURL("https://school.example.com/fees"))
	require.False(t, f.AllowURL("https://facebook.com/school"))
	require.False(t, f.AllowURL("https://m.facebook.com/school"))
	require.False(t, f.AllowURL("https://school.example.com/login"))
	require.False(t, f.AllowURL("https://school.example.com/brochure.pdf"))
	require.False(t, f.AllowURL("https://school.example.com/logo.png"))
}

func TestQualityFilterCheck(t *testing.T) {
	f := NewQualityFilter(QualityConfig{})
	var b strings.Builder
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&b, "Paragraph %d describes subject%d taught in grade %d classrooms. ", i, i, i)
	}
	good := b.String()

	require.Equal(t, VerdictTooShort, f.Check("tiny"))
	require.Equal(t, VerdictTooLong, f.Check(strings.Repeat("x", 20001)))
	require.Equal(t, VerdictPlaceholder, f.Check(strings.Repeat("filler text here. ", 20)+"This page is under construction."))
	require.Equal(t, VerdictOK, f.Check(good))
	// The same content a second time is a duplicate.
	require.Equal(t, VerdictDuplicate, f.Check(good))
}

func TestQualityFilterRejectsRepetitiveText(t *testing.T) {
	f := NewQualityFilter(QualityConfig{})

	// Long enough to pass the length check, but the whole page is the same
	// four menu words over and over. Single-line input; extraction collapses
	// all whitespace before the filter ever sees the text.
	menus := strings.TrimSpace(strings.Repeat("Admissions Academics Events Contact ", 60))
	require.NotContains(t, menus, "\n")
	require.Equal(t, VerdictLowDensity, f.Check(menus))
}
