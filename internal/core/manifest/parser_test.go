package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Parse Tests
// =============================================================================

func TestParse_SinglePinnedRequirement(t *testing.T) {
	m, err := Parse("requests==2.31.0\n")

	require.NoError(t, err)
	require.Len(t, m.Requirements, 1)
	assert.Equal(t, "requests", m.Requirements[0].Name)
	assert.Equal(t, "==2.31.0", m.Requirements[0].Specifier)
	assert.True(t, m.Requirements[0].Pinned())
	assert.True(t, m.FullyPinned())
}

func TestParse_TypicalBotManifest(t *testing.T) {
	content := `# runtime deps
python-telegram-bot==13.15
APScheduler==3.6.3
python-dotenv==0.21.0
pytz
matplotlib>=3.5,<4.0
`

	m, err := Parse(content)

	require.NoError(t, err)
	assert.Len(t, m.Requirements, 5)

	r, ok := m.Requirement("python-telegram-bot")
	require.True(t, ok)
	assert.Equal(t, "==13.15", r.Specifier)

	r, ok = m.Requirement("pytz")
	require.True(t, ok)
	assert.Empty(t, r.Specifier)
	assert.False(t, r.Pinned())

	r, ok = m.Requirement("matplotlib")
	require.True(t, ok)
	assert.Equal(t, ">=3.5,<4.0", r.Specifier)

	assert.False(t, m.FullyPinned())
}

func TestParse_CommentsAndBlankLines(t *testing.T) {
	m, err := Parse("\n# full line comment\nrequests==2.31.0  # inline comment\n\n")

	require.NoError(t, err)
	require.Len(t, m.Requirements, 1)
	assert.Equal(t, "==2.31.0", m.Requirements[0].Specifier)
}

func TestParse_HashInsideSpecifierIsNotComment(t *testing.T) {
	// pip only treats "#" as a comment after whitespace
	m, err := Parse("requests==2.31.0#egg\n")

	require.NoError(t, err)
	require.Len(t, m.Requirements, 1)
	assert.Equal(t, "==2.31.0#egg", m.Requirements[0].Specifier)
}

func TestParse_Extras(t *testing.T) {
	m, err := Parse("requests[socks,security]==2.31.0\n")

	require.NoError(t, err)
	require.Len(t, m.Requirements, 1)
	assert.Equal(t, []string{"socks", "security"}, m.Requirements[0].Extras)
	assert.Equal(t, "==2.31.0", m.Requirements[0].Specifier)
}

func TestParse_EnvironmentMarker(t *testing.T) {
	m, err := Parse(`pywin32>=300 ; sys_platform == "win32"` + "\n")

	require.NoError(t, err)
	require.Len(t, m.Requirements, 1)
	assert.Equal(t, "pywin32", m.Requirements[0].Name)
	assert.Equal(t, `sys_platform == "win32"`, m.Requirements[0].Marker)
}

func TestParse_Directives(t *testing.T) {
	content := `--index-url https://pypi.example.org/simple
-r base.txt
requests==2.31.0
`

	m, err := Parse(content)

	require.NoError(t, err)
	require.Len(t, m.Directives, 2)
	assert.Equal(t, "--index-url", m.Directives[0].Option)
	assert.Equal(t, "https://pypi.example.org/simple", m.Directives[0].Value)
	assert.Equal(t, "-r", m.Directives[1].Option)
	assert.Equal(t, "base.txt", m.Directives[1].Value)
	assert.Len(t, m.Requirements, 1)
}

func TestParse_DirectiveWithEquals(t *testing.T) {
	m, err := Parse("--index-url=https://pypi.example.org/simple\n")

	require.NoError(t, err)
	require.Len(t, m.Directives, 1)
	assert.Equal(t, "--index-url", m.Directives[0].Option)
	assert.Equal(t, "https://pypi.example.org/simple", m.Directives[0].Value)
}

func TestParse_LineContinuation(t *testing.T) {
	m, err := Parse("requests \\\n    ==2.31.0\n")

	require.NoError(t, err)
	require.Len(t, m.Requirements, 1)
	assert.Equal(t, "requests", m.Requirements[0].Name)
	assert.Equal(t, "==2.31.0", m.Requirements[0].Specifier)
}

func TestParse_DuplicateRequirement(t *testing.T) {
	// PEP 503 normalization: Requests_x and requests-x are the same package
	_, err := Parse("requests_x==1.0\nRequests-x==2.0\n")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateRequirement)

	var mErr *ManifestError
	require.ErrorAs(t, err, &mErr)
	assert.Equal(t, 2, mErr.Line)
}

func TestParse_InvalidSpecifier(t *testing.T) {
	_, err := Parse("requests 2.31.0\n")

	assert.ErrorIs(t, err, ErrInvalidRequirement)
}

func TestParse_InvalidNameCharacter(t *testing.T) {
	_, err := Parse("re/quests==1.0\n")

	assert.ErrorIs(t, err, ErrInvalidRequirement)
}

func TestParse_EmptyContent(t *testing.T) {
	m, err := Parse("")

	require.NoError(t, err)
	assert.Empty(t, m.Requirements)
	assert.NotEmpty(t, m.Digest)
}

// =============================================================================
// Digest Tests
// =============================================================================

func TestDigest_IgnoresCommentsAndWhitespace(t *testing.T) {
	a, err := Parse("requests==2.31.0\n")
	require.NoError(t, err)

	b, err := Parse("# pinned\nrequests==2.31.0   # keep in sync\n\n")
	require.NoError(t, err)

	assert.Equal(t, a.Digest, b.Digest)
}

func TestDigest_ChangesWithVersion(t *testing.T) {
	a, err := Parse("requests==2.31.0\n")
	require.NoError(t, err)

	b, err := Parse("requests==2.32.0\n")
	require.NoError(t, err)

	assert.NotEqual(t, a.Digest, b.Digest)
}

func TestDigest_NameNormalization(t *testing.T) {
	a, err := Parse("python_telegram_bot==13.15\n")
	require.NoError(t, err)

	b, err := Parse("Python-Telegram-Bot==13.15\n")
	require.NoError(t, err)

	assert.Equal(t, a.Digest, b.Digest)
}
