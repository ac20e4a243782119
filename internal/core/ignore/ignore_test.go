package ignore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse_SkipsCommentsAndBlanks(t *testing.T) {
	patterns := Parse("# editor junk\n\n.git\n__pycache__\n*.pyc\n")

	assert.Equal(t, []string{".git", "__pycache__", "*.pyc"}, patterns)
}

func TestParse_NormalizesSlashes(t *testing.T) {
	patterns := Parse("/venv/\n/.env\n")

	assert.Equal(t, []string{"venv", ".env"}, patterns)
}

func TestParse_KeepsNegation(t *testing.T) {
	patterns := Parse("*.md\n!README.md\n")

	assert.Equal(t, []string{"*.md", "!README.md"}, patterns)
}

func TestParse_Empty(t *testing.T) {
	assert.Nil(t, Parse(""))
	assert.Nil(t, Parse("# nothing\n\n"))
}

func TestExcluded_ExactName(t *testing.T) {
	patterns := []string{".env", "venv"}

	assert.True(t, Excluded(".env", patterns))
	assert.False(t, Excluded("requirements.txt", patterns))
}

func TestExcluded_DirectoryPrefix(t *testing.T) {
	patterns := []string{"venv"}

	assert.True(t, Excluded("venv/lib/site.py", patterns))
}

func TestExcluded_Wildcard(t *testing.T) {
	patterns := []string{"*.pyc"}

	assert.True(t, Excluded("utils.pyc", patterns))
	assert.False(t, Excluded("utils.py", patterns))
}

func TestExcluded_NegationWins(t *testing.T) {
	patterns := []string{"*.txt", "!requirements.txt"}

	assert.False(t, Excluded("requirements.txt", patterns))
	assert.True(t, Excluded("notes.txt", patterns))
}
