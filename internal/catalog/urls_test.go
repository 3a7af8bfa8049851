package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/JakeFAU/lexharvest/internal/harvest"
)

func TestURLs(t *testing.T) {
	t.Parallel()

	u := NewURLs("https://eur-lex.example/")
	p := harvest.NewPeriod(time.Date(2023, time.November, 7, 0, 0, 0, 0, time.UTC))

	assert.Equal(t, "https://eur-lex.example/oj/daily-view/L-series/default.html?ojDate=07112023", u.Index(p))
	assert.Equal(t, "https://eur-lex.example/legal-content/EN/ALL/?uri=OJ:L_202302345", u.Document("202302345", ViewAll))
	assert.Equal(t, "https://eur-lex.example/legal-content/EN/TXT/?uri=OJ:L_202302345", u.Document("202302345", ViewText))
	assert.Equal(t, "https://eur-lex.example/legal-content/EN/TXT/PDF/?uri=OJ:L_202302345", u.PDF("202302345"))
}

func TestURLsDefaultBase(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultBaseURL, NewURLs("  ").Base())
}
