package acebot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrigramSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, trigramSimilarity("msgbox", "msgbox"))
	assert.Equal(t, 0.0, trigramSimilarity("msgbox", "loop"))

	// closer strings rank higher
	msgbox := trigramSimilarity("msgbox", "msgboxes")
	loop := trigramSimilarity("msgbox", "inputbox")
	assert.Greater(t, msgbox, loop)
	assert.Greater(t, msgbox, 0.0)
}

func TestTrigramSimilarityEmpty(t *testing.T) {
	assert.Equal(t, 0.0, trigramSimilarity("", "anything"))
	assert.Equal(t, 0.0, trigramSimilarity("anything", ""))
}
