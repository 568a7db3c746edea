package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"subweave/internal/subtitle"
	"subweave/internal/task"
)

func TestContent_WhitespaceInsensitive(t *testing.T) {
	a := []subtitle.Entry{
		{Text: "Hello   world"},
		{Text: "second\nline"},
	}
	b := []subtitle.Entry{
		{Text: " Hello world "},
		{Text: "second line"},
	}

	assert.Equal(t, Content(a), Content(b))
}

func TestContent_TextSensitive(t *testing.T) {
	a := []subtitle.Entry{{Text: "Hello world"}}
	b := []subtitle.Entry{{Text: "Hello there"}}

	assert.NotEqual(t, Content(a), Content(b))
}

func TestContent_EntryBoundariesMatter(t *testing.T) {
	// "ab" + "c" must not collide with "a" + "bc"
	a := []subtitle.Entry{{Text: "ab"}, {Text: "c"}}
	b := []subtitle.Entry{{Text: "a"}, {Text: "bc"}}

	assert.NotEqual(t, Content(a), Content(b))
}

func TestContent_IgnoresTimingsAndTranslation(t *testing.T) {
	a := []subtitle.Entry{{Index: 1, Start: 0, End: 1, Text: "same"}}
	b := []subtitle.Entry{{Index: 7, Start: 100, End: 200, Text: "same", TranslatedText: "一样"}}

	assert.Equal(t, Content(a), Content(b))
}

func TestConfig_Deterministic(t *testing.T) {
	cfg := task.TranslationConfig{Model: "gpt-4o-mini", Provider: "openai", TaiwanOptimization: true}

	assert.Equal(t, Config(cfg), Config(cfg))
}

func TestConfig_FieldSensitive(t *testing.T) {
	base := task.TranslationConfig{Model: "gpt-4o-mini", Provider: "openai"}

	changed := base
	changed.NaturalTone = true
	assert.NotEqual(t, Config(base), Config(changed))

	changed = base
	changed.Model = "gpt-4o"
	assert.NotEqual(t, Config(base), Config(changed))
}

func TestConfig_TrimsIncidentalWhitespace(t *testing.T) {
	a := task.TranslationConfig{Model: "gpt-4o-mini", Provider: "openai"}
	b := task.TranslationConfig{Model: " gpt-4o-mini ", Provider: "openai"}

	assert.Equal(t, Config(a), Config(b))
}
