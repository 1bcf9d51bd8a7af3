package emit_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZontarLives/tsp-compiler/core/grammar"
	"github.com/ZontarLives/tsp-compiler/runtime/compiler"
	"github.com/ZontarLives/tsp-compiler/runtime/emit"
)

const sampleSource = `[variable score]
[audio theme : volume=2]
[location Hall (dark)]
The hall stretches out.
[say "Welcome." : volume=3, blocking]
[set score += 10]
[/location]`

func compileSample(t *testing.T) *emit.Document {
	t.Helper()
	session := compiler.NewSession(grammar.Default())
	res := session.CompileUnit("sample.tsp", sampleSource)
	require.NoError(t, res.Err)
	doc, _ := session.Finalize()
	require.False(t, session.HasErrors(), "diagnostics: %v", session.Diagnostics())
	return doc
}

func TestDocumentKeysAreLowerCased(t *testing.T) {
	doc := compileSample(t)

	require.Contains(t, doc.Entities, "hall")
	assert.NotContains(t, doc.Entities, "Hall")

	hall := doc.Entities["hall"]
	assert.Equal(t, "location", hall.Type)
	assert.Equal(t, "Hall", hall.ID)
	assert.NotEmpty(t, hall.Body)
}

func TestDocumentCarriesNativeValues(t *testing.T) {
	doc := compileSample(t)

	hall := doc.Entities["hall"]
	assert.Equal(t, true, hall.States["dark"])
	assert.Equal(t, float64(0), hall.States["entries"])

	theme := doc.Entities["theme"]
	require.NotNil(t, theme)
	assert.Equal(t, float64(2), theme.Settings["volume"])

	var say *emit.Command
	var set *emit.Command
	for _, c := range hall.Body {
		switch c.Tag {
		case "say":
			say = c
		case "set":
			set = c
		}
	}
	require.NotNil(t, say)
	assert.Equal(t, float64(3), say.Settings["volume"])
	assert.Equal(t, true, say.Settings["blocking"])
	assert.Equal(t, "Welcome.", say.Display)

	require.NotNil(t, set)
	assert.Equal(t, "+=", set.Op)
	assert.Equal(t, float64(10), set.RVal)
}

func TestWriteJSONRoundTrips(t *testing.T) {
	doc := compileSample(t)

	var buf bytes.Buffer
	require.NoError(t, emit.WriteJSON(&buf, doc))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	entities, ok := decoded["entities"].(map[string]any)
	require.True(t, ok)
	assert.Len(t, entities, 3)
}

func TestCanonicalDigestIsDeterministic(t *testing.T) {
	first, err := emit.Digest(compileSample(t))
	require.NoError(t, err)
	second, err := emit.Digest(compileSample(t))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestCanonicalDigestChangesWithContent(t *testing.T) {
	base, err := emit.Digest(compileSample(t))
	require.NoError(t, err)

	session := compiler.NewSession(grammar.Default())
	res := session.CompileUnit("sample.tsp", `[location Hall]
A different hall.
[/location]`)
	require.NoError(t, res.Err)
	doc, _ := session.Finalize()

	other, err := emit.Digest(doc)
	require.NoError(t, err)
	assert.NotEqual(t, base, other)
}

func TestValidateDocument(t *testing.T) {
	doc := compileSample(t)
	require.NoError(t, emit.ValidateDocument(doc))
}

func TestValidateDocumentRejectsBrokenEnvelope(t *testing.T) {
	doc := compileSample(t)
	doc.Entities["hall"].Type = ""
	assert.Error(t, emit.ValidateDocument(doc))
}
