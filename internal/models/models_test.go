package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersonalityScore(t *testing.T) {
	var p Personality
	require.NoError(t, json.Unmarshal([]byte(`{"adventurous":0.9,"brave":1,"mood":"calm","nested":{"a":1}}`), &p))

	assert.InDelta(t, 0.9, p.Score("adventurous"), 1e-9)
	assert.InDelta(t, 1.0, p.Score("brave"), 1e-9)
	assert.Zero(t, p.Score("mood"))
	assert.Zero(t, p.Score("nested"))
	assert.Zero(t, p.Score("missing"))
	assert.Zero(t, Personality(nil).Score("creative"))

	flags := Personality{"brave": true, "shy": false}
	assert.InDelta(t, 1.0, flags.Score("brave"), 1e-9)
	assert.Zero(t, flags.Score("shy"))
}

func TestPersonalityCloneIsIndependent(t *testing.T) {
	orig := Personality{"creative": 0.8, "tags": []interface{}{"a"}}
	snap := orig.Clone()
	orig["creative"] = 0.1

	assert.InDelta(t, 0.8, snap.Score("creative"), 1e-9)
	assert.Equal(t, Personality{}, Personality(nil).Clone())
}

func TestParseArtifactsDefaults(t *testing.T) {
	for name, raw := range map[string]string{
		"empty":   "",
		"null":    "null",
		"garbage": "not json",
	} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, DefaultArtifacts(), ParseArtifacts([]byte(raw)))
		})
	}
}

func TestParseArtifactsFieldByField(t *testing.T) {
	a := ParseArtifacts([]byte(`{"settings":["a cave"],"characters":"oops","story_template":""}`))

	assert.Equal(t, []interface{}{"a cave"}, a.Settings)
	assert.Equal(t, []interface{}{}, a.Characters)
	assert.Equal(t, []interface{}{}, a.Rules)
	assert.Equal(t, DefaultStoryTemplate, a.StoryTemplate)
}

func TestParseArtifactsKeepsStructuredEntries(t *testing.T) {
	a := ParseArtifacts([]byte(`{"characters":[{"name":"Owl","traits":["wise"]}],"settings":[],"rules":[],"events":[],"story_template":"x"}`))

	require.Len(t, a.Characters, 1)
	entry, ok := a.Characters[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Owl", entry["name"])
	assert.Equal(t, "x", a.StoryTemplate)
}

func TestArtifactsKeepUnknownKeys(t *testing.T) {
	raw := `{"settings":["a cave"],"mood":"dark","extras":{"seed":7,"big":12345678901234567890}}`
	a := ParseArtifacts([]byte(raw))

	assert.Equal(t, []interface{}{"a cave"}, a.Settings)
	require.Contains(t, a.Extra, "mood")
	assert.Equal(t, "dark", a.Extra["mood"])

	out, err := json.Marshal(a)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"characters": [], "settings": ["a cave"], "rules": [], "events": [],
		"story_template": "basic_adventure",
		"mood": "dark",
		"extras": {"seed": 7, "big": 12345678901234567890}
	}`, string(out))

	// 再解析一次结果不变
	var again Artifacts
	require.NoError(t, json.Unmarshal(out, &again))
	assert.Equal(t, a, again)
}

func TestArtifactsCloneIsDeep(t *testing.T) {
	orig := ParseArtifacts([]byte(`{"characters":[{"name":"Owl"}],"settings":["a cave"],"extras":{"tags":["x"]}}`))
	cp := orig.Clone()

	cp.Settings[0] = "changed"
	cp.Characters[0].(map[string]interface{})["name"] = "Crow"
	cp.Extra["extras"].(map[string]interface{})["tags"].([]interface{})[0] = "y"

	assert.Equal(t, "a cave", orig.Settings[0])
	assert.Equal(t, "Owl", orig.Characters[0].(map[string]interface{})["name"])
	assert.Equal(t, "x", orig.Extra["extras"].(map[string]interface{})["tags"].([]interface{})[0])
	assert.Nil(t, DefaultArtifacts().Clone().Extra)
}

func TestWorldCloneCopiesPointers(t *testing.T) {
	thumb := "http://img/1.png"
	w := &World{ID: "w-1", ThumbnailURL: &thumb, Artifacts: DefaultArtifacts()}
	cp := w.Clone()
	*cp.ThumbnailURL = "changed"
	assert.Equal(t, "http://img/1.png", *w.ThumbnailURL)
	assert.Nil(t, cp.CreatorID)
}

func TestRouteToDemo(t *testing.T) {
	young, adult := 9, 30
	assert.True(t, (&User{}).RouteToDemo())
	assert.True(t, (&User{Age: &young}).RouteToDemo())
	assert.False(t, (&User{Age: &adult}).RouteToDemo())
}
