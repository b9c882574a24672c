package services

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/odissey/internal/models"
)

// fixedRand 总是选同一个下标（对候选数取模）
type fixedRand int

func (f fixedRand) IntN(n int) int { return int(f) % n }

// recordingRand 记录每次被询问的候选数
type recordingRand struct {
	r     *rand.Rand
	sizes []int
}

func (rr *recordingRand) IntN(n int) int {
	rr.sizes = append(rr.sizes, n)
	return rr.r.IntN(n)
}

func TestOpeningContainsArtifactsAndExcitement(t *testing.T) {
	engine := NewNarrativeEngine(fixedRand(0))
	artifacts := models.Artifacts{
		Settings:   []interface{}{"Forest"},
		Characters: []interface{}{"Owl"},
	}.Normalize()

	first := engine.GenerateOpening("Woods", artifacts, models.Personality{"adventurous": 0.9, "calm": 0.2, "brave": 0.1})
	second := engine.GenerateOpening("Woods", artifacts, models.Personality{"brave": 0.1, "calm": 0.2, "adventurous": 0.9})

	assert.Equal(t, first, second)
	assert.Contains(t, first, "Forest")
	assert.Contains(t, first, "Owl")
	assert.Contains(t, first, excitementClause)
}

func TestOpeningAdventurousBeatsCreative(t *testing.T) {
	engine := NewNarrativeEngine(fixedRand(0))
	out := engine.GenerateOpening("X", models.DefaultArtifacts(), models.Personality{"adventurous": 0.8, "creative": 0.9})

	assert.Contains(t, out, excitementClause)
	assert.NotContains(t, out, imaginationClause)

	creativeOnly := engine.GenerateOpening("X", models.DefaultArtifacts(), models.Personality{"creative": 0.9})
	assert.Contains(t, creativeOnly, imaginationClause)

	// 阈值是严格大于
	atThreshold := engine.GenerateOpening("X", models.DefaultArtifacts(), models.Personality{"adventurous": 0.7})
	assert.NotContains(t, atThreshold, excitementClause)
}

func TestOpeningWithDefaultArtifacts(t *testing.T) {
	engine := NewNarrativeEngine(fixedRand(0))
	artifacts := models.ParseArtifacts(nil)

	out := engine.GenerateOpening("Nowhere", artifacts, nil)
	assert.Equal(t, "Welcome to Nowhere! You find yourself. What would you like to do?", out)

	reply := engine.GenerateTurn("", artifacts, nil)
	assert.Contains(t, genericTurnLines, reply)
}

func TestOpeningMistyHollow(t *testing.T) {
	engine := NewNarrativeEngine(nil)
	artifacts := models.ParseArtifacts([]byte(`{"settings":["a misty hollow"],"characters":["a fox"],"rules":[],"events":[],"story_template":"x"}`))

	out := engine.GenerateOpening("Misty Hollow", artifacts, models.Personality{"adventurous": 0.9})
	assert.Equal(t,
		"Welcome to Misty Hollow! You find yourself in a misty hollow. You notice a fox nearby. Your heart races with excitement for the adventure ahead. What would you like to do?",
		out)
}

func TestOpeningStructuredEntries(t *testing.T) {
	engine := NewNarrativeEngine(fixedRand(0))
	artifacts := models.Artifacts{
		Settings:   []interface{}{map[string]interface{}{"name": "the old mill", "mood": "eerie"}},
		Characters: []interface{}{map[string]interface{}{"role": "guide"}},
	}.Normalize()

	out := engine.GenerateOpening("Mill", artifacts, nil)
	assert.Contains(t, out, "in the old mill.")
	assert.Contains(t, out, `You notice {"role":"guide"} nearby.`)
}

func TestTurnAlwaysFromPool(t *testing.T) {
	rr := &recordingRand{r: rand.New(rand.NewPCG(1, 2))}
	engine := NewNarrativeEngine(rr)
	traitSource := rand.New(rand.NewPCG(3, 4))
	messages := []string{"", "open the door", "🦊", strings.Repeat("x", 500)}

	for i := 0; i < 100; i++ {
		p := models.Personality{
			"brave":    traitSource.Float64(),
			"creative": traitSource.Float64(),
		}
		pool := engine.TurnCandidates(p)
		expected := 5
		if p.Score("brave") > traitThreshold {
			expected++
		}
		if p.Score("creative") > traitThreshold {
			expected++
		}
		require.Len(t, pool, expected)

		reply := engine.GenerateTurn(messages[i%len(messages)], models.DefaultArtifacts(), p)
		assert.NotEmpty(t, reply)
		assert.Contains(t, pool, reply)
		assert.Equal(t, expected, rr.sizes[len(rr.sizes)-1])
	}
}

func TestTurnPersonalityLines(t *testing.T) {
	both := models.Personality{"brave": 0.9, "creative": 0.95}

	assert.Equal(t, braveryLine, NewNarrativeEngine(fixedRand(5)).GenerateTurn("go", models.DefaultArtifacts(), both))
	assert.Equal(t, creativeSpiritLine, NewNarrativeEngine(fixedRand(6)).GenerateTurn("go", models.DefaultArtifacts(), both))

	creativeOnly := NewNarrativeEngine(fixedRand(5)).GenerateTurn("go", models.DefaultArtifacts(), models.Personality{"creative": 0.95})
	assert.Equal(t, creativeSpiritLine, creativeOnly)
}

func TestTurnCandidatesDoNotShareBacking(t *testing.T) {
	engine := NewNarrativeEngine(fixedRand(0))
	pool := engine.TurnCandidates(nil)
	pool[0] = "mutated"

	assert.NotEqual(t, "mutated", genericTurnLines[0])
}
