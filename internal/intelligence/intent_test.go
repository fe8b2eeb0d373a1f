package intelligence

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestDetectIntent(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		want       IntentType
		confidence float64
		matches    []string
	}{
		{
			name:       "workshop request",
			text:       "We'd love a workshop to train my team on prompt engineering",
			want:       IntentWorkshop,
			confidence: 0.8,
			matches:    []string{"workshop", "train my team"},
		},
		{
			name:       "consulting request",
			text:       "Looking for a consultant to help with our AI strategy",
			want:       IntentConsulting,
			confidence: 0.8,
			matches:    []string{"consultant", "strategy"},
		},
		{
			name:       "small talk",
			text:       "Hi there, how are you?",
			want:       IntentOther,
			confidence: 0,
			matches:    []string{},
		},
		{
			name:       "tie with workshop word",
			text:       "Could you run a workshop about automation?",
			want:       IntentWorkshop,
			confidence: 0.65,
			matches:    []string{"workshop"},
		},
		{
			name:       "overlapping keywords count once",
			text:       "Could you run a workshop about implementation?",
			want:       IntentWorkshop,
			confidence: 0.65,
			matches:    []string{"workshop"},
		},
		{
			name:       "longest keyword at a position wins",
			text:       "We need a consulting partner",
			want:       IntentConsulting,
			confidence: 0.65,
			matches:    []string{"consulting"},
		},
		{
			name:       "shorter keyword still counts elsewhere",
			text:       "Consulting first, then we consult again",
			want:       IntentConsulting,
			confidence: 0.8,
			matches:    []string{"consult", "consulting"},
		},
		{
			name:       "tie without workshop word goes to consulting",
			text:       "Training plus automation please",
			want:       IntentConsulting,
			confidence: 0.65,
			matches:    []string{"automation"},
		},
		{
			name:       "case insensitive",
			text:       "BOOTCAMP for new joiners",
			want:       IntentWorkshop,
			confidence: 0.65,
			matches:    []string{"bootcamp"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectIntent(tt.text)
			assert.Equal(t, tt.want, got.Type)
			assert.InDelta(t, tt.confidence, got.Confidence, 1e-9)
			if diff := cmp.Diff(tt.matches, got.Matches); diff != "" {
				t.Errorf("matches mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDetectIntent_ConfidenceCapped(t *testing.T) {
	got := DetectIntent("consulting strategy roadmap implementation integration automation audit")
	assert.Equal(t, IntentConsulting, got.Type)
	assert.Equal(t, 1.0, got.Confidence)
}

func TestContainsWord(t *testing.T) {
	assert.True(t, containsWord("we consulted widely", "consult"))
	assert.False(t, containsWord("reconsult", "consult"))
	assert.True(t, containsWord("a poc first", "poc"))
	assert.False(t, containsWord("pocket money", "poc"))
	assert.True(t, containsWord("poc", "poc"))
}

func TestMatchKeywords_LongestAtPosition(t *testing.T) {
	got := matchKeywords("implementation and integration", consultingKeywords)
	assert.Equal(t, []string{"implementation", "integration"}, got)
}

func TestParseIntentType(t *testing.T) {
	assert.Equal(t, IntentWorkshop, ParseIntentType(" Workshop "))
	assert.Equal(t, IntentConsulting, ParseIntentType("consulting"))
	assert.Equal(t, IntentOther, ParseIntentType("anything"))
	assert.Equal(t, IntentOther, ParseIntentType(""))
}
