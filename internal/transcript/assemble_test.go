package transcript

import (
	"testing"

	"callscribe/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssemble_Empty(t *testing.T) {
	items, text := NewAssembler(nil).Assemble(nil)

	assert.Empty(t, items)
	assert.Equal(t, "", text)
}

func TestAssemble_RolesAndTranscript(t *testing.T) {
	phrases := []model.Phrase{
		{ID: 0, Text: "Hello", SpeakerIndex: 0, Duration: "PT2S"},
		{ID: 1, Text: "Hi", SpeakerIndex: 1, Duration: "PT1S"},
	}

	items, text := NewAssembler(nil).Assemble(phrases)

	require.Len(t, items, 2)
	assert.Equal(t, model.RoleAgent, items[0].Role)
	assert.Equal(t, 0, items[0].ParticipantID)
	assert.Equal(t, model.RoleCustomer, items[1].Role)
	assert.Equal(t, 1, items[1].ParticipantID)

	assert.Equal(t, "Agent: Hello\nCustomer: Hi\n", text)
}

func TestAssemble_AllNonZeroSpeakersAreCustomers(t *testing.T) {
	phrases := []model.Phrase{
		{ID: 0, Text: "a", SpeakerIndex: 1},
		{ID: 1, Text: "b", SpeakerIndex: 2},
		{ID: 2, Text: "c", SpeakerIndex: 7},
	}

	items, _ := NewAssembler(nil).Assemble(phrases)

	for _, item := range items {
		assert.Equal(t, model.RoleCustomer, item.Role)
	}
}

func TestAssemble_CustomRolePolicy(t *testing.T) {
	// Alternative policy: the second channel is the agent.
	assembler := NewAssembler(func(speakerIndex int) model.Role {
		if speakerIndex == 1 {
			return model.RoleAgent
		}
		return model.RoleCustomer
	})

	items, text := assembler.Assemble([]model.Phrase{
		{ID: 0, Text: "Hello", SpeakerIndex: 0},
		{ID: 1, Text: "Hi", SpeakerIndex: 1},
	})

	assert.Equal(t, model.RoleCustomer, items[0].Role)
	assert.Equal(t, model.RoleAgent, items[1].Role)
	assert.Equal(t, "Customer: Hello\nAgent: Hi\n", text)
}

func TestAssemble_PreservesPhraseOrderAndIDs(t *testing.T) {
	phrases := []model.Phrase{
		{ID: 0, Text: "one", SpeakerIndex: 0},
		{ID: 1, Text: "two", SpeakerIndex: 0},
		{ID: 2, Text: "three", SpeakerIndex: 1},
	}

	items, _ := NewAssembler(nil).Assemble(phrases)

	require.Len(t, items, 3)
	for i, item := range items {
		assert.Equal(t, phrases[i].ID, item.ID)
		assert.Equal(t, phrases[i].Text, item.Text)
	}
}
