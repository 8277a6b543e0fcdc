package transcript

import (
	"fmt"
	"strings"

	"callscribe/pkg/model"
)

// Assembler turns normalized phrases into role-labeled conversation items
// and a flattened transcript string.
type Assembler struct {
	roles model.RoleAssigner
}

// NewAssembler creates an assembler with the given role policy; nil selects
// the default first-speaker-is-the-agent policy.
func NewAssembler(roles model.RoleAssigner) *Assembler {
	if roles == nil {
		roles = model.DefaultRoleAssigner
	}
	return &Assembler{roles: roles}
}

// Assemble converts phrases, in order, into conversation items and the
// transcript text built from one "{role}: {text}" line per item. Empty
// input yields an empty item list and an empty string.
func (a *Assembler) Assemble(phrases []model.Phrase) ([]model.ConversationItem, string) {
	items := make([]model.ConversationItem, 0, len(phrases))
	var transcript strings.Builder

	for _, phrase := range phrases {
		role := a.roles(phrase.SpeakerIndex)

		items = append(items, model.ConversationItem{
			ID:            phrase.ID,
			Text:          phrase.Text,
			Role:          role,
			ParticipantID: phrase.SpeakerIndex,
			Duration:      phrase.Duration,
		})

		fmt.Fprintf(&transcript, "%s: %s\n", role, phrase.Text)
	}

	return items, transcript.String()
}
