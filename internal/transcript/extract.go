package transcript

import (
	"fmt"
	"sort"

	"callscribe/internal/speech"
	"callscribe/pkg/model"
)

// AmbiguousSpeakerEncodingError means a recognized phrase carries neither a
// speaker number nor a channel number. The extractor never guesses a
// default for such records.
type AmbiguousSpeakerEncodingError struct {
	Index int
}

func (e *AmbiguousSpeakerEncodingError) Error() string {
	return fmt.Sprintf("recognized phrase %d has neither speaker nor channel attribute", e.Index)
}

// ExtractPhrases normalizes the raw recognition events into ordered,
// speaker-attributed phrases.
//
// Phrases are stably sorted by their raw channel number if present, else
// their raw speaker number, else 0 — not by temporal offset. Dialogue is
// therefore grouped per speaker rather than chronologically interleaved;
// that ordering is inherited from the result format and kept for
// reproducibility. Ids are assigned sequentially in the sorted order.
func ExtractPhrases(raw *speech.RawTranscription) ([]model.Phrase, error) {
	sorted := make([]speech.RawPhrase, len(raw.RecognizedPhrases))
	copy(sorted, raw.RecognizedPhrases)

	sort.SliceStable(sorted, func(i, j int) bool {
		return sortKey(sorted[i]) < sortKey(sorted[j])
	})

	phrases := make([]model.Phrase, 0, len(sorted))
	for i, p := range sorted {
		if len(p.NBest) == 0 {
			return nil, fmt.Errorf("recognized phrase %d has no nBest candidates", i)
		}
		best := p.NBest[0]

		// A 1-based speaker number (diarization) is decremented; a 0-based
		// channel number (stereo) is used as-is.
		var speakerIndex int
		switch {
		case p.Speaker != nil:
			speakerIndex = *p.Speaker - 1
		case p.Channel != nil:
			speakerIndex = *p.Channel
		default:
			return nil, &AmbiguousSpeakerEncodingError{Index: i}
		}

		phrases = append(phrases, model.Phrase{
			ID:           i,
			Text:         best.Display,
			SpeakerIndex: speakerIndex,
			Offset:       p.Offset,
			OffsetTicks:  p.OffsetInTicks,
			Duration:     p.Duration,
		})
	}

	return phrases, nil
}

func sortKey(p speech.RawPhrase) int {
	if p.Channel != nil {
		return *p.Channel
	}
	if p.Speaker != nil {
		return *p.Speaker
	}
	return 0
}
