package models

import "time"

// Transcript holds the derived text for exactly one audio item. At most one
// live row exists per audio; reprocessing replaces it wholesale.
type Transcript struct {
	ID            int64     `json:"id"`
	AudioID       int64     `json:"audio_id"`
	RawText       string    `json:"raw_text"`       // vendor output, untouched
	ProcessedText string    `json:"processed_text"` // refined text; equals raw when refinement fell back
	CustomText    string    `json:"custom_text"`    // user-edited override, empty until edited
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// BestText returns the most user-relevant variant: the manual edit when
// present, otherwise the processed text, otherwise the raw vendor output.
func (t *Transcript) BestText() string {
	if t.CustomText != "" {
		return t.CustomText
	}
	if t.ProcessedText != "" {
		return t.ProcessedText
	}
	return t.RawText
}
