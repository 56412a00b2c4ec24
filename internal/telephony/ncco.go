package telephony

import (
	"voicemail-recorder/internal/config"
)

// Instruction is one NCCO action. A slice of instructions marshals to the
// JSON array the platform expects from the answer webhook.
type Instruction interface {
	ActionName() string
}

// TalkAction plays text to the caller.
type TalkAction struct {
	Action   string `json:"action"`
	Text     string `json:"text"`
	Language string `json:"language"`
	Style    int    `json:"style"`
	BargeIn  bool   `json:"bargeIn"`
}

func (TalkAction) ActionName() string { return "talk" }

// RecordAction records the caller and posts the result to EventURL.
type RecordAction struct {
	Action       string   `json:"action"`
	EventURL     []string `json:"eventUrl"`
	EndOnSilence int      `json:"endOnSilence"`
	EndOnKey     string   `json:"endOnKey"`
	BeepStart    bool     `json:"beepStart"`
	TimeOut      int      `json:"timeOut"`
	Format       string   `json:"format"`
}

func (RecordAction) ActionName() string { return "record" }

// NCCOBuilder turns static greeting/recording settings into the voicemail
// call flow. It holds no state besides its settings.
type NCCOBuilder struct {
	greeting     config.GreetingConfig
	recording    config.RecordingConfig
	recordingURL string
}

func NewNCCOBuilder(cfg config.Config) NCCOBuilder {
	return NCCOBuilder{
		greeting:     cfg.Greeting,
		recording:    cfg.Recording,
		recordingURL: cfg.Webhooks.RecordingURL,
	}
}

// BuildVoicemailInstructions returns [talk, record] for a call.
// The greeting always plays to completion before the beep.
func (b NCCOBuilder) BuildVoicemailInstructions(callUUID string) []Instruction {
	return []Instruction{
		TalkAction{
			Action:   "talk",
			Text:     b.greeting.Message,
			Language: b.greeting.Language,
			Style:    b.greeting.Style,
			BargeIn:  false,
		},
		RecordAction{
			Action:       "record",
			EventURL:     []string{b.recordingURL},
			EndOnSilence: b.recording.EndOnSilence,
			EndOnKey:     "#",
			BeepStart:    true,
			TimeOut:      b.recording.MaxDuration,
			Format:       b.recording.Format,
		},
	}
}
