package pipeline

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/PaulBabatuyi/copassenger-api/internal/lipsync"
)

// Reply is one avatar utterance returned to the client.
type Reply struct {
	Text             string          `json:"text"`
	FacialExpression string          `json:"facialExpression"`
	Animation        string          `json:"animation"`
	Audio            string          `json:"audio,omitempty"`
	Lipsync          *lipsync.Timing `json:"lipsync,omitempty"`
}

// cannedLine is a fixed reply with pre-rendered audio and cues named
// <asset>.wav and <asset>.json in the audio dir.
type cannedLine struct {
	asset            string
	text             string
	facialExpression string
	animation        string
}

var (
	introLines = []cannedLine{
		{"intro_0", "Hey dear... How was your day?", "smile", "Talking_1"},
		{"intro_1", "I missed you so much... Please don't go for so long!", "sad", "Crying"},
	}
	// introDegraded is served when the intro assets are missing.
	introDegraded = cannedLine{text: "Hey dear... How was your day?", facialExpression: "smile", animation: "Talking_1"}

	apiKeyLines = []cannedLine{
		{"api_0", "Please my dear, don't forget to add your API keys!", "angry", "Angry"},
		{"api_1", "You don't want to ruin Wawa Sensei with a crazy Gemini and ElevenLabs bill, right?", "smile", "Laughing"},
	}
	apiKeyDegraded = cannedLine{text: "Please add your API keys to the .env file!", facialExpression: "angry", animation: "Angry"}
)

// Fallback texts.
const (
	ConnectivityText = "I'm having trouble connecting to my brain right now. Please check your internet connection and try again!"
	ParseErrorText   = "Sorry, I encountered an error processing your message."
	SpeechErrorText  = "I'm having trouble speaking right now."
)

// loadCanned builds the reply set for lines from their audio assets. If any
// asset is missing or unreadable the whole set degrades to a single
// text-only reply carrying the fallback timing.
func loadCanned(dir string, lines []cannedLine, degraded cannedLine) ([]Reply, error) {
	out := make([]Reply, 0, len(lines))
	for _, l := range lines {
		audio, err := os.ReadFile(filepath.Join(dir, l.asset+".wav"))
		if err != nil {
			return []Reply{textOnly(dir, degraded)}, fmt.Errorf("load %s audio: %w", l.asset, err)
		}
		timing, err := lipsync.ReadFile(filepath.Join(dir, l.asset+".json"))
		if err != nil {
			return []Reply{textOnly(dir, degraded)}, fmt.Errorf("load %s cues: %w", l.asset, err)
		}
		out = append(out, Reply{
			Text:             l.text,
			FacialExpression: l.facialExpression,
			Animation:        l.animation,
			Audio:            base64.StdEncoding.EncodeToString(audio),
			Lipsync:          timing,
		})
	}
	return out, nil
}

func textOnly(dir string, l cannedLine) Reply {
	return Reply{
		Text:             l.text,
		FacialExpression: l.facialExpression,
		Animation:        l.animation,
		Lipsync:          lipsync.LoadFallback(dir),
	}
}

// fallbackReply is a sad idle reply with the fallback cues and no audio.
func fallbackReply(dir, text string) Reply {
	return textOnly(dir, cannedLine{text: text, facialExpression: "sad", animation: "Idle"})
}
