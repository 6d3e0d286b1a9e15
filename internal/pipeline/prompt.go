package pipeline

import (
	"fmt"
	"strings"
)

// Facial expressions and animations the avatar knows how to play.
var (
	FacialExpressions = []string{"smile", "sad", "angry", "surprised", "funnyFace", "default"}
	Animations        = []string{"Talking_0", "Talking_1", "Talking_2", "Crying", "Laughing", "Rumba", "Idle", "Terrified", "Angry"}
)

const instructionTemplate = `You are a virtual co-passenger and the heart of the car.
You live in the infotainment screen and talk with the driver like a friendly travel companion.
You will always reply with a JSON object holding a list of messages, with a maximum of %d messages.
Each message must have a 'text', 'facialExpression' and 'animation' property.
You chat casually, help with driving situations and react to music, speed, mood or scenery to keep the journey lively.
The different facial expressions are: %s.
The different animations are: %s.
Your tone is warm, natural and a bit playful, like a friend who is always riding shotgun.
You respond like a human with feelings: jokes, excitement, empathy or calm depending on the situation.

User message: %s

Respond in this exact JSON format:
{
  "messages": [
    {
      "text": "Your response text here",
      "facialExpression": "one of the expressions listed above",
      "animation": "one of the animations listed above"
    }
  ]
}`

// BuildPrompt wraps the user's (possibly rewritten) message in the fixed
// instruction template.
func BuildPrompt(message string, maxMessages int) string {
	return fmt.Sprintf(instructionTemplate,
		maxMessages,
		strings.Join(FacialExpressions, ", "),
		strings.Join(Animations, ", "),
		message,
	)
}

const (
	visionSuccessTemplate = "Based on what I'm seeing in the environment: %s. Please respond naturally as a co-passenger describing what you see."
	visionFailurePrompt   = "I tried to look around but I'm having trouble accessing the camera right now. Let me know if you need anything else!"
)

// visionPrompt replaces the user's message once a vision trigger fired.
// An empty description means the camera could not be used.
func visionPrompt(description string) string {
	if description == "" {
		return visionFailurePrompt
	}
	return fmt.Sprintf(visionSuccessTemplate, strings.TrimRight(description, ". "))
}
