package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	fencedJSON    = regexp.MustCompile("(?s)```json\\s*\\n(.*?)\\n\\s*```")
	fencedGeneric = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\\n(.*?)\\n\\s*```")

	errNoJSON       = errors.New("no JSON found in generated text")
	errMessagesType = errors.New("messages field is not a list")
)

// GeneratedMessage is one entry of the model's output.
type GeneratedMessage struct {
	Text             string `json:"text"`
	FacialExpression string `json:"facialExpression"`
	Animation        string `json:"animation"`
}

// extractor pulls a JSON candidate out of raw model output.
type extractor struct {
	name string
	find func(raw string) (string, bool)
}

// extractors run in priority order; the first candidate that decodes wins.
var extractors = []extractor{
	{"fenced-json", func(raw string) (string, bool) { return submatch(fencedJSON, raw) }},
	{"fenced", func(raw string) (string, bool) { return submatch(fencedGeneric, raw) }},
	{"bare-object", bareObject},
	{"whole", func(raw string) (string, bool) { return strings.TrimSpace(raw), true }},
}

func submatch(re *regexp.Regexp, raw string) (string, bool) {
	m := re.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// bareObject takes everything from the first '{' to the last '}'.
func bareObject(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return raw[start : end+1], true
}

// ExtractMessages decodes the message list from raw model output. It also
// reports which extractor matched.
func ExtractMessages(raw string) ([]GeneratedMessage, string, error) {
	var lastErr error = errNoJSON
	for _, ex := range extractors {
		candidate, ok := ex.find(raw)
		if !ok || candidate == "" {
			continue
		}
		msgs, err := decodeMessages(candidate)
		if err == nil {
			return msgs, ex.name, nil
		}
		lastErr = err
		// a well-formed document with the wrong shape will not improve further down the chain
		if errors.Is(err, errMessagesType) {
			break
		}
	}
	return nil, "", lastErr
}

// decodeMessages accepts {"messages": [...]}, a bare message object, or a
// top-level list of messages.
func decodeMessages(candidate string) ([]GeneratedMessage, error) {
	var doc any
	if err := json.Unmarshal([]byte(candidate), &doc); err != nil {
		return nil, err
	}

	switch v := doc.(type) {
	case []any:
		return decodeList(candidate)
	case map[string]any:
		raw, ok := v["messages"]
		if !ok {
			var one GeneratedMessage
			if err := json.Unmarshal([]byte(candidate), &one); err != nil {
				return nil, err
			}
			return []GeneratedMessage{one}, nil
		}
		if _, isList := raw.([]any); !isList {
			return nil, errMessagesType
		}
		var wrapper struct {
			Messages json.RawMessage `json:"messages"`
		}
		if err := json.Unmarshal([]byte(candidate), &wrapper); err != nil {
			return nil, err
		}
		return decodeList(string(wrapper.Messages))
	default:
		return nil, fmt.Errorf("unexpected JSON value %T", doc)
	}
}

func decodeList(s string) ([]GeneratedMessage, error) {
	var msgs []GeneratedMessage
	if err := json.Unmarshal([]byte(s), &msgs); err != nil {
		return nil, fmt.Errorf("%w: %v", errMessagesType, err)
	}
	return msgs, nil
}
