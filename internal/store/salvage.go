package store

import (
	"bytes"
	"encoding/json"

	"github.com/tidwall/gjson"
	"github.com/tidwall/jsonc"

	"github.com/dayplan-ai/dayplan/pkg/types"
)

// recovered holds whatever a salvage strategy could extract from a
// corrupted session file.
type recovered struct {
	messages []types.Message
	plan     *types.Plan
}

func (r *recovered) empty() bool {
	return r == nil || (len(r.messages) == 0 && r.plan == nil)
}

type salvageStrategy func(data []byte) *recovered

// salvage runs the strategy chain in order of decreasing precision and
// returns the first non-empty recovery, or nil when nothing was usable.
func salvage(data []byte) *recovered {
	strategies := []salvageStrategy{
		salvageNormalized,
		salvageSubtrees,
		salvageBraceSlice,
	}
	for _, strategy := range strategies {
		if rec := strategy(data); !rec.empty() {
			return rec
		}
	}
	return nil
}

// salvageNormalized strips trailing commas and comments with jsonc and
// retries a full parse. This recovers files whose only damage is
// hand-editing artifacts.
func salvageNormalized(data []byte) *recovered {
	normalized := jsonc.ToJSON(data)
	var sess types.Session
	if err := json.Unmarshal(normalized, &sess); err != nil {
		return nil
	}
	return &recovered{messages: sess.Conversation.Messages, plan: sess.Plan}
}

// salvageSubtrees extracts just the conversation and plan subtrees with
// gjson, which tolerates damage elsewhere in the document. Messages are
// decoded one at a time so a single bad entry doesn't discard the rest.
func salvageSubtrees(data []byte) *recovered {
	rec := &recovered{}

	msgs := gjson.GetBytes(data, "conversation.messages")
	if msgs.IsArray() {
		for _, raw := range msgs.Array() {
			var msg types.Message
			if err := json.Unmarshal([]byte(raw.Raw), &msg); err != nil {
				continue
			}
			if msg.Content == "" {
				continue
			}
			rec.messages = append(rec.messages, msg)
		}
	}

	planRaw := gjson.GetBytes(data, "plan")
	if planRaw.Type == gjson.JSON {
		var plan types.Plan
		if err := json.Unmarshal([]byte(planRaw.Raw), &plan); err == nil {
			rec.plan = &plan
		}
	}

	if rec.empty() {
		return nil
	}
	return rec
}

// salvageBraceSlice parses the outermost brace-delimited substring, which
// recovers documents wrapped in stray bytes (shell output, partial appends).
func salvageBraceSlice(data []byte) *recovered {
	first := bytes.IndexByte(data, '{')
	last := bytes.LastIndexByte(data, '}')
	if first < 0 || last <= first {
		return nil
	}
	var sess types.Session
	if err := json.Unmarshal(data[first:last+1], &sess); err != nil {
		return nil
	}
	return &recovered{messages: sess.Conversation.Messages, plan: sess.Plan}
}
