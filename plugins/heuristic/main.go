package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	inferencerpc "pathwise/internal/modules/inference/adapter/out/rpc"

	"github.com/hashicorp/go-plugin"
)

const model = "transition-v1"

type step struct {
	Action      string  `json:"actionType"`
	Target      string  `json:"target,omitempty"`
	Rationale   string  `json:"rationale,omitempty"`
	Probability float64 `json:"probability"`
}

type quickAction struct {
	Label     string `json:"label"`
	Operation string `json:"operation"`
	Target    string `json:"target,omitempty"`
}

type intent struct {
	Confidence       float64       `json:"confidence"`
	PredictedActions []step        `json:"predictedActions"`
	QuickActions     []quickAction `json:"quickActions,omitempty"`
}

// Most likely next actions after each action type.
var transitions = map[string][]step{
	"select-medication":     {{Action: "view-mechanism", Probability: 0.5}, {Action: "view-adverse-effects", Probability: 0.4}},
	"view-adverse-effects":  {{Action: "check-interactions", Probability: 0.6}, {Action: "view-system-effects", Probability: 0.3}},
	"view-mechanism":        {{Action: "view-system-effects", Probability: 0.5}},
	"check-interactions":    {{Action: "view-system-effects", Probability: 0.4}},
	"view-symptom":          {{Action: "view-condition", Probability: 0.5}, {Action: "filter-body-region", Probability: 0.3}},
	"log-symptom":           {{Action: "view-symptom", Probability: 0.4}},
	"view-condition":        {{Action: "view-treatment", Probability: 0.5}, {Action: "view-related-symptoms", Probability: 0.4}},
	"view-related-symptoms": {{Action: "view-symptom", Probability: 0.5}},
	"select-structure":      {{Action: "view-condition", Probability: 0.45}, {Action: "focus-region", Probability: 0.3}},
	"view-lab":              {{Action: "view-trend", Probability: 0.5}},
	"view-trend":            {{Action: "compare-labs", Probability: 0.5}},
	"send-message":          {{Action: "ask-follow-up", Probability: 0.5}},
	"query":                 {{Action: "open-result", Probability: 0.6}},
}

var actionLine = regexp.MustCompile(`^\d+\. \+-?\d+ms \[([^\]]+)\] (\S+)(?: entity=[^:\s]*:(\S*))?`)

type server struct{}

func (s *server) GetMetadata(_ context.Context, _ *inferencerpc.Empty) (*inferencerpc.Metadata, error) {
	return &inferencerpc.Metadata{Name: "heuristic", Version: "1.0.0", Models: []string{model}}, nil
}

func (s *server) Complete(_ context.Context, in *inferencerpc.CompleteRequest) (*inferencerpc.CompleteResponse, error) {
	if strings.TrimSpace(in.Prompt) == "" {
		return nil, fmt.Errorf("prompt is empty")
	}
	action, target := lastAction(in.Prompt)
	answer := predict(action, target)
	raw, err := json.Marshal(answer)
	if err != nil {
		return nil, err
	}
	name := in.Model
	if name == "" {
		name = model
	}
	return &inferencerpc.CompleteResponse{Text: string(raw), Model: name, TokensUsed: int32(len(strings.Fields(in.Prompt)))}, nil
}

func lastAction(prompt string) (string, string) {
	action, target := "", ""
	scanner := bufio.NewScanner(strings.NewReader(prompt))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if m := actionLine.FindStringSubmatch(strings.TrimSpace(scanner.Text())); m != nil {
			action, target = m[2], m[3]
		}
	}
	return action, target
}

func predict(action, target string) intent {
	next, ok := transitions[action]
	if !ok {
		return intent{PredictedActions: []step{}}
	}
	out := intent{PredictedActions: make([]step, 0, len(next))}
	for _, s := range next {
		s.Target = target
		s.Rationale = "often follows " + action
		out.PredictedActions = append(out.PredictedActions, s)
	}
	out.Confidence = next[0].Probability
	if next[0].Action == "check-interactions" {
		out.QuickActions = []quickAction{{Label: "Check interactions", Operation: "check-interactions", Target: target}}
	}
	return out
}

func main() {
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: inferencerpc.HandshakeConfig,
		Plugins:         inferencerpc.PluginMap(&server{}),
		GRPCServer:      plugin.DefaultGRPCServer,
	})
}
