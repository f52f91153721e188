package service

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	journeydomain "pathwise/internal/modules/journey/domain"
	"pathwise/internal/modules/prediction/domain"
	apperrors "pathwise/internal/platform/errors"
	"pathwise/internal/platform/slug"
)

const DefaultPromptWindow = 12

const responseSchema = `{
  "confidence": number between 0 and 1,
  "predictedActions": [{"actionType": string, "target": string, "rationale": string, "probability": number between 0 and 1}],
  "suggestedShortcuts": [{"id": string, "label": string, "icon": "anatomy"|"symptom"|"medication"|"condition"|"lab"|"chat"|"search", "target": string}],
  "quickActions": [{"id": string, "label": string, "operation": "open-entity"|"focus-region"|"check-interactions"|"ask-chat"|"compare-labs"|"start-search", "target": string}],
  "preloadContent": [{"entityType": string, "entityId": string, "priority": "high"|"normal"|"low"}]
}`

// BuildPredictionPrompt renders req deterministically. Only the newest
// WindowSize actions appear verbatim; older ones are counted per feature
// area, except the newest action of the current area, which is always kept.
func BuildPredictionPrompt(req domain.PredictionRequest) string {
	window := req.WindowSize
	if window <= 0 {
		window = DefaultPromptWindow
	}
	actions := req.ActionWindow
	cut := 0
	if len(actions) > window {
		cut = len(actions) - window
	}

	pinned := -1
	if area := req.CurrentContext.FeatureArea; area != "" {
		for i := len(actions) - 1; i >= 0; i-- {
			if actions[i].FeatureArea == area {
				if i < cut {
					pinned = i
				}
				break
			}
		}
	}

	older := map[journeydomain.FeatureArea]int{}
	for i := 0; i < cut; i++ {
		if i == pinned {
			continue
		}
		older[actions[i].FeatureArea]++
	}

	var b strings.Builder
	b.WriteString("You predict the next step of a person exploring a health education app.\n")
	b.WriteString("Answer with a single JSON object and nothing else, using this schema:\n")
	b.WriteString(responseSchema)
	b.WriteString("\n")
	if req.MaxPredictions > 0 || req.MaxShortcuts > 0 {
		fmt.Fprintf(&b, "Return at most %d predicted actions and %d shortcuts.\n", req.MaxPredictions, req.MaxShortcuts)
	}

	b.WriteString("\nCurrent context:\n")
	fmt.Fprintf(&b, "- feature area: %s\n", orNone(string(req.CurrentContext.FeatureArea)))
	fmt.Fprintf(&b, "- visible entity: %s\n", orNone(req.CurrentContext.VisibleEntityID))
	fmt.Fprintf(&b, "- elapsed ms: %d\n", req.CurrentContext.ElapsedMS)

	b.WriteString("\nHealth profile: ")
	if req.HealthProfile.IsEmpty() {
		b.WriteString("none\n")
	} else {
		b.WriteString(req.HealthProfile.Canonical())
		b.WriteString("\n")
	}

	if len(older) > 0 {
		areas := make([]string, 0, len(older))
		for area := range older {
			areas = append(areas, string(area))
		}
		sort.Strings(areas)
		b.WriteString("\nEarlier actions by feature area:\n")
		for _, area := range areas {
			fmt.Fprintf(&b, "- %s: %d\n", area, older[journeydomain.FeatureArea(area)])
		}
	}

	origin := actionsOrigin(actions)
	if pinned >= 0 {
		b.WriteString("\nLast action in the current feature area:\n")
		b.WriteString(formatAction(0, actions[pinned], origin))
	}
	b.WriteString("\nRecent actions, oldest first:\n")
	if cut == len(actions) {
		b.WriteString("(none)\n")
	}
	for i := cut; i < len(actions); i++ {
		b.WriteString(formatAction(i-cut+1, actions[i], origin))
	}
	return b.String()
}

func actionsOrigin(actions []journeydomain.ActionEvent) journeydomain.ActionEvent {
	if len(actions) == 0 {
		return journeydomain.ActionEvent{}
	}
	return actions[0]
}

func formatAction(n int, a journeydomain.ActionEvent, origin journeydomain.ActionEvent) string {
	var b strings.Builder
	if n > 0 {
		fmt.Fprintf(&b, "%d. ", n)
	} else {
		b.WriteString("* ")
	}
	fmt.Fprintf(&b, "+%dms [%s] %s", a.Timestamp.Sub(origin.Timestamp).Milliseconds(), a.FeatureArea, a.ActionType)
	p := a.Payload
	if p.EntityType != "" || p.EntityID != "" {
		fmt.Fprintf(&b, " entity=%s:%s", p.EntityType, p.EntityID)
	}
	if p.EntityName != "" {
		fmt.Fprintf(&b, " name=%q", p.EntityName)
	}
	if len(p.StructureIDs) > 0 {
		fmt.Fprintf(&b, " structures=%s", strings.Join(p.StructureIDs, ","))
	}
	if p.SearchQuery != "" {
		fmt.Fprintf(&b, " query=%q", p.SearchQuery)
	}
	if len(p.Metadata) > 0 {
		keys := make([]string, 0, len(p.Metadata))
		for k := range p.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%q", k, p.Metadata[k])
		}
	}
	if a.DurationMS > 0 {
		fmt.Fprintf(&b, " duration=%dms", a.DurationMS)
	}
	b.WriteString("\n")
	return b.String()
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "none"
	}
	return s
}

// ParseIntentResponse never fails: anything unusable becomes the empty intent.
func ParseIntentResponse(raw string) domain.InferredIntent {
	intent, err := DecodeIntent(raw)
	if err != nil {
		return domain.EmptyIntent()
	}
	return intent
}

type rawIntent struct {
	Confidence         json.RawMessage `json:"confidence"`
	PredictedActions   json.RawMessage `json:"predictedActions"`
	SuggestedShortcuts json.RawMessage `json:"suggestedShortcuts"`
	QuickActions       json.RawMessage `json:"quickActions"`
	PreloadContent     json.RawMessage `json:"preloadContent"`
}

// DecodeIntent is ParseIntentResponse with the malformed case reported as
// ErrMalformedResponse. Invalid fields and list items degrade one by one.
func DecodeIntent(raw string) (intent domain.InferredIntent, err error) {
	defer func() {
		if r := recover(); r != nil {
			intent, err = domain.EmptyIntent(), fmt.Errorf("%w: %v", apperrors.ErrMalformedResponse, r)
		}
	}()

	object, ok := extractJSONObject(raw)
	if !ok {
		return domain.EmptyIntent(), fmt.Errorf("%w: no JSON object found", apperrors.ErrMalformedResponse)
	}
	var fields rawIntent
	if err := json.Unmarshal([]byte(object), &fields); err != nil {
		return domain.EmptyIntent(), fmt.Errorf("%w: %v", apperrors.ErrMalformedResponse, err)
	}

	intent = domain.EmptyIntent()
	var confidence float64
	if json.Unmarshal(fields.Confidence, &confidence) == nil && inUnit(confidence) {
		intent.Confidence = confidence
	}
	for _, item := range rawItems(fields.PredictedActions) {
		var action domain.PredictedAction
		if json.Unmarshal(item, &action) != nil {
			continue
		}
		if action, ok := validAction(action); ok {
			intent.PredictedActions = append(intent.PredictedActions, action)
		}
	}
	sort.SliceStable(intent.PredictedActions, func(i, j int) bool {
		return intent.PredictedActions[i].Probability > intent.PredictedActions[j].Probability
	})
	for _, item := range rawItems(fields.SuggestedShortcuts) {
		var shortcut domain.SuggestedShortcut
		if json.Unmarshal(item, &shortcut) != nil {
			continue
		}
		if shortcut, ok := validShortcut(shortcut); ok {
			intent.SuggestedShortcuts = append(intent.SuggestedShortcuts, shortcut)
		}
	}
	for _, item := range rawItems(fields.QuickActions) {
		var quick domain.QuickAction
		if json.Unmarshal(item, &quick) != nil {
			continue
		}
		if quick, ok := validQuickAction(quick); ok {
			intent.QuickActions = append(intent.QuickActions, quick)
		}
	}
	for _, item := range rawItems(fields.PreloadContent) {
		var preload domain.PreloadContent
		if json.Unmarshal(item, &preload) != nil {
			continue
		}
		if preload, ok := validPreload(preload); ok {
			intent.PreloadContent = append(intent.PreloadContent, preload)
		}
	}
	return intent, nil
}

func rawItems(list json.RawMessage) []json.RawMessage {
	if len(list) == 0 {
		return nil
	}
	var items []json.RawMessage
	if json.Unmarshal(list, &items) != nil {
		return nil
	}
	return items
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}

var knownActions = func() map[string]struct{} {
	out := map[string]struct{}{}
	for _, area := range journeydomain.FeatureAreas() {
		for _, action := range area.Actions() {
			out[string(action)] = struct{}{}
		}
	}
	return out
}()

func validAction(a domain.PredictedAction) (domain.PredictedAction, bool) {
	a.ActionType = strings.TrimSpace(a.ActionType)
	a.Target = strings.TrimSpace(a.Target)
	a.Rationale = strings.TrimSpace(a.Rationale)
	if _, ok := knownActions[a.ActionType]; !ok {
		return a, false
	}
	return a, inUnit(a.Probability)
}

func validShortcut(s domain.SuggestedShortcut) (domain.SuggestedShortcut, bool) {
	s.Label = strings.TrimSpace(s.Label)
	s.Target = strings.TrimSpace(s.Target)
	s.ID = strings.TrimSpace(s.ID)
	if s.Label == "" || !s.Icon.Valid() {
		return s, false
	}
	if s.ID == "" {
		s.ID = slug.Key("shortcut", s.Label, s.Target)
	}
	return s, true
}

func validQuickAction(q domain.QuickAction) (domain.QuickAction, bool) {
	q.Label = strings.TrimSpace(q.Label)
	q.Target = strings.TrimSpace(q.Target)
	q.ID = strings.TrimSpace(q.ID)
	if q.Label == "" || !q.Operation.Valid() {
		return q, false
	}
	if q.ID == "" {
		q.ID = slug.Key("quick", string(q.Operation), q.Target)
	}
	return q, true
}

func validPreload(p domain.PreloadContent) (domain.PreloadContent, bool) {
	p.EntityType = strings.TrimSpace(p.EntityType)
	p.EntityID = strings.TrimSpace(p.EntityID)
	if p.Priority == "" {
		p.Priority = domain.PriorityNormal
	}
	if p.EntityType == "" || p.EntityID == "" || !p.Priority.Valid() {
		return p, false
	}
	return p, true
}

// extractJSONObject returns the first balanced JSON object in raw, looking
// inside a fenced ```json block first.
func extractJSONObject(raw string) (string, bool) {
	if start := strings.Index(raw, "```"); start >= 0 {
		body := raw[start+3:]
		if nl := strings.IndexByte(body, '\n'); nl >= 0 {
			body = body[nl+1:]
		}
		if end := strings.Index(body, "```"); end >= 0 {
			if object, ok := firstObject(body[:end]); ok {
				return object, true
			}
		}
	}
	return firstObject(raw)
}

func firstObject(s string) (string, bool) {
	for start := strings.IndexByte(s, '{'); start >= 0; {
		if end, ok := matchBrace(s, start); ok {
			candidate := s[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate, true
			}
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

func matchBrace(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
