package domain

type JourneySummary struct {
	Entities     []EntityRef
	FeatureAreas []FeatureArea
	ActionCount  int
}

func (s JourneySummary) IsEmpty() bool {
	return len(s.Entities) == 0 && len(s.FeatureAreas) == 0
}
