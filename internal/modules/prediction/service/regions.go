package service

// symptomRegions maps symptom ids to the body region the 3D view can focus.
var symptomRegions = map[string]string{
	"chest-pain":         "cardiovascular",
	"palpitations":       "cardiovascular",
	"syncope":            "cardiovascular",
	"edema":              "cardiovascular",
	"leg-swelling":       "cardiovascular",
	"claudication":       "cardiovascular",
	"dyspnea":            "respiratory",
	"cough":              "respiratory",
	"wheezing":           "respiratory",
	"hemoptysis":         "respiratory",
	"sore-throat":        "respiratory",
	"headache":           "head-neck",
	"dizziness":          "head-neck",
	"vision-changes":     "head-neck",
	"numbness":           "head-neck",
	"confusion":          "head-neck",
	"neck-pain":          "head-neck",
	"abdominal-pain":     "abdomen",
	"nausea":             "abdomen",
	"vomiting":           "abdomen",
	"diarrhea":           "abdomen",
	"constipation":       "abdomen",
	"heartburn":          "abdomen",
	"bloating":           "abdomen",
	"back-pain":          "musculoskeletal",
	"joint-pain":         "musculoskeletal",
	"muscle-weakness":    "musculoskeletal",
	"stiffness":          "musculoskeletal",
	"dysuria":            "urinary",
	"hematuria":          "urinary",
	"flank-pain":         "urinary",
	"frequent-urination": "urinary",
	"rash":               "skin",
	"itching":            "skin",
	"bruising":           "skin",
}

var regionLabels = map[string]string{
	"cardiovascular":  "cardiovascular",
	"respiratory":     "respiratory",
	"head-neck":       "head and neck",
	"abdomen":         "abdominal",
	"musculoskeletal": "musculoskeletal",
	"urinary":         "urinary",
	"skin":            "skin",
}

func regionOf(symptomID string) (string, bool) {
	region, ok := symptomRegions[symptomID]
	return region, ok
}
