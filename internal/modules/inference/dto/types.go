package dto

type ProviderInfo struct {
	Name    string
	Version string
	Enabled bool
	Binary  string
	Models  []string
}

type DoctorResult struct {
	Name            string
	ChecksumValid   bool
	BinaryReachable bool
	LifecycleOK     bool
	Error           string
}

type CompleteInput struct {
	Prompt    string
	Model     string
	MaxTokens int
}

type CompleteOutput struct {
	Text       string
	Model      string
	TokensUsed int
	Cached     bool
}
