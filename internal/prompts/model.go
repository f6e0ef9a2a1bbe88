package prompts

// GenerateRequest is the payload for the quota-gated prompt synthesis
// endpoint. ContextQuestions carries the user's free-form answers to the
// clarifying questions, already concatenated by the client.
type GenerateRequest struct {
	InitialIdea      string `json:"initialIdea" validate:"required,min=1,max=8000"`
	ContextQuestions string `json:"contextQuestions" validate:"max=16000"`
}

// QuestionsRequest asks for clarifying questions about an initial idea.
type QuestionsRequest struct {
	InitialIdea string `json:"initialIdea" validate:"required,min=1,max=8000"`
}

// GenerateResponse carries the engineered prompt back to the client.
type GenerateResponse struct {
	MagicalPrompt string `json:"magicalPrompt"`
}

// QuestionsResponse carries the clarifying questions back to the client.
type QuestionsResponse struct {
	Questions []string `json:"questions"`
}
