package api

// Request bodies for the model-backed endpoints. Vault defaults to the
// first configured vault when empty.

type chatRequest struct {
	Message string `json:"message"`
	Vault   string `json:"vault,omitempty"`
}

type agentRequest struct {
	Task  string `json:"task"`
	Vault string `json:"vault,omitempty"`
}

type researchRequest struct {
	Question string `json:"question"`
	Vault    string `json:"vault,omitempty"`
}
