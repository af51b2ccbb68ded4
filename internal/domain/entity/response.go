package entity

import "time"

type GenerationResponse struct {
	// RawText is the code payload exactly as the model returned it.
	RawText       string    `json:"raw_text"`
	Text          string    `json:"text"`
	SearchSummary string    `json:"search_summary,omitempty"`
	CodeOutputs   []string  `json:"code_outputs,omitempty"`
	Model         string    `json:"model"`
	RequestID     string    `json:"request_id"`
	CreatedAt     time.Time `json:"created_at"`
}
