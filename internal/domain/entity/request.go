package entity

import (
	"fmt"
	"slices"
	"strings"
)

type Capability string

const (
	CapabilitySearch        Capability = "search"
	CapabilityCodeExecution Capability = "code_execution"
)

// DefaultCapabilities are enabled when a request is built without any.
var DefaultCapabilities = []Capability{CapabilitySearch, CapabilityCodeExecution}

// GenerationRequest is immutable once built; use NewGenerationRequest.
type GenerationRequest struct {
	topic        string
	prompt       string
	capabilities []Capability
}

// NewGenerationRequest builds a request for topic. The topic is kept exactly as
// given; only an empty or blank topic is rejected.
func NewGenerationRequest(topic string, caps ...Capability) (GenerationRequest, error) {
	if strings.TrimSpace(topic) == "" {
		return GenerationRequest{}, fmt.Errorf("%w: topic is required", ErrConfig)
	}
	if len(caps) == 0 {
		caps = DefaultCapabilities
	}

	set := make([]Capability, 0, len(caps))
	for _, c := range caps {
		if !slices.Contains(set, c) {
			set = append(set, c)
		}
	}

	prompt := PlotPrompt
	if !slices.Contains(set, CapabilitySearch) {
		prompt = PlotPromptNoSearch
	}

	return GenerationRequest{
		topic:        topic,
		prompt:       prompt.Render(topic),
		capabilities: set,
	}, nil
}

func (r GenerationRequest) Topic() string  { return r.topic }
func (r GenerationRequest) Prompt() string { return r.prompt }

// Capabilities returns a copy of the enabled capability set.
func (r GenerationRequest) Capabilities() []Capability {
	return slices.Clone(r.capabilities)
}

func (r GenerationRequest) Has(c Capability) bool {
	return slices.Contains(r.capabilities, c)
}
