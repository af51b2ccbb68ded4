package entity

import "fmt"

type Prompt struct {
	ID   string
	Text string
}

// Render places the topic into the prompt text.
func (p Prompt) Render(topic string) string {
	return fmt.Sprintf(p.Text, topic)
}

const plotPrompt = `I want you to:
1. Search for relevant information regarding the topic the user will specify
2. Then, based on the information found, create a matplotlib graph in python.

Here is the user topic: %s`

var PlotPrompt = Prompt{
	ID:   "matplotlib",
	Text: plotPrompt,
}

// PlotPromptNoSearch is used when the search capability is disabled.
var PlotPromptNoSearch = Prompt{
	ID:   "matplotlib_offline",
	Text: "Using what you already know, create a matplotlib graph in python for the following topic. Output the python code only.\n\nHere is the user topic: %s",
}
