package majority

import (
	"fmt"
	"strings"
)

// AgentInstruction is the role turn added for agent id.
func AgentInstruction(id int) string {
	return fmt.Sprintf("You are Agent %d, a specialized AI analyst. "+
		"Provide a detailed, comprehensive, and well-structured contribution to addressing the conversation, "+
		"building directly on the previous agents' thinking. "+
		"Expand, refine, or correct as needed to improve the overall response.", id)
}

const aspectInstruction = "You are a qualitative evaluator. First, identify the key aspects " +
	"(main sections, topics, or elements) covered in the responses.\n" +
	"For each aspect, evaluate the content from all responses qualitatively based on accuracy, depth, clarity, and relevance.\n" +
	"Select the best content for each aspect (which may combine elements from multiple responses if beneficial, " +
	"but prefer the strongest single source).\n" +
	"Output a structured response with each aspect as a heading, followed by the selected best content.\n" +
	"Finally, provide a brief rationale for your selections."

const finalizerInstruction = "You are a final editor. Take the voted aspects and combine them into a single, " +
	"coherent, comprehensive response. Ensure it flows naturally, addresses the conversation fully, " +
	"and maintains high quality."

// VoteInstruction asks a voter for a single candidate number in [1, n].
func VoteInstruction(n int) string {
	return fmt.Sprintf("You are a voter. Read the %d numbered candidate responses and decide which one best "+
		"answers the conversation. Reply with only the number of your choice, an integer from 1 to %d, "+
		"and nothing else.", n, n)
}

// numbered renders candidates as "<label> i:\n<text>" blocks separated by blank lines.
func numbered(label string, candidates []Candidate) string {
	blocks := make([]string, len(candidates))
	for i, c := range candidates {
		blocks[i] = fmt.Sprintf("%s %d:\n%s", label, i+1, c.Text)
	}
	return strings.Join(blocks, "\n\n")
}
