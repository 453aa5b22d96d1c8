package retrieval

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/hierctx/internal/hierarchy"
	"github.com/fyrsmithlabs/hierctx/internal/llm"
)

// NoResultAnswer is returned by Chat when nothing in scope matched.
const NoResultAnswer = "I couldn't find any relevant information in the knowledge base."

// Turn is one earlier question and its answer.
type Turn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// SystemPrompt instructs the model to answer from the assembled context.
func SystemPrompt(oc *OrderedContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a helpful assistant for %s. Answer the user's question using the context below.\n\n", oc.Scope.Company)
	b.WriteString("The context is organized from most to least specific:\n")
	b.WriteString("- " + Label(hierarchy.LevelEmployee) + ": about this employee\n")
	b.WriteString("- " + Label(hierarchy.LevelDepartment) + ": about the department\n")
	b.WriteString("- " + Label(hierarchy.LevelCompany) + ": about the company\n")
	b.WriteString("- " + Label(hierarchy.LevelGeneral) + ": shared by all companies\n\n")
	b.WriteString("When sections disagree, prefer the earlier, more specific one. ")
	b.WriteString("If the context does not contain the answer, say you don't know.\n\n")
	b.WriteString("Context:\n\n")
	b.WriteString(oc.Text())
	return b.String()
}

// Messages builds the conversation sent to the model: the system prompt,
// the earlier turns, then the question.
func Messages(oc *OrderedContext, history []Turn, question string) []llm.Message {
	msgs := make([]llm.Message, 0, 2+2*len(history))
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: SystemPrompt(oc)})
	for _, t := range history {
		msgs = append(msgs,
			llm.Message{Role: llm.RoleUser, Content: t.Question},
			llm.Message{Role: llm.RoleAssistant, Content: t.Answer},
		)
	}
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: question})
}
