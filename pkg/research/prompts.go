package research

import (
	"fmt"
	"strings"
	"time"
)

// SystemPrompt is shared by every generation call.
func SystemPrompt(now time.Time) string {
	return fmt.Sprintf(`You are an expert researcher. Today is %s. Follow these instructions when responding:
  - You may be asked to research subjects that is after your knowledge cutoff, assume the user is right when presented with news.
  - The user is a highly experienced analyst, no need to simplify it, be as detailed as possible and make sure your response is correct.
  - Be highly organized.
  - Suggest solutions that I didn't think about.
  - Be proactive and anticipate my needs.
  - Treat me as an expert in all subject matter.
  - Mistakes erode my trust, so be accurate and thorough.
  - Provide detailed explanations, I'm comfortable with lots of detail.
  - Value good arguments over authorities, the source is irrelevant.
  - Consider new technologies and contrarian ideas, not just the conventional wisdom.
  - You may use high levels of speculation or prediction, just flag it for me.`, now.Format(time.RFC3339))
}

func queriesPrompt(query string, numQueries int, learnings []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Given the following prompt from the user, generate a list of SERP queries to research the topic. "+
		"Return a maximum of %d queries, but feel free to return less if the original prompt is clear. "+
		"Make sure each query is unique and not similar to each other: <prompt>%s</prompt>\n\n", numQueries, query)
	if len(learnings) > 0 {
		fmt.Fprintf(&sb, "Here are some learnings from previous research, use them to generate more specific queries: %s",
			strings.Join(learnings, "\n"))
	}
	return sb.String()
}

func learningsPrompt(query string, contents []string, numLearnings int) string {
	wrapped := make([]string, 0, len(contents))
	for _, c := range contents {
		wrapped = append(wrapped, "<content>\n"+c+"\n</content>")
	}
	return fmt.Sprintf("Given the following contents from a SERP search for the query <query>%s</query>, generate a list of learnings from the contents. "+
		"Return a maximum of %d learnings, but feel free to return less if the contents are clear. "+
		"Make sure each learning is unique and not similar to each other. "+
		"The learnings should be concise and to the point, as detailed and information dense as possible. "+
		"Make sure to include any entities like people, places, companies, products, things, etc in the learnings, as well as any exact metrics, numbers, or dates. "+
		"The learnings will be used to research the topic further.\n\n<contents>%s</contents>",
		query, numLearnings, strings.Join(wrapped, "\n"))
}

func reportPrompt(prompt, learnings string) string {
	return fmt.Sprintf("Given the following prompt from the user, write a final report on the topic using the learnings from research. "+
		"Make it as as detailed as possible, aim for 3 or more pages, include ALL the learnings from research:\n\n"+
		"<prompt>%s</prompt>\n\nHere are all the learnings from previous research:\n\n<learnings>\n%s\n</learnings>", prompt, learnings)
}

func answerPrompt(prompt, learnings string) string {
	return fmt.Sprintf("Given the following prompt from the user, write a final report on the topic using the learnings from research. "+
		"Follow the format specified in the prompt. Do not yap or babble or include any other text than the answer besides the format specified in the prompt. "+
		"Keep the answer as concise as possible - usually it should be just a few words or maximum a sentence. "+
		"Try to follow the format specified in the prompt (for example, if the prompt is using Latex, the answer should be in Latex. "+
		"If the prompt gives multiple answer choices, the answer should be one of the choices).\n\n"+
		"<prompt>%s</prompt>\n\nHere are all the learnings from research on the topic that you can use to help answer the prompt:\n\n<learnings>\n%s\n</learnings>", prompt, learnings)
}

func feedbackPrompt(query string, numQuestions int) string {
	return fmt.Sprintf("Given the following query from the user, ask some follow up questions to clarify the research direction. "+
		"Return a maximum of %d questions, but feel free to return less if the original query is clear: <query>%s</query>", numQuestions, query)
}

// nextQuery builds the prompt for the level below a branch.
func nextQuery(goal string, followUps []string) string {
	var sb strings.Builder
	sb.WriteString("Previous research goal: ")
	sb.WriteString(goal)
	sb.WriteString("\nFollow-up research directions: ")
	for _, q := range followUps {
		sb.WriteString("\n")
		sb.WriteString(q)
	}
	return strings.TrimSpace(sb.String())
}

func wrapLearnings(learnings []string) string {
	parts := make([]string, 0, len(learnings))
	for _, l := range learnings {
		parts = append(parts, "<learning>\n"+l+"\n</learning>")
	}
	return strings.Join(parts, "\n")
}
