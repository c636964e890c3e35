// Package biz 实现 docqa 的业务流程：对话路由、检索、元数据抽取与摄取流水线。
package biz

import "strings"

// 路由提示词只允许回复两个标签之一。
const decidePrompt = `You are a routing assistant for a legal document question-answering service.

Classify the user's request into exactly one of two labels:
- qna: the user asks a question that should be answered from specific passages.
- summarize: the user asks for a summary, overview, or digest of a document or case.

Reply with the single label only, in lowercase, with no punctuation or explanation.

User request:
{{question}}`

const qnaPrompt = `You are a careful legal research assistant. Answer the question using only the context below.

Rules:
- Cite every factual statement with the matching [CIT:n] marker from the context.
- If the context does not contain the answer, say that you are not sure based on the available information.
- Do not invent case names, dates, or holdings.

Context:
{{context}}

Question:
{{question}}

Answer:`

const summaryPrompt = `You are a legal analyst. Write a clear, well-structured summary that addresses the user's request using only the context below.

Cover, when present: the parties, the court and bench, the key issues, the reasoning, and the final decision.
If the context is insufficient, say so plainly instead of guessing.

User request:
{{text}}

Context:
{{context}}

Summary:`

const metadataSystemPrompt = "You are an expert legal document analyst. Extract structured metadata and return valid JSON only."

const metadataPrompt = `You are an expert legal document analyst.

Extract the following structured metadata from the provided legal document text. Return ONLY valid JSON matching the exact schema below. Do not include any explanatory text or markdown formatting, only the JSON object.

Important: All fields should be strings (not arrays or objects). For multiple values (like multiple parties or issues), combine them into a single comma-separated string.

Schema:
{{schema}}

Document Text:
{{text}}

Return the extracted metadata as a JSON object matching the schema exactly. All values must be strings.`

// render 替换模板中的 {{key}} 占位符。
func render(tmpl string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
