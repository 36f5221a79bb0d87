// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package agent

// Prompts for the four LLM agent capabilities. Each instructs the model
// to answer with a bare JSON object matching the response schema in
// llm.go; no prose outside the JSON is accepted.

const systemPrompt = `You are a financial document analysis system processing annual reports. You work only from the material you are given: never invent figures, and cite the segment ID of every piece of source material you use. Respond with a single JSON object and no text outside it.`

const extractPrompt = `Analyze the following annual report segments and extract findings grouped by topic.

Topics are short lowercase keys such as "revenue", "profitability", "liquidity", "debt", "cash_flow". Only emit a topic when the document supports it. For each topic list the supporting evidence:
- segment_id: the ID of the segment the evidence comes from (use the IDs exactly as given)
- excerpt: the supporting sentence or table row, verbatim

Example response:
{"topics": {"revenue": [{"segment_id": "t-003", "excerpt": "Revenue increased 12%% to $1,098.7 million."}]}}

Document segments:
%s
`

const summarizePrompt = `Write a summary of an annual report from the extracted findings below. For each topic produce one short paragraph of plain narrative grounded in the cited excerpts. List every segment ID you drew on under "citations".

Example response:
{"sections": {"revenue": "Revenue grew 12%% year over year, reaching $1,098.7 million."}, "citations": ["t-003"]}

Extracted findings:
%s
`

const critiquePrompt = `Review the draft summary below against its topic coverage. Report each problem as an issue:
- severity: "minor" (style, redundancy), "major" (missing or unsupported detail), or "critical" (wrong or fabricated figure)
- description: what is wrong and where
- topic: the affected topic key, or "" for draft-wide issues

Return {"issues": []} if the draft needs no changes.

Example response:
{"issues": [{"severity": "major", "description": "The liquidity section does not mention the current ratio present in the source tables.", "topic": "liquidity"}]}

Draft summary (version %d):
%s
`

const revisePrompt = `Revise the draft summary below to resolve the critique issues listed after it. Keep sections that have no issues unchanged. Do not add topics, and keep every statement grounded in the existing citations. Return the complete revised summary.

Example response:
{"sections": {"revenue": "Revenue grew 12%% year over year, reaching $1,098.7 million."}, "citations": ["t-003"]}

Draft summary (version %d):
%s

Critique issues:
%s
`
