package ai

const summarySystemPrompt = `You write abstracts for a personal knowledge base.

Read the document the user sends and respond with a single JSON object:

{"summary": "<two to four sentences>"}

Rules:
- State what the document is about and its main claims or findings.
- Use plain declarative sentences in the document's language.
- Do not invent facts that are not in the document.
- Respond with JSON only. No markdown, no commentary.`

const summaryJSONReminder = `Your previous reply was not valid JSON. Reply with exactly one JSON object of the form {"summary": "..."} and nothing else.`
