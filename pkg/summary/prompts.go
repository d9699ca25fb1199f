package summary

// SystemPrompt sets the analyst role for the summary call.
const SystemPrompt = `You are a highly skilled and meticulous environmental and financial analyst. Your task is to produce a concise and factual summary of a provided document. The summary must be neutral, **explicitly identify the contracting parties and the project title**, and focus on the key points requested. **The output must be strictly and factually based on the content provided.**
`

// UserPrompt is rendered with content and max_words.
const UserPrompt = `Analyze the following document and write a summary in english.

--- GOAL ---
Identify the REAL WORLD IMPACT of the project. Ignore bureaucratic procedures unless they are the main subject.

--- STRUCTURE & REQUIREMENTS ---
1. **Format**: Single paragraph, maximum {{.max_words}} words.
2. **OPENING (First Sentence)**: YOU MUST Start by identifying:
   - The **Contracting Parties (EXACT NAMES)** found on the first pages.
   - The **Project Title** (Extract it from the document text or cover page).
   - The **Total Financial Amount**.
3. **CORE CONTENT (Prioritize this)**:
   - **The "WHAT" & "WHO"**: What is the actual project? Who are the direct beneficiaries? (Focus on "Project Description", "Objectives").
   - **The "WHY"**: What specific social or environmental problem is this solving? (Drought, poverty, pollution?).
   - **The "HOW MUCH"**: Key quantitative targets and figures.
4. **DE-EMPHASIZE (Mention briefly only)**:
   - Administrative manuals (ESCP, SEP, LMP).
   - Standard legal clauses (audits, committees, effectiveness conditions).
   - Bureaucratic entities (Steering Committees, PIUs).

IMPORTANT: Write ONLY the summary paragraph in English. Do not include any introduction, meta-commentary, or phrases like "Here is a summary". Start directly with the content.

Document:
{{.content}}

Summary:
`

const confidenceSystemPrompt = `You are an expert evaluator. Output ONLY a valid JSON structure following the schema.`

const confidenceUserPrompt = `
Based on the original document and the summary provided below, assess the summary's faithfulness to the original text and its relevance to the goal (environmental analysis).

Output your assessment STRICTLY in the JSON format provided by the schema.

Summary to evaluate:
---
{{.summary_text}}
---
Format instructions:
{{.format_instructions}}`
