package llm

import "strings"

const TEMPLATE_PARSER_PROMPT = `You are a document template parser.

Your task is to convert any given pharmaceutical or tender-based document template into a JSON schema with:
- Field metadata (id, label, type, generative)
- A templateString using {placeholders} where data goes

Detect dynamic fields such as:
- Underlines (_________), placeholders ([Date], [Deviation 1])
- Table headers with repeating data (e.g., Brand Name, Generic Name, Pack Size)

If you see a table-like structure, define it as:
"type": "array of objects" and include its "itemSchema"

OUTPUT FORMAT:
{
  "name": "<Template Name>",
  "fields": [
    {"id": "<field_id>", "label": "<Field Label>", "type": "<field type>", "generative": false}
  ],
  "templateString": "..."
}

Every field id must be unique and must appear in templateString as {field_id}.

Field Types:
{{FIELD_TYPES}}

Only return JSON. Do NOT wrap in ` + "```json" + `.

---

Document Template:

{{TEMPLATE_TEXT}}

---
`

var promptFieldTypes = []string{"string", "date", "array of objects"}

func RenderTemplate(tpl string, vars map[string]string) string {
	rendered := tpl
	for k, v := range vars {
		rendered = strings.ReplaceAll(rendered, "{{"+k+"}}", v)
	}
	return rendered
}

// BuildPrompt embeds the extracted template text verbatim after the task
// instructions. The output depends only on templateText.
func BuildPrompt(templateText string) string {
	types := make([]string, 0, len(promptFieldTypes))
	for _, t := range promptFieldTypes {
		types = append(types, "- "+t)
	}
	// TEMPLATE_TEXT goes last so text resembling a variable is never expanded.
	withTypes := RenderTemplate(TEMPLATE_PARSER_PROMPT, map[string]string{"FIELD_TYPES": strings.Join(types, "\n")})
	return RenderTemplate(withTypes, map[string]string{"TEMPLATE_TEXT": templateText})
}
