package descriptions

import "sort"

// Long-form tool descriptions with practical examples and workflows

const (
	// Discovery Tools
	FormListTemplatesDescription = `List the fill templates available on this server, optionally filtered by a search query.

**When to use:** Before rendering anything, to find the template id of the form you want to fill.

**Why it's useful:** Each template bundles a fillable PDF, a rule table that maps questionnaire answers onto its widgets, and optional widget geometry. The template id is the handle every other tool takes.

**Examples:**
• Browse everything: "List all templates"
• Find a tax form: "List templates matching 'w-9'"
• Search descriptions: "Which templates mention 'employment eligibility'?"

**Common workflows:**
1. Discovery: form_list_templates → form_template_fields → form_resolve → form_render
2. Catalog audit: form_list_templates → form_template_fields for each id → check unknown_targets

**Best practices:** The query matches the id, title and description case-insensitively; leave it empty to list every template.`

	FormTemplateFieldsDescription = `List the fillable fields of a template's PDF, with their kind, export states and pages.

**When to use:** To see what a template's document can hold, or to check a rule table against the document.

**Why it's useful:** Button fields report their export states (on_values), which are the values a checkbox or radio rule must produce. unknown_targets lists rule targets that no field will receive, even after leaf-name matching.

**Examples:**
• Inspect a form: "What fields does template w9 have?"
• Debug a mapping: "Why is the SSN not filled on template w9?" → look for the SSN fields in unknown_targets

**Common workflows:**
1. Mapping authoring: form_template_fields → write mapping.json → form_resolve with sample data
2. Troubleshooting: form_render shows unmatched keys → form_template_fields to find the real field names

**Best practices:** Field names are fully qualified with '.' separators; rules may target either the qualified name or the leaf name.`

	FormTemplateSchemaDescription = `Return the widget schema of a template: every field's kind, export states and rectangles per page.

**When to use:** When you need widget geometry, for example to place a drawn signature or to check which rectangle belongs to which field.

**Why it's useful:** Some forms draw one rectangle on a parent field and leave the children without geometry. With normalize set, rectangles of such containers are handed down to their children when the counts match exactly.

**Examples:**
• Raw geometry: "Get the schema of template w9"
• Normalized geometry: "Get the normalized schema of template w9 so every SSN digit box has a rect"

**Common workflows:**
1. Signature placement: form_template_schema → pick the signature field rect → add a signature rule
2. Layout review: form_template_schema with normalize → compare with the labeled PDF from the CLI

**Best practices:** The schema comes from the template's schema.json when present, otherwise it is read from the PDF itself; the source field says which.`

	// Filling Tools
	FormResolveDescription = `Resolve questionnaire answers into PDF field values without writing a document (dry run).

**When to use:** To preview exactly which fields a set of answers will fill, and with which values, before rendering.

**Why it's useful:** The rule table supports direct copies, fan-out, checkboxes, radio buttons and groups, digit splitting, comma spreading, value-to-checkbox maps, drawn signatures and SSN/EIN splitting. Answers that do not fit a rule never fail the request; they leave that rule's fields untouched and show up as warnings.

**Examples:**
• Preview: "Resolve {\"full_name\": \"Ada Lovelace\", \"tin\": \"123-45-6789\"} against template w9"
• Debug a checkbox: "Resolve {\"agree\": true} against template consent and show the values"

**Common workflows:**
1. Mapping authoring: edit mapping.json → form_resolve → inspect values and warnings → repeat
2. Safe filling: form_resolve → confirm values with the user → form_render

**Best practices:** Answers missing from the data are skipped and write nothing, so partial data never clears a field.`

	FormRenderDescription = `Fill a template's PDF with questionnaire answers and write the result to the output directory.

**When to use:** To produce the filled document.

**Why it's useful:** Runs the full pipeline: resolve answers through the rule table, match field names against the document (falling back to leaf names), write text and button values, stamp drawn signature images, and save the PDF under a unique name.

**Examples:**
• Fill a form: "Render template w9 with {\"full_name\": \"Ada Lovelace\", \"tin\": \"123456789\", \"signature\": \"data:image/png;base64,...\"}"

**Common workflows:**
1. Questionnaire to PDF: form_list_templates → form_render → return the path to the user
2. Verified filling: form_resolve → review → form_render

**Best practices:** Check 'unmatched' and 'warnings' in the response; they name every value that did not reach the document and why.`

	// Server Information
	FormServerInfoDescription = `Get server configuration, available tools, templates and usage guidance.

**When to use:** At the start of a session, to learn where templates live, where output goes and which templates exist.

**Why it's useful:** Gives one overview of the server's capabilities and limits, including the signature image formats that can be stamped.

**Examples:**
• Orientation: "What can this form filling server do?"

**Common workflows:**
1. Session start: form_server_info → form_list_templates → form_render

**Best practices:** Call once per session; the template list in the response is capped for large template directories.`
)

// ToolDescriptions maps tool names to their long-form descriptions
var ToolDescriptions = map[string]string{
	"form_list_templates":  FormListTemplatesDescription,
	"form_template_fields": FormTemplateFieldsDescription,
	"form_template_schema": FormTemplateSchemaDescription,
	"form_resolve":         FormResolveDescription,
	"form_render":          FormRenderDescription,
	"form_server_info":     FormServerInfoDescription,
}

// GetToolDescription returns the long-form description for a tool
func GetToolDescription(toolName string) string {
	if desc, exists := ToolDescriptions[toolName]; exists {
		return desc
	}
	return "Tool description not available"
}

// GetAllToolNames returns the sorted names of all described tools
func GetAllToolNames() []string {
	names := make([]string, 0, len(ToolDescriptions))
	for name := range ToolDescriptions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
