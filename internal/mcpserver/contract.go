package mcpserver

// DocumentFormatContract describes the canonical spec document format
// that LLM consumers should follow when saving documents.
const DocumentFormatContract = `# Specbook Document Format

Every Markdown document in a spec workspace follows this structure.

## Layout

` + "```" + `
<root>/
  specs/
    001-feature-name/       # numbered feature folder
      spec.md               # the feature specification
      plan.md               # implementation plan
      tasks.md              # task checklist
      research.md, data-model.md, quickstart.md, contracts/*.md
  .specify/memory/          # project memory (constitution.md, ...)
  CLAUDE.md, AGENTS.md      # agent guidance files
` + "```" + `

## Frontmatter

` + "```" + `markdown
---
status: draft
title: Optional explicit title
---

# Feature name

Body in standard Markdown.
` + "```" + `

Rules:

1. Frontmatter is optional. A document without it is still valid; its
   status is reported as "unknown".
2. ` + "`" + `status` + "`" + ` is one of: draft, in-review, approved, implementing,
   complete. Case and underscore/hyphen variants are normalized; anything
   else is reported as "unknown" with a diagnostic.
3. The title comes from the frontmatter ` + "`" + `title` + "`" + ` field, or
   from the first H1 heading when absent.
4. Task lines in tasks.md use GitHub checkboxes: ` + "`" + `- [ ]` + "`" + `
   open, ` + "`" + `- [x]` + "`" + ` done. Completion is counted from them.
5. File paths end with ` + "`" + `.md` + "`" + ` and use forward slashes,
   relative to the workspace root (e.g. ` + "`" + `specs/001-auth/spec.md` + "`" + `).

## Saving

Every save carries the ` + "`" + `expected_version` + "`" + ` you last read. A
stale version is rejected with the current content and version so you can
re-read, merge, and retry. Never retry with a guessed version.
`
