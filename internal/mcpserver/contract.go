package mcpserver

// PostFormatContract describes the Markdown post format accepted by
// import_draft and produced by read_post.
const PostFormatContract = `# Postdesk Post Format Contract

Posts are exchanged as Markdown with a YAML frontmatter block.

## Structure

` + "```" + `markdown
---
title: Human-readable title         # REQUIRED - 3 to 100 characters
category: Announcements             # OPTIONAL
tags:                               # OPTIONAL - YAML list or comma-separated string
  - launch
  - product
publishTiming: draft                # OPTIONAL - now | schedule | draft (default draft)
scheduledDate: 2026-11-01T10:00     # REQUIRED when publishTiming is schedule
visibility: all                     # OPTIONAL - all | paid (default all)
seoTitle: Search title              # OPTIONAL
seoDescription: Search snippet      # OPTIONAL
---

Body text in standard Markdown, at least 10 characters.
` + "```" + `

## Rules

1. **Frontmatter comes first.** The ` + "`---`" + ` fences must open the document.
2. **` + "`title`" + ` is required.** Without it the first ` + "`# heading`" + ` of the body is used.
   A leading heading equal to the title is dropped from the imported content.
3. **Tags** are plain words. Inline ` + "`#hashtags`" + ` in the body are collected too.
   Duplicates are ignored and order is kept.
4. **Unknown values** for ` + "`publishTiming`" + ` or ` + "`visibility`" + ` fall back to the defaults.
5. **Exports** carry read-only keys (` + "`id`" + `, ` + "`status`" + `, ` + "`author`" + `, ` + "`createdAt`" + `,
   ` + "`publishedAt`" + `). They are ignored on import.
6. **Encoding** is UTF-8 with a trailing newline.

## Cover images

- Attach a cover with the ` + "`set_draft_cover`" + ` tool (http(s) URL or base64 data URI).
- Supported formats: png, jpg, jpeg, gif, webp.
- Covers are stored inline as data URLs and must stay below the configured size limit.

## Example

` + "```" + `markdown
---
title: Launch week recap
category: Announcements
tags: [launch, recap]
publishTiming: schedule
scheduledDate: 2026-11-02T09:00
visibility: paid
---

Five days, five releases. Here is everything we shipped.
` + "```" + `
`
