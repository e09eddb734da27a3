package enrichment

const summarizeSystemPrompt = `You analyze transcripts and articles for a personal knowledge archive.
Respond with JSON only.`

const summarizeUserTemplate = `ANALYZE THE FOLLOWING TEXT:

"""
%s
"""

TASKS:
1. Create a concise, informative summary (max 3 sentences).
2. Extract 3-5 relevant hashtags that capture the main topics.
3. If the text contains a dialogue, mention the speaker roles in the summary.

RETURN ONLY JSON with this structure:
{"aiSummary": "summary text here", "tags": ["tag1", "tag2", "tag3"]}`

const extractSystemPrompt = `You read feeds and web pages and pick out individual updates worth archiving.
Respond with JSON only.`

const extractUserTemplate = `SOURCE: %s

INSTRUCTIONS FROM THE READER:
%s

Only include updates published within the last %d days. Skip anything older.
Return between %d and %d items. Use the exact item URL from the content. Use ISO-8601 dates.
If an item has no date, leave "date" empty.

CONTENT:
"""
%s
"""

RETURN ONLY JSON with this structure:
{"items": [{"title": "...", "url": "https://...", "date": "2024-05-01", "summary": "two sentences", "tags": ["tag"]}]}`
