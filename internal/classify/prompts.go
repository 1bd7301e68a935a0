package classify

// 文档分析提示词，要求固定的键值对输出格式
const documentAnalysisPrompt = `You are a helpful assistant analyzing a document. Your output should have exactly the following format:

---
TITLE: <a short title>
SUGGESTED_PATH: <where the document should be filed>
CONFIDENCE: <confidence in the suggested path on a scale of 1 (lowest) to 10 (highest)>
YEAR: <the year the document is about>
DATE: <the date the document was created or sent>
ENTITY: <the entity the document is about>
SUMMARY: <a short summary of the document, not more than 100 words>
---

Some specific guidelines:
- Title is a short title of the document, not more than 10 words.
- The year is the year the document is about, which may be different from the year in the date. For a tax document, it is the tax year.
- Entity is often the name of the company or organization the document is from or to. For a bank statement, it is the bank's name.
- Summary is a short summary of the document, not more than 100 words.
- Suggested path is the most important part of the output. It is where the document should be filed.

MOST IMPORTANT: Make sure the suggested path is a valid path in the layout below! Do not invent paths that are not in the layout.

The layout description for the document store follow after this line.
---
`

// 机构名称比对提示词
const compareNamesPrompt = `You are a helpful assistant that identifies if two company or organization names refer to the same entity.

Compare these two names:
1. "%s"
2. "%s"

Consider that:
- Different capitalizations (e.g., "Chase" vs "CHASE") are the same
- Abbreviations vs full names (e.g., "JP Morgan" vs "JPMorgan Chase") are the same
- Minor punctuation differences (e.g., "J.P. Morgan" vs "JP Morgan") are the same
- Parent/subsidiary relationships where the name is essentially the same are matches

Respond with EXACTLY one word: MATCH or NO_MATCH
`

// 目录名去重检测提示词
const duplicateDetectionPrompt = `You are analyzing a list of company folder names to find duplicates.
These folders are meant to store documents from different companies, but sometimes the same company
has been filed under different names (e.g., "Chase Bank" and "Chase", or "Goldman Sachs" and "GS").

Your task is to find EXACTLY ONE pair of folder names that likely refer to the same company.

Rules:
- Only identify folders that clearly refer to the SAME company (not related companies or subsidiaries)
- If you find multiple potential duplicates, return only the MOST OBVIOUS one
- If no duplicates exist, return "None"

You MUST respond in EXACTLY this format (no other text):
DUPLICATE: FolderA | FolderB

Or if no duplicates:
DUPLICATE: None

Here are the folder names to analyze:
`

// 新目录名匹配已有目录提示词
const folderMatchPrompt = `You are checking if a new company folder name should use an existing folder instead.

New folder name: "%s"

Existing folders in this directory:
%s

Determine if the new name is a SPELLING VARIATION of any existing folder (same company, different formatting).

MATCH examples (same company, different spelling/format):
- "JPMorgan" matches "J.P. Morgan" or "JP Morgan Chase"
- "ATT" matches "AT&T"
- "GS" matches "Goldman Sachs"
- "Citi" matches "Citibank" or "Citigroup"
- "Dr Jones" matches "Dr. Jones" or "Jones M.D." or "Bob Jones, Doctor of Pediatrics" (you can assume last names are unique and can be used to identify the company)

NO MATCH examples (different companies or intentionally separate):
- "Chase Bank" does NOT match "Wells Fargo" (different companies)
- "Bank of America" does NOT match "American Bank" (different companies despite similar words)
- If BOTH "Chase" AND "JPMorgan" exist as separate folders, a new "JPMorgan Chase" should NOT match either (the user has chosen to keep them separate)

Respond with EXACTLY one line:
MATCH: <exact existing folder name from the list>
or
NO_MATCH
`
