package classifier

// DefaultTopics is the topic vocabulary used when the active agent does not
// configure one.
var DefaultTopics = []string{
	"precios",
	"horarios",
	"clases",
	"inscripcion",
	"clase_de_prueba",
	"ubicacion",
	"instructores",
	"ninos",
	"competencias",
	"equipamiento",
	"otro",
}

const classificationPrompt = `You are an analyst reviewing sales-chat conversations between website visitors and the virtual assistant of a martial-arts gym.

Classify the conversation below. Respond with ONLY a JSON object matching this schema:
{
  "topics": ["string"],
  "intent": "info|pricing|schedule|booking|other",
  "quality": "high|medium|low|spam",
  "summary": "string",
  "flags": {
    "frustration_detected": true|false,
    "escalation_needed": true|false,
    "bug_reported": true|false,
    "resolved": true|false
  }
}

## Fields
- topics: every topic the visitor raised, chosen ONLY from this list: %s
- intent: the visitor's main goal
  - info: general questions about the gym, disciplines or facilities
  - pricing: fees, memberships, discounts
  - schedule: class times and availability
  - booking: wants to sign up, book a trial class or visit
  - other: anything else
- quality: how valuable the conversation is as a sales lead
  - high: clear interest and enough detail to follow up
  - medium: some interest, vague or incomplete
  - low: little interest, or the assistant failed to help
  - spam: abusive, automated or unrelated to the gym
- summary: one line describing what the visitor wanted and how it ended
- flags.frustration_detected: the visitor showed annoyance, impatience or repeated themselves
- flags.escalation_needed: a human from the gym should contact this visitor
- flags.bug_reported: the visitor reported something broken (website, payments, forms, the chat itself)
- flags.resolved: the visitor's question was fully answered

## Rules
- Judge only what is in the transcript. Do not invent details.
- Write the summary in the language of the conversation.
- Every field is required.

Transcript:
---
%s
---

Return ONLY the JSON object, no markdown fences or other text.`
