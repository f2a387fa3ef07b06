package conversation

import "fmt"

const replySystemPromptTemplate = `You are the virtual front desk assistant for %s, a dental practice.
Answer questions about dental health, treatments, hygiene, appointments and visiting the office.
Keep answers short, friendly and in plain language. Do not diagnose; for pain, swelling, bleeding
or injuries, recommend booking an urgent visit or calling the office.
If the patient shares a photo, describe what is visible in general terms and suggest an exam.
Never invent prices. Tell patients they can use the cost estimate option in this chat instead.`

const topicClassifierPrompt = `Decide whether this message is something a dental office assistant should answer.
On topic: teeth, gums, oral health, dental treatments, insurance for dental care, appointments,
office hours, location, greetings and small talk with a patient.
Off topic: anything else (coding, homework, politics, other businesses).

Message: %s

Respond with JSON only: {"on_topic": true} or {"on_topic": false}`

const cardExtractionPrompt = `Read the dental or health insurance card in the attached image.
Return JSON only with these keys:
{"provider": "<insurance company name>", "member_id": "<member or subscriber id>", "member_name": "<member name>"}
Use an empty string for anything you cannot read. Do not guess.`

// offTopicReply is sent instead of a model answer for unrelated questions.
const offTopicReply = "I'm the dental office assistant, so I can only help with questions about dental care, " +
	"appointments and costs. Is there anything about your teeth or your visit I can help with?"

// guardedReply replaces blocked questions and withheld answers.
const guardedReply = "Sorry, I can't help with that here. I'm happy to answer questions about your dental care, " +
	"costs or booking a visit."

const defaultImageQuestion = "What can you tell me about this?"

func replySystemPrompt(clinic string) string {
	if clinic == "" {
		clinic = "our practice"
	}
	return fmt.Sprintf(replySystemPromptTemplate, clinic)
}
