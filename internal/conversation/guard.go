package conversation

import (
	"regexp"
	"strings"
)

// Verdict is the outcome of screening a patient question or a model reply.
type Verdict struct {
	Blocked bool
	Score   float64
	Reasons []string
	// Text is the cleaned input or output when it was not blocked.
	Text string
}

type guardSignal struct {
	re     *regexp.Regexp
	reason string
	weight float64
}

const questionBlockThreshold = 0.7

var questionSignals = []guardSignal{
	{regexp.MustCompile(`(?i)(ignore|disregard|forget)\s+(all\s+)?(previous|prior|above|earlier|your)\s+(instructions?|rules?|prompts?|guidelines?)`), "injection:ignore_instructions", 0.9},
	{regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an|my)\s+`), "injection:role_reassignment", 0.7},
	{regexp.MustCompile(`(?i)new\s+instructions?\s*:|system\s*prompt\s*:|<<\s*sys(tem)?\s*>>`), "injection:new_role", 0.9},
	{regexp.MustCompile(`(?i)(pretend|imagine|assume)\s+(that\s+)?you\s+(have|are|don'?t\s+have)\s+no\s+(rules?|restrictions?|limits?|guidelines?)`), "injection:pretend_no_rules", 0.9},
	{regexp.MustCompile(`(?i)jailbreak|DAN\s*mode|developer\s*mode|god\s*mode`), "injection:jailbreak_keyword", 0.9},
	{regexp.MustCompile(`(?i)(reveal|show|print|repeat|tell\s+me)\s+(your\s+)?(system\s+prompt|initial\s+prompt|hidden\s+prompt|instructions)`), "exfiltration:system_prompt", 0.8},
	{regexp.MustCompile(`(?i)(list|show|give|tell)\s+(me\s+)?(all\s+)?(the\s+)?other\s+patients?('?s)?\s+(names?|numbers?|records?|appointments?)`), "exfiltration:patient_data", 0.8},
	{regexp.MustCompile(`(?i)\b(api|secret|aws|database|db)\s*(key|token|password|credential)s?\b`), "exfiltration:credentials", 0.8},
	{regexp.MustCompile(`(?i)\[/?INST\]|<\|im_start\|>|<\|im_end\|>|<\|system\|>`), "context:special_tokens", 0.9},
	{regexp.MustCompile(`(?i)###\s*(system|instruction|assistant)\s*:`), "context:role_markers", 0.7},
	{regexp.MustCompile(`<\s*(script|iframe|object|embed)\b`), "obfuscation:html", 0.6},
}

// ScreenQuestion scores a patient message for prompt injection. Scores combine
// the strongest signal with a small bump for each additional one.
func ScreenQuestion(text string) Verdict {
	v := Verdict{Text: strings.TrimSpace(text)}
	if v.Text == "" {
		return v
	}
	var top float64
	for _, sig := range questionSignals {
		if !sig.re.MatchString(v.Text) {
			continue
		}
		v.Reasons = append(v.Reasons, sig.reason)
		if sig.weight > top {
			top = sig.weight
		}
	}
	if len(v.Reasons) == 0 {
		return v
	}
	v.Score = top + 0.1*float64(len(v.Reasons)-1)
	if v.Score > 1 {
		v.Score = 1
	}
	if v.Score >= questionBlockThreshold {
		v.Blocked = true
		v.Text = ""
		return v
	}
	v.Text = stripControlTokens(v.Text)
	return v
}

var controlTokens = regexp.MustCompile(`(?i)<\|[a-z_]+\|>|\[/?(INST|SYS)\]`)

func stripControlTokens(text string) string {
	return strings.TrimSpace(controlTokens.ReplaceAllString(text, ""))
}

type leakSignal struct {
	re     *regexp.Regexp
	reason string
}

var replyLeakSignals = []leakSignal{
	{regexp.MustCompile(`(?i)my (system\s+)?prompt\s+(is|says|tells)`), "leak:system_prompt"},
	{regexp.MustCompile(`(?i)(here are|these are)\s+(my )?(system )?(instructions|rules|guidelines)`), "leak:rules_listing"},
	{regexp.MustCompile(`(?i)(api[_\s]?key|secret[_\s]?key|access[_\s]?token|bearer\s+token)\s*[:=]\s*\S+`), "leak:credential"},
	{regexp.MustCompile(`AKIA[A-Z0-9]{16}`), "leak:aws_key"},
	{regexp.MustCompile(`(?i)(postgres|postgresql|redis)://\S+`), "leak:database_url"},
	{regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}:\d{2,5}\b`), "leak:ip_port"},
	{regexp.MustCompile(`(?i)other patient'?s?\s+(name|phone|email|appointment|record)`), "leak:other_patient"},
}

// ScreenReply checks a model answer for leaked configuration or patient data.
// Any match blocks the reply.
func ScreenReply(reply string) Verdict {
	v := Verdict{Text: strings.TrimSpace(reply)}
	for _, sig := range replyLeakSignals {
		if sig.re.MatchString(v.Text) {
			v.Reasons = append(v.Reasons, sig.reason)
		}
	}
	if len(v.Reasons) > 0 {
		v.Blocked = true
		v.Score = 1
		v.Text = ""
	}
	return v
}
