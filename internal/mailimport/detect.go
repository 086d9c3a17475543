package mailimport

import "strings"

type DetectResult struct {
	IsSchedule bool
	Score      float64
	Reason     string
}

var scheduleKeywords = []string{"смен", "график", "наряд", "задани", "shift", "schedule"}

const scheduleThreshold = 0.7

func DetectSchedule(subject, text string, attachmentNames []string) DetectResult {
	subject = strings.ToLower(subject)
	text = strings.ToLower(text)

	score := 0.0
	hasSheet := false
	for _, name := range attachmentNames {
		ln := strings.ToLower(name)
		if !isSpreadsheet(ln) {
			continue
		}
		if !hasSheet {
			score += 0.5
			hasSheet = true
		}
		if containsAny(ln, scheduleKeywords) {
			score += 0.2
			break
		}
	}
	if !hasSheet {
		return DetectResult{Reason: "no_spreadsheet"}
	}

	if containsAny(subject, scheduleKeywords) {
		score += 0.3
	}
	if containsAny(text, scheduleKeywords) {
		score += 0.1
	}
	if score > 1 {
		score = 1
	}

	if score >= scheduleThreshold {
		return DetectResult{IsSchedule: true, Score: score, Reason: "rules_positive"}
	}
	return DetectResult{Score: score, Reason: "rules_negative"}
}

func isSpreadsheet(name string) bool {
	return strings.HasSuffix(name, ".xlsx") || strings.HasSuffix(name, ".xlsm")
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
