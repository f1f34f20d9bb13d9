package ai

import (
	"strings"
)

// Context labels returned by DetectContext.
const (
	ContextMeeting  = "meeting"
	ContextLecture  = "lecture"
	ContextThinking = "thinking"
)

var meetingKeywords = []string{
	"meeting", "project", "deadline", "report", "client", "customer",
	"team", "agree", "approve", "decision", "task", "action item",
	"follow up", "schedule", "budget", "release",
	"họp", "dự án", "báo cáo", "khách hàng", "thống nhất", "công việc",
}

var lectureKeywords = []string{
	"lecture", "chapter", "example", "definition", "concept",
	"theory", "lesson", "explain", "students", "homework", "method",
	"bài giảng", "chương", "ví dụ", "định nghĩa", "khái niệm",
}

// DetectContext classifies a transcript with keyword counts.
// Returns: "meeting", "lecture", or "thinking"
func DetectContext(transcript string) string {
	transcript = strings.ToLower(transcript)

	meetingCount := countMatches(transcript, meetingKeywords)
	lectureCount := countMatches(transcript, lectureKeywords)

	if meetingCount > 0 && meetingCount >= lectureCount {
		return ContextMeeting
	}
	if lectureCount > 0 {
		return ContextLecture
	}
	return ContextThinking
}

func countMatches(text string, keywords []string) int {
	n := 0
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			n++
		}
	}
	return n
}
