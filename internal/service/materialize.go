package service

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nina/mediascout/internal/domain"
)

// emailPattern matches the common mailbox shapes that show up in result
// summaries. Deliberately conservative; a missed address is better than
// a mangled one.
var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// titleSeparators split a result title into its name part and the rest.
// "Jane Smith - Senior Tech Correspondent | Example News" style titles
// dominate journalist profile pages.
var titleSeparators = []string{" - ", " – ", " | ", ", "}

// defaultConfidence is assigned when the provider reported no relevance
// score for a result.
const defaultConfidence = 0.8

// Materializer turns raw web results into candidate contacts. The
// mapping is deterministic: the same results always produce the same
// candidates in the same order.
type Materializer struct{}

// NewMaterializer creates a Materializer.
func NewMaterializer() *Materializer {
	return &Materializer{}
}

// Materialize extracts one candidate per result that yields at least an
// email or a plausible name. Candidate IDs are stable within the job:
// they derive from the job id and the result's position.
//
// Parameters:
//   - job: the job whose merged results to process.
//
// Returns:
//   - []domain.CandidateContact: extracted candidates, result order.
func (m *Materializer) Materialize(job *domain.SearchJob) []domain.CandidateContact {
	candidates := make([]domain.CandidateContact, 0, len(job.Results))

	for i, res := range job.Results {
		email := firstEmail(res.Summary)
		name, title := splitTitle(res.Title)
		if email == "" && name == "" {
			continue
		}

		confidence := res.RelevanceScore
		if confidence <= 0 {
			confidence = defaultConfidence
		}

		candidates = append(candidates, domain.CandidateContact{
			ID:           fmt.Sprintf("%s-%d", job.ID, i),
			JobID:        job.ID,
			Name:         name,
			Email:        email,
			Title:        title,
			Company:      companyFromDomain(res.Domain),
			Confidence:   confidence,
			SourceURL:    res.URL,
			Verification: domain.VerificationPending,
		})
	}
	return candidates
}

// firstEmail returns the first email address found in the text.
func firstEmail(text string) string {
	return emailPattern.FindString(text)
}

// splitTitle pulls a person name and role out of a page title. The part
// before the first separator is the name if it looks like one (two to
// four capitalized words); the next segment becomes the role.
func splitTitle(title string) (name, role string) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", ""
	}

	for _, sep := range titleSeparators {
		if idx := strings.Index(title, sep); idx > 0 {
			head := strings.TrimSpace(title[:idx])
			rest := strings.TrimSpace(title[idx+len(sep):])
			if looksLikeName(head) {
				// Only the segment up to the next separator is the role.
				for _, s := range titleSeparators {
					if j := strings.Index(rest, s); j > 0 {
						rest = strings.TrimSpace(rest[:j])
						break
					}
				}
				return head, rest
			}
			return "", ""
		}
	}

	if looksLikeName(title) {
		return title, ""
	}
	return "", ""
}

// looksLikeName reports whether s resembles a person name: two to four
// words, each starting with an uppercase letter, no digits.
func looksLikeName(s string) bool {
	words := strings.Fields(s)
	if len(words) < 2 || len(words) > 4 {
		return false
	}
	for _, w := range words {
		r := rune(w[0])
		if r < 'A' || r > 'Z' {
			return false
		}
		if strings.ContainsAny(w, "0123456789") {
			return false
		}
	}
	return true
}

// companyFromDomain derives a display company name from a result's
// domain: the registrable label, capitalized. "reuters.com" -> "Reuters".
func companyFromDomain(domain string) string {
	if domain == "" {
		return ""
	}
	label := domain
	if idx := strings.Index(label, "."); idx > 0 {
		label = label[:idx]
	}
	if label == "" {
		return ""
	}
	return strings.ToUpper(label[:1]) + label[1:]
}
