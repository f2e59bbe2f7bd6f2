// Package parser extracts structured classification fields from raw model
// output. The grammars are deliberately narrow: anchored sentinel markers
// over prose-adjacent text, with every extraction independently guarded so a
// missing marker degrades to an explicit malformed result instead of an
// error. Parse failures are values here, never returned errors — model
// output is adversarial-by-default input that must always be representable.
package parser

import (
	"regexp"
	"strings"
)

const (
	// Sentinel marks a structured, parseable model response.
	Sentinel = "CGPT587"

	// RequerySentinel marks a model request to re-run candidate retrieval
	// with updated information before continuing.
	RequerySentinel = "CGPT-REQUERY:"

	// ErrorMarker fills string fields that could not be extracted.
	ErrorMarker = "ERROR"

	// ErrorConfidence fills the confidence field on extraction failure.
	ErrorConfidence = -1
)

// Kind tags a classification parse outcome.
type Kind string

const (
	// KindTerminal is a complete classification.
	KindTerminal Kind = "terminal"
	// KindRequery is a model-signaled request to re-retrieve candidates.
	KindRequery Kind = "requery"
	// KindMalformed is a sentinel-bearing response that failed extraction.
	KindMalformed Kind = "malformed"
	// KindNoMatch is a response with no sentinel: the model declined to
	// produce a structured classification.
	KindNoMatch Kind = "no_match"
)

// ClassificationResult is the tagged outcome of parsing a classify- or
// followup-variant response. Fields beyond Kind and RawText are only
// meaningful for KindTerminal; a malformed result carries ErrorMarker in
// every string field and ErrorConfidence, never a partial extraction.
type ClassificationResult struct {
	Kind          Kind   `json:"kind"`
	Code          string `json:"soc_code"`
	Description   string `json:"soc_description"`
	Confidence    int    `json:"confidence"`
	NeedsFollowup bool   `json:"needs_followup"`
	RawText       string `json:"raw_text"`
}

// AdjudicationResult holds the reconciled decision extracted from an
// adjudicate-variant response.
type AdjudicationResult struct {
	Code          string `json:"soc_code"`
	Description   string `json:"soc_description"`
	Justification string `json:"justification"`
	Hypothesis    string `json:"hypothesis"`
	RawText       string `json:"raw_text"`
}

var (
	codePattern       = regexp.MustCompile(`\b(\d{4})\b`)
	confidencePattern = regexp.MustCompile(`CONFIDENCE:\s*(\d+)`)
	followupPattern   = regexp.MustCompile(`FOLLOWUP:\s*(TRUE|FALSE)`)
	intPattern        = regexp.MustCompile(`^\d+$`)
	// trailingConfidencePattern bounds the followup-variant description:
	// the last parenthesized integer is the confidence.
	trailingConfidencePattern = regexp.MustCompile(`\((\d+)\)\s*$`)
)

// ParseClassify parses a classify-variant response. The text must begin with
// the sentinel; the grammar is
//
//	CGPT587: <4-digit code> - <description>; CONFIDENCE: <int>; FOLLOWUP: <TRUE|FALSE>
//
// Absence of the sentinel yields KindNoMatch. Presence of the sentinel with
// any extraction failure yields KindMalformed.
func ParseClassify(raw string) ClassificationResult {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, Sentinel) {
		return ClassificationResult{Kind: KindNoMatch, RawText: raw}
	}

	body := strings.TrimSpace(strings.TrimPrefix(trimmed, Sentinel))
	body = strings.TrimSpace(strings.TrimPrefix(body, ":"))

	codeLoc := codePattern.FindStringSubmatchIndex(body)
	confLoc := confidencePattern.FindStringSubmatchIndex(body)
	followupMatch := followupPattern.FindStringSubmatch(body)
	if codeLoc == nil || confLoc == nil || followupMatch == nil {
		return malformedClassification(raw)
	}
	// The code must precede the CONFIDENCE marker; otherwise the 4-digit
	// match came from inside some other span.
	if codeLoc[3] > confLoc[0] {
		return malformedClassification(raw)
	}

	code := body[codeLoc[2]:codeLoc[3]]
	confidence, ok := parseConfidence(body[confLoc[2]:confLoc[3]])
	if !ok {
		return malformedClassification(raw)
	}

	description := trimDescription(body[codeLoc[3]:confLoc[0]])
	if description == "" {
		return malformedClassification(raw)
	}

	return ClassificationResult{
		Kind:          KindTerminal,
		Code:          code,
		Description:   description,
		Confidence:    confidence,
		NeedsFollowup: followupMatch[1] == "TRUE",
		RawText:       raw,
	}
}

// ParseFollowup parses a followup-variant response. A requery sentinel
// anywhere yields KindRequery with the text after the sentinel surfaced;
// otherwise a classification sentinel anywhere extracts
//
//	... CGPT587: <4-digit code> - <description> (<confidence>)
//
// Text with neither sentinel yields KindNoMatch.
func ParseFollowup(raw string) ClassificationResult {
	if idx := strings.Index(raw, RequerySentinel); idx >= 0 {
		surfaced := strings.TrimSpace(raw[idx+len(RequerySentinel):])
		return ClassificationResult{Kind: KindRequery, RawText: surfaced}
	}

	idx := strings.Index(raw, Sentinel)
	if idx < 0 {
		return ClassificationResult{Kind: KindNoMatch, RawText: raw}
	}

	body := strings.TrimSpace(raw[idx+len(Sentinel):])
	body = strings.TrimSpace(strings.TrimPrefix(body, ":"))

	confLoc := trailingConfidencePattern.FindStringSubmatchIndex(body)
	if confLoc == nil {
		return malformedClassification(raw)
	}
	confidence, ok := parseConfidence(body[confLoc[2]:confLoc[3]])
	if !ok {
		return malformedClassification(raw)
	}

	head := body[:confLoc[0]]
	codeLoc := codePattern.FindStringSubmatchIndex(head)
	if codeLoc == nil {
		return malformedClassification(raw)
	}

	description := trimDescription(head[codeLoc[3]:])
	if description == "" {
		return malformedClassification(raw)
	}

	return ClassificationResult{
		Kind:        KindTerminal,
		Code:        head[codeLoc[2]:codeLoc[3]],
		Description: description,
		Confidence:  confidence,
		RawText:     raw,
	}
}

// ParseAdjudicate parses an adjudicate-variant response:
//
//	CGPT587: <code> - <description> JUSTIFICATION: ... HYPOTHESIS: ... CODERS: ...
//
// Markers appear in fixed order; any extraction failure (including a missing
// sentinel) yields an all-error-marker result.
func ParseAdjudicate(raw string) AdjudicationResult {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, Sentinel) {
		return malformedAdjudication(raw)
	}

	body := strings.TrimSpace(strings.TrimPrefix(trimmed, Sentinel))
	body = strings.TrimSpace(strings.TrimPrefix(body, ":"))

	justIdx := strings.Index(body, "JUSTIFICATION:")
	hypIdx := strings.Index(body, "HYPOTHESIS:")
	codersIdx := strings.Index(body, "CODERS:")
	if justIdx < 0 || hypIdx < justIdx || codersIdx < hypIdx {
		return malformedAdjudication(raw)
	}

	head := body[:justIdx]
	codeLoc := codePattern.FindStringSubmatchIndex(head)
	if codeLoc == nil {
		return malformedAdjudication(raw)
	}

	description := trimDescription(head[codeLoc[3]:])
	justification := strings.TrimSpace(body[justIdx+len("JUSTIFICATION:") : hypIdx])
	hypothesis := strings.TrimSpace(body[hypIdx+len("HYPOTHESIS:") : codersIdx])
	if description == "" || justification == "" || hypothesis == "" {
		return malformedAdjudication(raw)
	}

	return AdjudicationResult{
		Code:          head[codeLoc[2]:codeLoc[3]],
		Description:   description,
		Justification: justification,
		Hypothesis:    hypothesis,
		RawText:       raw,
	}
}

// IsMalformed reports whether an adjudication result carries error markers.
func (r AdjudicationResult) IsMalformed() bool {
	return r.Code == ErrorMarker
}

func malformedClassification(raw string) ClassificationResult {
	return ClassificationResult{
		Kind:        KindMalformed,
		Code:        ErrorMarker,
		Description: ErrorMarker,
		Confidence:  ErrorConfidence,
		RawText:     raw,
	}
}

func malformedAdjudication(raw string) AdjudicationResult {
	return AdjudicationResult{
		Code:          ErrorMarker,
		Description:   ErrorMarker,
		Justification: ErrorMarker,
		Hypothesis:    ErrorMarker,
		RawText:       raw,
	}
}

func parseConfidence(s string) (int, bool) {
	if !intPattern.MatchString(s) {
		return 0, false
	}
	// The model controls the numeric range; downstream consumers must
	// tolerate out-of-range values, so no clamping happens here.
	n := 0
	for _, d := range s {
		n = n*10 + int(d-'0')
		if n > 1_000_000 {
			return 0, false
		}
	}
	return n, true
}

// trimDescription strips the separators that bound a description span.
func trimDescription(s string) string {
	return strings.Trim(strings.TrimSpace(s), "-–:;, \t\n")
}
