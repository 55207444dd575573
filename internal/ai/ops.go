package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/sells-group/wrestlebot/internal/model"
)

// Operation names, used as cache namespaces and log fields.
const (
	OpVerify      = "verify"
	OpSummary     = "summary"
	OpBio         = "bio"
	OpDuplicates  = "duplicates"
	OpClassify    = "classify"
	OpCopyright   = "copyright"
	OpNationality = "nationality"
	OpDedupeCheck = "dedupe_check"
)

// Acceptance thresholds and output caps.
const (
	ClassifyMinConfidence    = 0.7
	NationalityMinConfidence = 0.8
	CopyrightFallbackLimit   = 100
	SummaryMaxChars          = 500
	BioMinChars              = 50
	BioMaxChars              = 5000
	dedupeSampleSize         = 30
	classifyExcerptChars     = 500
)

const verifySystem = "You are a wrestling data verification assistant. Check records for plausibility and internal consistency. Never invent facts."

// Verdict is the outcome of a plausibility check.
type Verdict struct {
	Valid      bool     `json:"valid"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
	Issues     []string `json:"issues,omitempty"`
	AIUsed     bool     `json:"ai_used"`
}

// VerifyFact checks whether the data describing a record of kind is
// plausible. When the gateway is unavailable the heuristic FallbackVerify
// result is returned with AIUsed false.
func (g *Gateway) VerifyFact(ctx context.Context, kind model.Kind, data map[string]any) Verdict {
	if !g.IsAvailable(ctx) {
		return FallbackVerify(kind, data)
	}
	prompt := fmt.Sprintf(`Verify this %s record for plausibility:
%s

Reply with JSON: {"valid": true/false, "confidence": 0.0-1.0, "issues": ["..."], "reasoning": "..."}`,
		kind, describe(data))

	out, err := g.call(ctx, Request{
		Prompt:      prompt,
		System:      verifySystem,
		JSON:        true,
		Temperature: 0.1,
		Operation:   OpVerify,
	}, g.lookupTTL)
	if err != nil {
		return Verdict{Valid: true, Confidence: 0.5, Reasoning: "AI verification unavailable"}
	}
	res, ok := parseObject(out)
	if !ok {
		return Verdict{Valid: true, Confidence: 0.5, Reasoning: "Could not parse AI response", AIUsed: true}
	}
	v := Verdict{Valid: true, Confidence: 0.7, Reasoning: "Verified by AI", AIUsed: true}
	if f := res.Get("valid"); f.Exists() {
		v.Valid = f.Bool()
	}
	if f := res.Get("confidence"); f.Exists() {
		v.Confidence = clamp01(f.Float())
	}
	if f := res.Get("reasoning"); f.String() != "" {
		v.Reasoning = f.String()
	}
	for _, issue := range res.Get("issues").Array() {
		if s := strings.TrimSpace(issue.String()); s != "" {
			v.Issues = append(v.Issues, s)
		}
	}
	return v
}

// GenerateSummary writes a short encyclopedic summary from the record's
// existing data. An empty string means nothing was generated.
func (g *Gateway) GenerateSummary(ctx context.Context, kind model.Kind, data map[string]any) string {
	prompt := fmt.Sprintf(`Write a neutral, factual summary (under 150 words) of this %s using only the data below. Do not add facts that are not listed.
%s`, kind, describe(data))

	out, err := g.call(ctx, Request{
		Prompt:      prompt,
		System:      verifySystem,
		Temperature: 0.3,
		MaxTokens:   300,
		Operation:   OpSummary,
	}, g.generatedTTL)
	if err != nil {
		return ""
	}
	return truncate(strings.TrimSpace(out), SummaryMaxChars)
}

// GenerateBio writes a two to three paragraph biography for a wrestler from
// its stored facts. Results of BioMinChars or fewer are discarded.
func (g *Gateway) GenerateBio(ctx context.Context, r *model.Record) string {
	var points []string
	add := func(label, value string) {
		if value = strings.TrimSpace(value); value != "" {
			points = append(points, "- "+label+": "+value)
		}
	}
	add("Ring name", r.Name)
	add("Real name", r.Text(model.FieldRealName))
	add("From", r.Text(model.FieldHometown))
	add("Nationality", r.Text(model.FieldNationality))
	add("Debuted", r.Text(model.FieldDebutYear))
	add("Retired", r.Text(model.FieldRetirementYear))
	add("Also known as", r.Text(model.FieldAliases))
	add("Signature moves", r.Text(model.FieldFinishers))
	if n := r.Related(model.RelPromotions); n > 0 {
		add("Promotions worked for", fmt.Sprintf("%d", n))
	}

	prompt := fmt.Sprintf(`Write a brief, professional wrestling biography (2-3 paragraphs) for %s using only these facts:
%s

Keep the tone encyclopedic. Do not speculate or add facts that are not listed.`, r.Name, strings.Join(points, "\n"))

	out, err := g.call(ctx, Request{
		Prompt:      prompt,
		System:      verifySystem,
		Temperature: 0.4,
		MaxTokens:   500,
		Operation:   OpBio,
	}, g.generatedTTL)
	if err != nil {
		return ""
	}
	out = strings.TrimSpace(out)
	if len(out) <= BioMinChars {
		return ""
	}
	return truncate(out, BioMaxChars)
}

// DuplicateEntry is one record offered for duplicate grouping.
type DuplicateEntry struct {
	ID       int64
	Name     string
	Aliases  []string
	RealName string
}

// SuggestDuplicateGroups asks for groups of entries that refer to the same
// entity. Only groups with two or more known ids are returned. Nil means no
// suggestion (unavailable or unparseable).
func (g *Gateway) SuggestDuplicateGroups(ctx context.Context, entries []DuplicateEntry) [][]int64 {
	if len(entries) < 2 {
		return nil
	}
	var b strings.Builder
	for i, e := range entries {
		fmt.Fprintf(&b, "%d. Name: %s", i+1, e.Name)
		if len(e.Aliases) > 0 {
			fmt.Fprintf(&b, "; Aliases: %s", strings.Join(e.Aliases, ", "))
		}
		if e.RealName != "" {
			fmt.Fprintf(&b, "; Real name: %s", e.RealName)
		}
		b.WriteByte('\n')
	}
	prompt := `Which of these entries refer to the same person? Reply with a JSON array of arrays of entry numbers, e.g. [[1,3],[2,5]]. Reply [] if none.
` + b.String()

	out, err := g.call(ctx, Request{
		Prompt:      prompt,
		System:      verifySystem,
		JSON:        true,
		Temperature: 0.1,
		MaxTokens:   200,
		Operation:   OpDuplicates,
	}, g.lookupTTL)
	if err != nil {
		return nil
	}
	parsed := gjson.Parse(stripFences(out))
	if !parsed.IsArray() {
		zap.L().Debug("ai: duplicate groups reply is not an array", zap.String("reply", truncate(out, 200)))
		return nil
	}
	var groups [][]int64
	for _, grp := range parsed.Array() {
		seen := make(map[int64]bool)
		var ids []int64
		for _, idx := range grp.Array() {
			i := int(idx.Int())
			if i < 1 || i > len(entries) {
				continue
			}
			id := entries[i-1].ID
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
		if len(ids) > 1 {
			groups = append(groups, ids)
		}
	}
	return groups
}

// ClassifyFreeText decides which kind of entity an article describes. It
// returns false when unsure or unavailable.
func (g *Gateway) ClassifyFreeText(ctx context.Context, title, excerpt string) (model.Kind, bool) {
	prompt := fmt.Sprintf(`Title: %q`, title)
	if excerpt = strings.TrimSpace(excerpt); excerpt != "" {
		prompt += "\nSummary: " + truncate(excerpt, classifyExcerptChars)
	}
	prompt += `

Classify this as one of: wrestler, promotion, event, title, venue, other.
Reply with JSON: {"entity_type": "...", "confidence": 0.0-1.0}`

	out, err := g.call(ctx, Request{
		Prompt:      prompt,
		System:      verifySystem,
		JSON:        true,
		Temperature: 0.1,
		Operation:   OpClassify,
	}, g.lookupTTL)
	if err != nil {
		return "", false
	}
	res, ok := parseObject(out)
	if !ok || res.Get("confidence").Float() < ClassifyMinConfidence {
		return "", false
	}
	kind := model.Kind(strings.ToLower(strings.TrimSpace(res.Get("entity_type").String())))
	if !kind.Valid() {
		return "", false
	}
	return kind, true
}

// IsSafeFromCopyright reports whether text can be stored without
// reproducing protected prose. Without AI, short fragments are safe.
func (g *Gateway) IsSafeFromCopyright(ctx context.Context, text string) (bool, string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return true, "Empty text"
	}
	prompt := fmt.Sprintf(`Is the following text a short factual statement that can be stored in a database without copyright concerns, or is it substantial original prose copied from a published source?

Text: %s

Reply with JSON: {"is_safe": true/false, "reason": "..."}`, truncate(text, 2000))

	out, err := g.call(ctx, Request{
		Prompt:      prompt,
		System:      verifySystem,
		JSON:        true,
		Temperature: 0.1,
		Operation:   OpCopyright,
	}, g.lookupTTL)
	if err != nil {
		return len(text) < CopyrightFallbackLimit, "AI unavailable, applying length limit"
	}
	res, ok := parseObject(out)
	if !ok || !res.Get("is_safe").Exists() {
		return len(text) < CopyrightFallbackLimit, "Could not parse AI response"
	}
	reason := res.Get("reason").String()
	if reason == "" {
		reason = "Checked by AI"
	}
	return res.Get("is_safe").Bool(), reason
}

// ExtractNationality derives a nationality from free text such as a
// hometown. Answers below NationalityMinConfidence are discarded.
func (g *Gateway) ExtractNationality(ctx context.Context, text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	prompt := fmt.Sprintf(`What nationality (demonym, e.g. "American", "Japanese") corresponds to this place: %s
Reply with JSON: {"nationality": "...", "confidence": 0.0-1.0}`, text)

	out, err := g.call(ctx, Request{
		Prompt:      prompt,
		System:      verifySystem,
		JSON:        true,
		Temperature: 0.1,
		Operation:   OpNationality,
	}, g.lookupTTL)
	if err != nil {
		return "", false
	}
	res, ok := parseObject(out)
	if !ok || res.Get("confidence").Float() < NationalityMinConfidence {
		return "", false
	}
	n := strings.TrimSpace(res.Get("nationality").String())
	return n, n != ""
}

// DedupeMatch is the result of DeduplicateCheck.
type DedupeMatch struct {
	ID         int64   `json:"id"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// DeduplicateCheck asks whether candidate duplicates any of existing. At most
// thirty existing entries are sent; larger lists are sampled.
func (g *Gateway) DeduplicateCheck(ctx context.Context, candidate DuplicateEntry, existing []DuplicateEntry) (*DedupeMatch, bool) {
	if len(existing) == 0 {
		return nil, false
	}
	sample := existing
	if len(sample) > dedupeSampleSize {
		sample = make([]DuplicateEntry, len(existing))
		copy(sample, existing)
		rand.Shuffle(len(sample), func(i, j int) { sample[i], sample[j] = sample[j], sample[i] })
		sample = sample[:dedupeSampleSize]
		sort.Slice(sample, func(i, j int) bool { return sample[i].ID < sample[j].ID })
	}
	var b strings.Builder
	for _, e := range sample {
		fmt.Fprintf(&b, "- id %d: %s", e.ID, e.Name)
		if len(e.Aliases) > 0 {
			fmt.Fprintf(&b, " (aka %s)", strings.Join(e.Aliases, ", "))
		}
		b.WriteByte('\n')
	}
	prompt := fmt.Sprintf(`New entry: %s
Existing entries:
%s
Is the new entry a duplicate of an existing one? Reply with JSON: {"is_duplicate": true/false, "matching_id": id or null, "confidence": 0.0-1.0, "reasoning": "..."}`,
		candidate.Name, b.String())

	out, err := g.call(ctx, Request{
		Prompt:      prompt,
		System:      verifySystem,
		JSON:        true,
		Temperature: 0.1,
		Operation:   OpDedupeCheck,
	}, g.lookupTTL)
	if err != nil {
		return nil, false
	}
	res, ok := parseObject(out)
	if !ok || !res.Get("is_duplicate").Bool() {
		return nil, false
	}
	id := res.Get("matching_id").Int()
	for _, e := range sample {
		if e.ID == id {
			return &DedupeMatch{
				ID:         id,
				Confidence: clamp01(res.Get("confidence").Float()),
				Reasoning:  res.Get("reasoning").String(),
			}, true
		}
	}
	return nil, false
}

// describe renders data as sorted "key: value" lines.
func describe(data map[string]any) string {
	keys := make([]string, 0, len(data))
	for k, v := range data {
		if v == nil {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		var s string
		switch v := data[k].(type) {
		case string:
			s = v
		default:
			raw, err := json.Marshal(v)
			if err != nil {
				continue
			}
			s = string(raw)
		}
		if s = strings.TrimSpace(s); s != "" {
			lines = append(lines, k+": "+s)
		}
	}
	return strings.Join(lines, "\n")
}

// parseObject extracts the first JSON object from a reply, tolerating code
// fences and surrounding prose.
func parseObject(out string) (gjson.Result, bool) {
	s := stripFences(out)
	if !gjson.Valid(s) {
		start := strings.Index(s, "{")
		end := strings.LastIndex(s, "}")
		if start < 0 || end <= start {
			return gjson.Result{}, false
		}
		s = s[start : end+1]
		if !gjson.Valid(s) {
			return gjson.Result{}, false
		}
	}
	res := gjson.Parse(s)
	return res, res.IsObject()
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
