package service

import (
	_ "embed"
	"fmt"
	"strings"

	"matchengine/internal/model"
	"matchengine/internal/utils"
)

//go:embed ranking_prompt.md
var rankingPromptTemplate string

const rankingSystemPrompt = "You are a careful real-estate matching assistant. You answer with a single JSON object and nothing else."

const (
	maxDescriptionRunes = 300
	maxFeedbackPerSide  = 20
)

func buildRankingPrompt(buyer *model.Buyer, candidates []model.Property, feedback []model.Feedback) string {
	template := rankingPromptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Taste:\n{{TASTE}}\n\nFeedback:\n{{FEEDBACK}}\n\nCandidates:\n{{CANDIDATES}}\n\nJSON Response:"
	}
	prompt := strings.ReplaceAll(template, "{{TASTE}}", tasteBlock(buyer))
	prompt = strings.ReplaceAll(prompt, "{{FEEDBACK}}", feedbackBlock(feedback))
	prompt = strings.ReplaceAll(prompt, "{{CANDIDATES}}", candidatesBlock(candidates))
	return prompt
}

func tasteBlock(buyer *model.Buyer) string {
	var lines []string
	add := func(label string, v *string) {
		if v != nil && strings.TrimSpace(*v) != "" {
			lines = append(lines, fmt.Sprintf("- %s: %s", label, strings.TrimSpace(*v)))
		}
	}
	add("Summary", buyer.TasteSummary)
	add("Likes", buyer.TasteLiked)
	add("Dislikes", buyer.TasteDisliked)
	return strings.Join(lines, "\n")
}

func feedbackBlock(feedback []model.Feedback) string {
	var liked, disliked []string
	for _, fb := range feedback {
		switch {
		case fb.Status.Liked() && len(liked) < maxFeedbackPerSide:
			liked = append(liked, feedbackLine(fb))
		case fb.Status.Disliked() && len(disliked) < maxFeedbackPerSide:
			disliked = append(disliked, feedbackLine(fb))
		}
	}

	var b strings.Builder
	b.WriteString("Liked (interested or visited):\n")
	writeBucket(&b, liked)
	b.WriteString("Disliked (not interested):\n")
	writeBucket(&b, disliked)
	return strings.TrimRight(b.String(), "\n")
}

func writeBucket(b *strings.Builder, lines []string) {
	if len(lines) == 0 {
		b.WriteString("- none\n")
		return
	}
	for _, line := range lines {
		b.WriteString("- ")
		b.WriteString(line)
		b.WriteString("\n")
	}
}

func feedbackLine(fb model.Feedback) string {
	p := model.Property{
		Address:      fb.Address,
		City:         fb.City,
		Neighborhood: fb.Neighborhood,
		Rooms:        fb.Rooms,
		Price:        fb.Price,
	}
	line := p.Summary()
	if line == "" {
		line = "property " + fb.PropertyID
	}
	if fb.Note != nil && strings.TrimSpace(*fb.Note) != "" {
		line += ". Note: " + utils.TruncateForLog(*fb.Note, maxDescriptionRunes)
	}
	return line
}

func candidatesBlock(candidates []model.Property) string {
	var b strings.Builder
	for i := range candidates {
		p := &candidates[i]
		fmt.Fprintf(&b, "- property_id: %s\n", p.ID)
		fmt.Fprintf(&b, "  address: %s, %s", p.Address, p.City)
		if p.Neighborhood != nil && *p.Neighborhood != "" {
			fmt.Fprintf(&b, " (%s)", *p.Neighborhood)
		}
		b.WriteString("\n")
		if p.Rooms != nil {
			fmt.Fprintf(&b, "  rooms: %g\n", *p.Rooms)
		}
		if p.Size != nil {
			fmt.Fprintf(&b, "  size_sqm: %g\n", *p.Size)
		}
		if p.Floor != nil {
			fmt.Fprintf(&b, "  floor: %d\n", *p.Floor)
		}
		if p.Price != nil {
			fmt.Fprintf(&b, "  price: %.0f\n", *p.Price)
		}
		if labels := model.FeatureLabels(p.Features()); labels != "" {
			fmt.Fprintf(&b, "  features: %s\n", labels)
		}
		if p.Description != nil && strings.TrimSpace(*p.Description) != "" {
			fmt.Fprintf(&b, "  description: %s\n", utils.TruncateForLog(*p.Description, maxDescriptionRunes))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
