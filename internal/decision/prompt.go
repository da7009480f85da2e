package decision

import (
	"fmt"
	"strings"

	"github.com/apexion-ai/iad/internal/config"
)

// Settings tunes step and report generation.
type Settings struct {
	Model             string
	MinOptions        int
	MaxOptions        int
	Framings          []string
	Temperature       float64
	ReportTemperature float64
	ReportLength      int
	MaxInputChars     int
	Language          string
	MaxTokens         int
}

// SettingsFromConfig maps the generation section of the configuration.
func SettingsFromConfig(cfg *config.Config) Settings {
	g := cfg.Generation
	return Settings{
		Model:             cfg.Model,
		MinOptions:        g.MinOptions,
		MaxOptions:        g.MaxOptions,
		Framings:          g.Framings,
		Temperature:       g.Temperature,
		ReportTemperature: g.ReportTemperature,
		ReportLength:      g.ReportLength,
		MaxInputChars:     g.MaxInputChars,
		Language:          g.Language,
		MaxTokens:         g.MaxTokens,
	}
}

// DefaultSettings mirrors config.DefaultConfig.
func DefaultSettings() Settings {
	return SettingsFromConfig(config.DefaultConfig())
}

func (s Settings) optionRange() (int, int) {
	lo, hi := s.MinOptions, s.MaxOptions
	if lo < 2 {
		lo = 2
	}
	if hi < lo || hi > 4 {
		hi = 4
	}
	if lo > hi {
		lo = hi
	}
	return lo, hi
}

func languageRule(lang string) string {
	if lang == "" {
		return "Answer in the language the user writes in."
	}
	return fmt.Sprintf("Answer in %s.", lang)
}

func stepSystemPrompt(s Settings) string {
	lo, hi := s.optionRange()
	var sb strings.Builder
	sb.WriteString("You are an assistant that helps people make decisions.\n")
	fmt.Fprintf(&sb, "Propose between %d and %d options for solving the problem.\n", lo, hi)
	if len(s.Framings) > 0 {
		fmt.Fprintf(&sb, "Make the options clearly contrast with each other, e.g. %s.\n", strings.Join(s.Framings, ", "))
	}
	sb.WriteString(`You receive the problem and, when present, the previous step and the option(s) the user chose.
Develop the chosen option(s) in this answer. Never return to options that were not chosen before.
If nothing was chosen yet, propose solutions right away, each with a short justification.
"summary" is a one-sentence restatement of the problem or of the chosen direction.
"options" holds the options as plain sentences, without numbering.
Do not add comments or requests at the end.
`)
	sb.WriteString(languageRule(s.Language))
	return sb.String()
}

func stepUserPrompt(req StepRequest) string {
	var sb strings.Builder
	if req.PreviousRestatement != "" {
		fmt.Fprintf(&sb, "Previous step: %s\n\n", req.PreviousRestatement)
	}
	if req.SupplementaryContext != "" {
		fmt.Fprintf(&sb, "Supplementary context:\n%s\n\n", req.SupplementaryContext)
	}
	if req.PreviousRestatement != "" {
		sb.WriteString("Chosen option: ")
	} else {
		sb.WriteString("Problem: ")
	}
	sb.WriteString(req.UserText)
	return sb.String()
}

func reportSystemPrompt(s Settings) string {
	length := s.ReportLength
	if length <= 0 {
		length = 2500
	}
	return fmt.Sprintf(`You are an assistant that helps people make decisions.
Write a report about the problem the user defined.
Use every step taken while reaching the decision, and expand on the advice in the final options.
You receive the problem and the steps that led to the final conclusions.
The report should be no longer than about %d characters. Use markdown headings and lists.
%s`, length, languageRule(s.Language))
}

func reportUserPrompt(in ReportInput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Problem: %s\n", in.Problem)
	sb.WriteString("Steps:\n")
	if len(in.Steps) == 0 {
		sb.WriteString("- (none)\n")
	}
	for i, s := range in.Steps {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, s)
	}
	sb.WriteString("Final options:\n")
	for i, o := range in.FinalOptions {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, o)
	}
	return sb.String()
}

// combineOptions joins selected option texts in positional order.
// A single text is passed through unchanged; several are joined with ". ".
func combineOptions(texts []string) string {
	if len(texts) == 1 {
		return strings.TrimSpace(texts[0])
	}
	parts := make([]string, 0, len(texts))
	for _, t := range texts {
		t = strings.TrimSuffix(strings.TrimSpace(t), ".")
		if t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, ". ")
}
