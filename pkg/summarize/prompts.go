package summarize

import (
	"fmt"
	"strings"
)

const dailyStyle = `Writing rules (follow strictly):
- Write like a sharp newsroom editor, not an AI assistant.
- Use markdown: **bold** key facts, names, numbers. Use *italic* for quotes or emphasis.
- HARD LIMIT: 200-300 characters for the summary. Be ruthlessly concise.
- Never use long dashes or em dashes. Use commas or periods.
- Never count releases or statements. Never say "issued" or "announced X statements".
- Never use: notably, delve, comprehensive, robust, furthermore, landscape, paradigm, pivotal, streamline, underscores, leveraging.
- No filler. Every word must earn its place.
- If content is in a foreign language, write in English.`

const weeklyStyle = `Writing rules (follow strictly):
- Write like a sharp newsroom editor, not an AI assistant.
- Use markdown freely: **bold** key facts, *italic* for emphasis or quotes.
- Use bullet lists where they help readability.
- HARD LIMIT: 500 characters for the summary.
- Never use long dashes or em dashes. Use commas or periods.
- Never count releases or statements.
- Never use: notably, delve, comprehensive, robust, furthermore, landscape, paradigm, pivotal, streamline, underscores, leveraging.
- If content is in a foreign language, write in English.`

// formatInstructions states the title/summary delimiter convention that
// ParseTitleSummary relies on.
const formatInstructions = `Output format:
First line: the headline only. No quotes, no label.
Following lines: the summary.`

type prompt struct {
	system string
	user   string
}

func releasePrompt(title, ministry, countryName, body string) prompt {
	if ministry == "" {
		ministry = "N/A"
	}
	return prompt{
		system: "You summarize government press releases. " + dailyStyle,
		user: fmt.Sprintf("Title: %s\nMinistry: %s\nCountry: %s\n\nContent:\n%s\n\n"+
			"Headline under 12 words, then a 200-300 character summary. **Bold** key facts. "+
			"Be specific with numbers, names, dates.\n\n%s",
			title, ministry, countryName, body, formatInstructions),
	}
}

func countryHeadlinePrompt(countryName string, r Result) prompt {
	return prompt{
		system: "You write news headlines. " + dailyStyle,
		user: fmt.Sprintf("Write a short punchy headline (under 10 words) for this from %s:\n\n%s: %s\n\n"+
			"Return only the headline. No quotes.", countryName, r.Title, r.Summary),
	}
}

func countryPrompt(countryName string, releases []Result) prompt {
	items := make([]string, 0, len(releases))
	for _, r := range releases {
		items = append(items, fmt.Sprintf("- %s: %s", r.Title, r.Summary))
	}
	return prompt{
		system: "You write country-level news digests. " + dailyStyle,
		user: fmt.Sprintf("Today's announcements from %s:\n\n%s\n\n"+
			"Headline under 10 words. Summary 200-300 characters, weave the stories together: "+
			"what happened and why it matters.\n\n%s",
			countryName, strings.Join(items, "\n\n"), formatInstructions),
	}
}

func globalPrompt(countries []CountryText) prompt {
	items := make([]string, 0, len(countries))
	for _, c := range countries {
		items = append(items, fmt.Sprintf("**%s** (%s): %s", c.Name, c.Title, c.Summary))
	}
	return prompt{
		system: "You write a daily global government briefing. " + dailyStyle,
		user: fmt.Sprintf("Today's country summaries:\n\n%s\n\n"+
			"Compelling headline under 15 words. Summary 200-300 characters, **bold** the biggest story, "+
			"find threads connecting countries.\n\n%s",
			strings.Join(items, "\n\n"), formatInstructions),
	}
}

func weeklyCountryPrompt(countryName string, days []DayText) prompt {
	return prompt{
		system: "You write weekly country news recaps. " + weeklyStyle,
		user: fmt.Sprintf("This week from %s:\n\n%s\n\n"+
			"Punchy headline under 10 words. Summary of 400-500 characters: what were the key stories, what changed?\n\n%s",
			countryName, dayLines(days), formatInstructions),
	}
}

func weeklyGlobalPrompt(dailies []DayText, countries []CountryWeek) prompt {
	var headlines []string
	for _, d := range dailies {
		headlines = append(headlines, fmt.Sprintf("**%s**: %s", d.Date, d.Title))
	}
	var details []string
	for _, c := range countries {
		details = append(details, fmt.Sprintf("**%s**:\n%s", c.Name, dayLines(c.Days)))
	}
	return prompt{
		system: "You write a weekly government briefing. " + weeklyStyle,
		user: fmt.Sprintf("This week's daily headlines:\n\n%s\n\nCountry details:\n\n%s\n\n"+
			"Compelling weekly headline under 15 words. Summary of 400-500 characters: "+
			"the biggest stories and the trends that emerged.\n\n%s",
			strings.Join(headlines, "\n"), strings.Join(details, "\n\n"), formatInstructions),
	}
}

func dayLines(days []DayText) string {
	lines := make([]string, 0, len(days))
	for _, d := range days {
		lines = append(lines, fmt.Sprintf("- %s: %s - %s", d.Date, d.Title, d.Summary))
	}
	return strings.Join(lines, "\n")
}
