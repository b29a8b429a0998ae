package gamepress

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/lawnchairsociety/dropefficiency/internal/drops"
)

// ErrMalformedPage is wrapped by every parse failure.
var ErrMalformedPage = errors.New("malformed page")

const groupingHeader = `<div class="view-grouping-header">`

var (
	apRegex       = regexp.MustCompile(`>(\d+)<`)
	itemRegex     = regexp.MustCompile(`"en">([^<]+)</a> (?:x\d )?(?:([\d.]+)%)?`)
	locationRegex = regexp.MustCompile(`<a[^<]+href="([^"]*)"[^<]*>([^<]+)</a>`)
	questRegex    = regexp.MustCompile(`href="(.+?)".*?>([^<]+)`)
	titleRegex    = regexp.MustCompile(`(?m)^[^<\n]+`)
)

// QuestLink is a free quest listed on the index page.
type QuestLink struct {
	Name string
	URL  string
}

// SectionIndex is one grouping of the free quest index, e.g. a singularity.
type SectionIndex struct {
	Title  string
	Quests []QuestLink
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedPage, fmt.Sprintf(format, args...))
}

func groupMarker(id string) string {
	return groupingHeader + `<div id="` + id + `"></div>`
}

// ParseFreeQuests splits the free quest index into sections, starting at the
// grouping header with id startID and stopping before the one with endID.
// Groupings without a title are skipped with a warning.
func ParseFreeQuests(page, startID, endID string) ([]SectionIndex, []string, error) {
	start := groupMarker(startID)
	_, rest, found := strings.Cut(page, start)
	if !found {
		return nil, nil, malformed("start section %s not found on the free quest index", startID)
	}
	if endID != "" {
		rest, _, _ = strings.Cut(rest, groupMarker(endID))
	}
	rest = start + rest

	var (
		sections []SectionIndex
		warnings []string
	)
	for _, chunk := range strings.Split(rest, groupingHeader) {
		if chunk == "" {
			continue
		}

		title := sectionTitle(chunk)
		if title == "" {
			warnings = append(warnings, fmt.Sprintf("no title found in section starting %q", firstLine(chunk)))
			continue
		}

		section := SectionIndex{Title: title}
		for _, line := range strings.Split(chunk, "\n") {
			if !strings.Contains(line, "/quest/") {
				continue
			}
			m := questRegex.FindStringSubmatch(line)
			if m == nil {
				warnings = append(warnings, fmt.Sprintf("%s: unreadable quest link %q", title, strings.TrimSpace(line)))
				continue
			}
			section.Quests = append(section.Quests, QuestLink{
				Name: strings.TrimSpace(m[2]),
				URL:  strings.Replace(m[1], "/grandorder", "", 1),
			})
		}
		sections = append(sections, section)
	}

	return sections, warnings, nil
}

func sectionTitle(chunk string) string {
	for _, m := range titleRegex.FindAllString(chunk, -1) {
		if t := strings.TrimSpace(m); t != "" {
			return t
		}
	}
	return ""
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	if utf8.RuneCountInString(line) > 60 {
		line = string([]rune(line)[:60])
	}
	return line
}

// DatasetSectionName is the section name used in the drop data for an index
// title. Lostbelt titles lose their "Lostbelt No.N: " prefix.
func DatasetSectionName(title string) string {
	if strings.HasPrefix(title, "Lostbelt") {
		if _, name, ok := strings.Cut(title, ": "); ok {
			return name
		}
	}
	return title
}

// ParseQuestPage reads a quest page: the location (without a leading
// "<section> - "), the AP cost from the line after "AP Cost" and the drop
// rates between "Quest Drops" and "Quest Reward". The returned quest is named
// "<location>: <quest>". Drops with no listed rate, or a rate outside (0, 1],
// are left out and reported as warnings.
func ParseQuestPage(page, section, questName string) (drops.Quest, []string, error) {
	_, dropsText, found := strings.Cut(page, "Quest Drops")
	if !found {
		return drops.Quest{}, nil, malformed("%s: no Quest Drops block", questName)
	}
	dropsText, _, _ = strings.Cut(dropsText, "Quest Reward")

	_, locationText, found := strings.Cut(page, `<div id="main-quest">`)
	if !found {
		return drops.Quest{}, nil, malformed("%s: no main-quest block", questName)
	}
	locationText, _, _ = strings.Cut(locationText, "AP Cost")
	loc := locationRegex.FindStringSubmatch(locationText)
	if loc == nil {
		return drops.Quest{}, nil, malformed("%s: no location link", questName)
	}
	location := strings.TrimSpace(loc[2])
	if trimmed, ok := strings.CutPrefix(location, section+" - "); ok && trimmed != "" {
		location = trimmed
	}

	ap, err := parseAP(page)
	if err != nil {
		return drops.Quest{}, nil, fmt.Errorf("%s: %w", questName, err)
	}

	name := location + ": " + questName
	node := drops.NodeID(section, name)
	quest := drops.Quest{Name: name, AP: ap, Drops: drops.DropTable{}}

	var warnings []string
	for _, line := range strings.Split(dropsText, "\n") {
		if !strings.Contains(line, "/item/") || !strings.Contains(line, "</td>") {
			continue
		}
		m := itemRegex.FindStringSubmatch(line)
		if m == nil {
			warnings = append(warnings, fmt.Sprintf("%s: unreadable drop row %q", node, strings.TrimSpace(line)))
			continue
		}
		item, chance := strings.TrimSpace(m[1]), m[2]
		if chance == "" {
			warnings = append(warnings, fmt.Sprintf("no drop rate listed: %s: %s", node, item))
			continue
		}
		pct, err := strconv.ParseFloat(chance, 64)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: bad drop rate %q for %s", node, chance, item))
			continue
		}
		p := pct / 100
		if err := drops.ValidateProbability(node, item, p); err != nil {
			warnings = append(warnings, err.Error())
			continue
		}
		quest.Drops[item] = p
	}

	return quest, warnings, nil
}

func parseAP(page string) (int, error) {
	_, after, found := strings.Cut(page, "AP Cost")
	if !found {
		return 0, malformed("no AP Cost field")
	}
	lines := strings.Split(after, "\n")
	if len(lines) < 2 {
		return 0, malformed("AP Cost field has no value line")
	}
	m := apRegex.FindStringSubmatch(lines[1])
	if m == nil {
		return 0, malformed("no AP value in %q", strings.TrimSpace(lines[1]))
	}
	ap, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, malformed("AP value %q: %v", m[1], err)
	}
	return ap, nil
}
