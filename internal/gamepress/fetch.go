package gamepress

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/lawnchairsociety/dropefficiency/internal/drops"
	"github.com/lawnchairsociety/dropefficiency/internal/logger"
)

const freeQuestsPath = "/free-quests"

// Report lists the non-fatal problems met while scraping.
type Report struct {
	Sections int
	Quests   int
	Warnings []string
}

// FetchDataset scrapes the free quest index and every quest page between the
// startID and endID groupings, and builds the drop dataset. Section and quest
// order follow the wiki. A quest page that cannot be fetched or parsed fails
// the whole fetch.
func (c *Client) FetchDataset(ctx context.Context, startID, endID string) (*drops.Dataset, *Report, error) {
	index, err := c.Get(ctx, freeQuestsPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch free quest index: %w", err)
	}

	sections, warnings, err := ParseFreeQuests(index, startID, endID)
	if err != nil {
		return nil, nil, err
	}
	report := &Report{Warnings: warnings}

	for _, s := range sections {
		logger.Info("Found section", "title", s.Title, "quests", len(s.Quests))
	}

	ds := &drops.Dataset{}
	for _, s := range sections {
		name := DatasetSectionName(s.Title)
		logger.Info("Fetching section", "section", name)

		section, warnings, err := c.fetchSection(ctx, name, s.Quests)
		if err != nil {
			return nil, nil, err
		}
		report.Warnings = append(report.Warnings, warnings...)

		if ds.Section(name) != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("section %s listed twice, keeping the last", name))
		}
		ds.AddSection(section)
		report.Quests += len(section.Quests)
		logger.Info("Section done", "section", name, "quests", len(section.Quests))
	}
	report.Sections = len(ds.Sections)

	for _, w := range report.Warnings {
		logger.Warningf("Scrape warning: %s", w)
	}
	return ds, report, nil
}

type questPage struct {
	quest    drops.Quest
	warnings []string
	err      error
}

// fetchSection downloads the quest pages of one section with at most
// c.concurrency requests in flight, keeping the index order.
func (c *Client) fetchSection(ctx context.Context, name string, links []QuestLink) (drops.Section, []string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]questPage, len(links))
	semaphore := make(chan struct{}, c.concurrency)
	var wg sync.WaitGroup

	for i, link := range links {
		wg.Add(1)
		go func(i int, link QuestLink) {
			defer wg.Done()

			select {
			case semaphore <- struct{}{}:
			case <-ctx.Done():
				results[i].err = ctx.Err()
				return
			}
			defer func() { <-semaphore }()

			page, err := c.Get(ctx, link.URL)
			if err != nil {
				results[i].err = fmt.Errorf("failed to fetch quest %s: %w", link.Name, err)
				cancel()
				return
			}
			quest, warnings, err := ParseQuestPage(page, name, link.Name)
			if err != nil {
				results[i].err = fmt.Errorf("failed to parse quest %s in %s: %w", link.Name, name, err)
				cancel()
				return
			}
			results[i] = questPage{quest: quest, warnings: warnings}
		}(i, link)
	}
	wg.Wait()

	if err := firstError(results); err != nil {
		return drops.Section{}, nil, err
	}

	section := drops.Section{Name: name}
	var warnings []string
	seen := make(map[string]int)

	for _, r := range results {
		warnings = append(warnings, r.warnings...)

		if i, dup := seen[r.quest.Name]; dup {
			warnings = append(warnings, fmt.Sprintf("%s: quest %s listed twice, keeping the last", name, r.quest.Name))
			section.Quests[i] = r.quest
			continue
		}
		seen[r.quest.Name] = len(section.Quests)
		section.Quests = append(section.Quests, r.quest)
	}

	return section, warnings, nil
}

// firstError prefers the failure that caused the cancellation over the
// cancellations that followed it.
func firstError(results []questPage) error {
	var canceled error
	for _, r := range results {
		if r.err == nil {
			continue
		}
		if !errors.Is(r.err, context.Canceled) {
			return r.err
		}
		if canceled == nil {
			canceled = r.err
		}
	}
	return canceled
}
