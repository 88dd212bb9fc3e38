package scraper

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ternarybob/subsidia/internal/models"
)

// Window of text inspected around a deadline keyword, in runes.
const (
	windowBefore = 50
	windowAfter  = 150
)

// reiwaBaseYear converts 令和 era years: 令和1 is 2019, so year = 2018 + N.
const reiwaBaseYear = 2018

var (
	kanjiDateRegex = regexp.MustCompile(`(\d{4})年\s*(\d{1,2})月\s*(\d{1,2})日`)
	reiwaDateRegex = regexp.MustCompile(`令和\s*(\d{1,2})年\s*(\d{1,2})月\s*(\d{1,2})日`)
	slashDateRegex = regexp.MustCompile(`(\d{4})[/\-](\d{1,2})[/\-](\d{1,2})`)
)

// ExtractDeadline scans page text for a date near a deadline keyword.
// The first keyword with a parseable date in its window wins.
func ExtractDeadline(text string) *models.Deadline {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	lowerRunes := []rune(strings.ToLower(text))
	for _, keyword := range deadlineKeywords {
		offset := 0
		for {
			idx := indexRunes(lowerRunes[offset:], keyword)
			if idx < 0 {
				break
			}
			pos := offset + idx
			if pos >= len(runes) {
				break
			}

			start := pos - windowBefore
			if start < 0 {
				start = 0
			}
			end := pos + windowAfter
			if end > len(runes) {
				end = len(runes)
			}
			window := string(runes[start:end])

			if date := parseDate(window); date != "" {
				context := strings.TrimSpace(window)
				if len([]rune(context)) > 120 {
					context = string([]rune(context)[:120])
				}
				return &models.Deadline{
					Date:    date,
					Keyword: keyword,
					Context: context,
				}
			}

			offset = pos + len([]rune(keyword))
		}
	}

	return nil
}

// parseDate finds the first recognizable date in the window and returns
// it in ISO form.
func parseDate(window string) string {
	if m := reiwaDateRegex.FindStringSubmatch(window); m != nil {
		era, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		return isoDate(reiwaBaseYear+era, month, day)
	}

	if m := kanjiDateRegex.FindStringSubmatch(window); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		return isoDate(year, month, day)
	}

	if m := slashDateRegex.FindStringSubmatch(window); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		return isoDate(year, month, day)
	}

	return ""
}

func isoDate(year, month, day int) string {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day)
}

// indexRunes finds a substring in a rune slice, returning a rune index.
func indexRunes(haystack []rune, needle string) int {
	byteIdx := strings.Index(string(haystack), needle)
	if byteIdx < 0 {
		return -1
	}
	return len([]rune(string(haystack)[:byteIdx]))
}
