package scraper

import (
	"strings"

	"github.com/ternarybob/subsidia/internal/models"
)

// formatFileKeywords mark a link as an application document.
var formatFileKeywords = []string{
	"申請書", "様式", "応募用紙", "記入例", "要項", "要領", "募集要項",
	"template", "form", "application", "guideline",
}

// grantPageKeywords mark a navigation link as leading to application
// material.
var grantPageKeywords = []string{
	"募集", "公募", "応募", "助成", "申請", "ダウンロード",
	"grant", "apply", "application", "download", "recruitment",
}

// deadlineKeywords anchor the date search window.
var deadlineKeywords = []string{
	"締切", "締め切り", "〆切", "期限", "必着", "消印有効", "募集期間",
	"deadline", "due date", "closing date",
}

// obstacleRule maps title phrases to the obstacle they indicate.
type obstacleRule struct {
	phrases  []string
	obstacle models.Obstacle
}

// Ordered: not-found and access-denied are more specific than the
// generic error rule, and must win.
var obstacleRules = []obstacleRule{
	{
		phrases:  []string{"sign in", "log in", "login", "ログイン", "認証", "会員専用"},
		obstacle: models.ObstacleAuthWall,
	},
	{
		phrases:  []string{"404", "not found", "見つかりません", "存在しません"},
		obstacle: models.ObstacleNotFound,
	},
	{
		phrases:  []string{"403", "forbidden", "アクセス禁止", "アクセスできません"},
		obstacle: models.ObstacleAccessDenied,
	},
	{
		phrases:  []string{"error", "エラー"},
		obstacle: models.ObstacleErrorPage,
	},
}

// detectObstacle classifies a page title. Empty result means no obstacle.
func detectObstacle(title string) (models.Obstacle, string) {
	lower := strings.ToLower(title)
	for _, rule := range obstacleRules {
		for _, phrase := range rule.phrases {
			if strings.Contains(lower, strings.ToLower(phrase)) {
				return rule.obstacle, phrase
			}
		}
	}
	return models.ObstacleNone, ""
}

// scoreFileRelevance scores a file link against the format keyword table
// and the candidate's name tokens.
func scoreFileRelevance(linkURL, linkText, candidateName string) int {
	score := 0
	lowerText := strings.ToLower(linkText)

	for _, kw := range formatFileKeywords {
		if strings.Contains(lowerText, strings.ToLower(kw)) {
			score += 10
		}
	}

	haystack := strings.ToLower(linkURL) + " " + lowerText
	for _, token := range nameTokens(candidateName) {
		if strings.Contains(haystack, strings.ToLower(token)) {
			score += 5
		}
	}

	return score
}

// scorePageRelevance scores a navigation link for grant-page likelihood.
func scorePageRelevance(linkURL, linkText string) int {
	score := 0
	haystack := strings.ToLower(linkURL) + " " + strings.ToLower(linkText)
	for _, kw := range grantPageKeywords {
		if strings.Contains(haystack, strings.ToLower(kw)) {
			score += 10
		}
	}
	return score
}

// nameTokens returns up to the first 3 usable tokens of a candidate name.
func nameTokens(candidateName string) []string {
	var tokens []string
	for _, token := range strings.Fields(candidateName) {
		if len([]rune(token)) < 2 {
			continue
		}
		tokens = append(tokens, token)
		if len(tokens) == 3 {
			break
		}
	}
	return tokens
}
