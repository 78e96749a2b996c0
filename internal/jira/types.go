package jira

import "time"

// createdLayout matches Jira's changelog timestamp rendering,
// e.g. "2024-05-17T09:30:12.345+0200".
const createdLayout = "2006-01-02T15:04:05.000-0700"

// Issue is the subset of an issue the bot needs.
type Issue struct {
	Key    string      `json:"key"`
	Fields IssueFields `json:"fields"`
}

type IssueFields struct {
	Summary string `json:"summary"`
}

// Changelog holds the status-change history of an issue.
type Changelog struct {
	Histories []ChangeHistory `json:"histories"`
}

type ChangeHistory struct {
	Created string       `json:"created"`
	Items   []ChangeItem `json:"items"`
}

type ChangeItem struct {
	Field    string `json:"field"`
	ToString string `json:"toString"`
}

// CreatedTime parses the history timestamp.
func (h ChangeHistory) CreatedTime() (time.Time, error) {
	return time.Parse(createdLayout, h.Created)
}

// Transition is an available workflow transition.
type Transition struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type searchResponse struct {
	Issues []Issue `json:"issues"`
}

type issueWithChangelog struct {
	Key       string    `json:"key"`
	Changelog Changelog `json:"changelog"`
}

type transitionsResponse struct {
	Transitions []Transition `json:"transitions"`
}

// CreateIssueRequest carries the fields for a new issue. Description and
// Environment are plain text; the client converts them to ADF.
type CreateIssueRequest struct {
	Project     string
	Summary     string
	Description string
	IssueType   string
	Priority    string
	Labels      []string
	Environment string
}

type createIssueResponse struct {
	Key string `json:"key"`
}

type userResult struct {
	AccountID string `json:"accountId"`
}

type errorResponse struct {
	ErrorMessages []string          `json:"errorMessages"`
	Errors        map[string]string `json:"errors"`
}
