package testing

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"

	gh "github.com/google/go-github/v66/github"
)

// MockGitHub is an in-memory stand-in for the GitHub REST endpoints the sync
// engine uses:
//   - POST/GET /repos/{owner}/{repo}/issues (GET pages with a Link header)
//   - GET /repos/{owner}/{repo}/issues/{number}
//   - PUT /repos/{owner}/{repo}/issues/{number}/labels
//   - POST /repos/{owner}/{repo}/labels (422 already_exists on duplicates)
//   - POST /user/repos and /orgs/{org}/repos
type MockGitHub struct {
	mu sync.Mutex

	baseURL    string
	issues     map[int]*mockIssue
	nextIssue  int
	nextRepoID int64
	labels     map[string]map[string]bool
	failures   map[string][]failure

	// PageSize overrides the per_page query parameter when positive.
	PageSize int
	// Requests records "METHOD path" for every request served.
	Requests []string
}

type mockIssue struct {
	Number      int      `json:"number"`
	HTMLURL     string   `json:"html_url"`
	Title       string   `json:"title"`
	Body        string   `json:"body"`
	State       string   `json:"state"`
	Labels      []string `json:"-"`
	PullRequest bool     `json:"-"`
}

type failure struct {
	status int
	header http.Header
	body   any
}

// NewMockGitHubClient returns a go-github client wired to a fresh MockGitHub.
// The returned cleanup function must be called to close the server.
func NewMockGitHubClient() (*gh.Client, *MockGitHub, func()) {
	m := &MockGitHub{
		issues:   map[int]*mockIssue{},
		labels:   map[string]map[string]bool{},
		failures: map[string][]failure{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /repos/{owner}/{repo}/issues", m.createIssue)
	mux.HandleFunc("GET /repos/{owner}/{repo}/issues", m.listIssues)
	mux.HandleFunc("GET /repos/{owner}/{repo}/issues/{number}", m.getIssue)
	mux.HandleFunc("PUT /repos/{owner}/{repo}/issues/{number}/labels", m.replaceLabels)
	mux.HandleFunc("POST /repos/{owner}/{repo}/labels", m.createLabel)
	mux.HandleFunc("POST /user/repos", m.createRepo)
	mux.HandleFunc("POST /orgs/{org}/repos", m.createRepo)

	srv := httptest.NewServer(m.intercept(mux))
	m.baseURL = srv.URL

	client := gh.NewClient(srv.Client())
	base, _ := url.Parse(srv.URL + "/")
	client.BaseURL = base
	client.UploadURL = base

	return client, m, srv.Close
}

// FailNext makes the next request matching "METHOD /path" answer status.
func (m *MockGitHub) FailNext(route string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[route] = append(m.failures[route], failure{
		status: status,
		body:   map[string]string{"message": http.StatusText(status)},
	})
}

// RateLimitNext makes the next request matching route fail with a
// secondary rate limit response carrying Retry-After.
func (m *MockGitHub) RateLimitNext(route string, retryAfterSeconds int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := http.Header{}
	h.Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	m.failures[route] = append(m.failures[route], failure{
		status: http.StatusForbidden,
		header: h,
		body: map[string]string{
			"message":           "You have exceeded a secondary rate limit.",
			"documentation_url": "https://docs.github.com/rest/overview/resources-in-the-rest-api#secondary-rate-limits",
		},
	})
}

// AddIssue seeds an issue and returns its number.
func (m *MockGitHub) AddIssue(title string, labels ...string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addIssueLocked(title, "", labels, false)
}

// AddPullRequest seeds a pull request, which the issues API also lists.
func (m *MockGitHub) AddPullRequest(title string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addIssueLocked(title, "", nil, true)
}

// IssueLabels returns the stored labels of an issue.
func (m *MockGitHub) IssueLabels(number int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if issue, ok := m.issues[number]; ok {
		return append([]string(nil), issue.Labels...)
	}
	return nil
}

// IssueBody returns the stored body of an issue.
func (m *MockGitHub) IssueBody(number int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if issue, ok := m.issues[number]; ok {
		return issue.Body
	}
	return ""
}

// RepoLabels returns the label names created on "owner/name".
func (m *MockGitHub) RepoLabels(repo string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.labels[repo]))
	for name := range m.labels[repo] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *MockGitHub) addIssueLocked(title, body string, labels []string, pr bool) int {
	m.nextIssue++
	m.issues[m.nextIssue] = &mockIssue{
		Number:      m.nextIssue,
		HTMLURL:     fmt.Sprintf("https://github.com/owner/repo/issues/%d", m.nextIssue),
		Title:       title,
		Body:        body,
		State:       "open",
		Labels:      append([]string(nil), labels...),
		PullRequest: pr,
	}
	return m.nextIssue
}

func (m *MockGitHub) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.Requests = append(m.Requests, r.Method+" "+r.URL.Path)
		route := r.Method + " " + r.URL.Path
		var f *failure
		if queued := m.failures[route]; len(queued) > 0 {
			f = &queued[0]
			m.failures[route] = queued[1:]
		}
		m.mu.Unlock()

		if f != nil {
			for k, v := range f.header {
				w.Header()[k] = v
			}
			writeJSON(w, f.status, f.body)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *MockGitHub) createIssue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title  string   `json:"title"`
		Body   string   `json:"body"`
		Labels []string `json:"labels"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	if req.Title == "" {
		writeValidation(w, "Issue", "title", "missing_field")
		return
	}

	m.mu.Lock()
	number := m.addIssueLocked(req.Title, req.Body, req.Labels, false)
	issue := m.render(m.issues[number])
	m.mu.Unlock()

	writeJSON(w, http.StatusCreated, issue)
}

func (m *MockGitHub) getIssue(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(r.PathValue("number"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	m.mu.Lock()
	issue, ok := m.issues[number]
	var out map[string]any
	if ok {
		out = m.render(issue)
	}
	m.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (m *MockGitHub) listIssues(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	if perPage < 1 {
		perPage = 30
	}

	var want []string
	if l := q.Get("labels"); l != "" {
		want = strings.Split(l, ",")
	}

	m.mu.Lock()
	if m.PageSize > 0 {
		perPage = m.PageSize
	}
	numbers := make([]int, 0, len(m.issues))
	for n, issue := range m.issues {
		if hasAll(issue.Labels, want) {
			numbers = append(numbers, n)
		}
	}
	sort.Ints(numbers)

	start := (page - 1) * perPage
	end := min(start+perPage, len(numbers))
	out := []map[string]any{}
	if start < len(numbers) {
		for _, n := range numbers[start:end] {
			out = append(out, m.render(m.issues[n]))
		}
	}
	m.mu.Unlock()

	if end < len(numbers) {
		next := *r.URL
		nq := next.Query()
		nq.Set("page", strconv.Itoa(page+1))
		next.RawQuery = nq.Encode()
		w.Header().Set("Link", fmt.Sprintf(`<%s%s>; rel="next"`, m.baseURL, next.RequestURI()))
	}
	writeJSON(w, http.StatusOK, out)
}

func (m *MockGitHub) replaceLabels(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(r.PathValue("number"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	var labels []string
	if err := json.NewDecoder(r.Body).Decode(&labels); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}

	m.mu.Lock()
	issue, ok := m.issues[number]
	if ok {
		issue.Labels = append([]string(nil), labels...)
	}
	m.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	writeJSON(w, http.StatusOK, renderLabels(labels))
}

func (m *MockGitHub) createLabel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	repo := r.PathValue("owner") + "/" + r.PathValue("repo")

	m.mu.Lock()
	if m.labels[repo] == nil {
		m.labels[repo] = map[string]bool{}
	}
	exists := m.labels[repo][req.Name]
	m.labels[repo][req.Name] = true
	m.mu.Unlock()

	if exists {
		writeValidation(w, "Label", "name", "already_exists")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"name": req.Name})
}

func (m *MockGitHub) createRepo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string `json:"name"`
		Private bool   `json:"private"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	owner := r.PathValue("org")
	if owner == "" {
		owner = "owner"
	}

	m.mu.Lock()
	m.nextRepoID++
	id := m.nextRepoID
	m.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":        id,
		"name":      req.Name,
		"full_name": owner + "/" + req.Name,
		"html_url":  "https://github.com/" + owner + "/" + req.Name,
		"private":   req.Private,
	})
}

func (m *MockGitHub) render(issue *mockIssue) map[string]any {
	out := map[string]any{
		"number":   issue.Number,
		"html_url": issue.HTMLURL,
		"title":    issue.Title,
		"body":     issue.Body,
		"state":    issue.State,
		"labels":   renderLabels(issue.Labels),
	}
	if issue.PullRequest {
		out["pull_request"] = map[string]string{"url": issue.HTMLURL}
	}
	return out
}

func renderLabels(names []string) []map[string]string {
	out := make([]map[string]string, 0, len(names))
	for _, n := range names {
		out = append(out, map[string]string{"name": n})
	}
	return out
}

func hasAll(have, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func writeValidation(w http.ResponseWriter, resource, field, code string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"message": "Validation Failed",
		"errors": []map[string]string{
			{"resource": resource, "field": field, "code": code},
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
