package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const defaultPageSize = 1000

// Client talks to an X-API-v2-compatible HTTP surface with bearer auth.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client

	mu     sync.Mutex
	selfID string // cached /users/me result
}

// NewClient creates a Client for the given base URL and bearer token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError mirrors the error envelope the platform returns.
type apiError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshalling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr apiError
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Title != "" {
			return fmt.Errorf("%s %s: %s (%s)", method, path, apiErr.Title, apiErr.Detail)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding %s response: %w", path, err)
		}
	}
	return nil
}

func (c *Client) Follow(ctx context.Context, userID string) error {
	self, err := c.AuthenticatedUserID(ctx)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/2/users/"+self+"/following",
		map[string]string{"target_user_id": userID}, nil)
}

func (c *Client) Unfollow(ctx context.Context, userID string) error {
	self, err := c.AuthenticatedUserID(ctx)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, "/2/users/"+self+"/following/"+userID, nil, nil)
}

func (c *Client) Like(ctx context.Context, tweetID string) error {
	self, err := c.AuthenticatedUserID(ctx)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/2/users/"+self+"/likes",
		map[string]string{"tweet_id": tweetID}, nil)
}

func (c *Client) Unlike(ctx context.Context, tweetID string) error {
	self, err := c.AuthenticatedUserID(ctx)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, "/2/users/"+self+"/likes/"+tweetID, nil, nil)
}

func (c *Client) Post(ctx context.Context, text, replyToID, quoteOfID string) (string, error) {
	body := map[string]any{"text": text}
	if replyToID != "" {
		body["reply"] = map[string]string{"in_reply_to_tweet_id": replyToID}
	}
	if quoteOfID != "" {
		body["quote_tweet_id"] = quoteOfID
	}

	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/2/tweets", body, &out); err != nil {
		return "", err
	}
	if out.Data.ID == "" {
		return "", fmt.Errorf("post succeeded but no tweet id returned")
	}
	return out.Data.ID, nil
}

func (c *Client) Delete(ctx context.Context, tweetID string) error {
	return c.do(ctx, http.MethodDelete, "/2/tweets/"+tweetID, nil, nil)
}

type userData struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	PinnedTweetID string `json:"pinned_tweet_id"`
	PublicMetrics struct {
		FollowersCount int `json:"followers_count"`
	} `json:"public_metrics"`
}

func profileFromUser(u userData) Profile {
	return Profile{
		ID:            u.ID,
		Username:      u.Username,
		PinnedTweetID: u.PinnedTweetID,
		FollowerCount: u.PublicMetrics.FollowersCount,
	}
}

func (c *Client) GetProfile(ctx context.Context, userID string) (Profile, error) {
	var out struct {
		Data userData `json:"data"`
	}
	path := "/2/users/" + userID + "?user.fields=pinned_tweet_id,public_metrics"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return Profile{}, err
	}
	return profileFromUser(out.Data), nil
}

func (c *Client) GetRecentPosts(ctx context.Context, userID string, limit int) ([]Post, error) {
	if limit < 5 {
		limit = 5 // platform minimum for max_results
	}
	var out struct {
		Data []struct {
			ID               string `json:"id"`
			Text             string `json:"text"`
			ReferencedTweets []struct {
				Type string `json:"type"`
			} `json:"referenced_tweets"`
		} `json:"data"`
	}
	path := fmt.Sprintf("/2/users/%s/tweets?max_results=%d&tweet.fields=referenced_tweets&exclude=retweets",
		userID, limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}

	posts := make([]Post, 0, len(out.Data))
	for _, t := range out.Data {
		p := Post{ID: t.ID, Text: t.Text}
		for _, ref := range t.ReferencedTweets {
			if ref.Type == "replied_to" {
				p.IsReply = true
			}
		}
		posts = append(posts, p)
	}
	return posts, nil
}

func (c *Client) GetFollowingPage(ctx context.Context, userID string, pageSize int, token string) (FollowingPage, error) {
	return c.relationPage(ctx, userID, "following", pageSize, token)
}

func (c *Client) relationPage(ctx context.Context, userID, relation string, pageSize int, token string) (FollowingPage, error) {
	if pageSize <= 0 || pageSize > defaultPageSize {
		pageSize = defaultPageSize
	}
	q := url.Values{}
	q.Set("max_results", fmt.Sprintf("%d", pageSize))
	if token != "" {
		q.Set("pagination_token", token)
	}

	var out struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
		Meta struct {
			NextToken string `json:"next_token"`
		} `json:"meta"`
	}
	path := "/2/users/" + userID + "/" + relation + "?" + q.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return FollowingPage{}, err
	}

	page := FollowingPage{NextToken: out.Meta.NextToken}
	for _, d := range out.Data {
		page.IDs = append(page.IDs, d.ID)
	}
	return page, nil
}

func (c *Client) GetMetrics(ctx context.Context, tweetID string) (Metrics, error) {
	var out struct {
		Data struct {
			PublicMetrics struct {
				LikeCount       int `json:"like_count"`
				ReplyCount      int `json:"reply_count"`
				ImpressionCount int `json:"impression_count"`
			} `json:"public_metrics"`
		} `json:"data"`
	}
	path := "/2/tweets/" + tweetID + "?tweet.fields=public_metrics"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return Metrics{}, err
	}
	return Metrics{
		Likes:       out.Data.PublicMetrics.LikeCount,
		Replies:     out.Data.PublicMetrics.ReplyCount,
		Impressions: out.Data.PublicMetrics.ImpressionCount,
	}, nil
}

func (c *Client) LookupUserID(ctx context.Context, username string) (string, error) {
	var out struct {
		Data userData `json:"data"`
	}
	path := "/2/users/by/username/" + url.PathEscape(strings.TrimPrefix(username, "@"))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return "", err
	}
	if out.Data.ID == "" {
		return "", fmt.Errorf("no user found for handle %q", username)
	}
	return out.Data.ID, nil
}

func (c *Client) AuthenticatedUserID(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selfID != "" {
		return c.selfID, nil
	}

	var out struct {
		Data userData `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/2/users/me", nil, &out); err != nil {
		return "", err
	}
	if out.Data.ID == "" {
		return "", fmt.Errorf("authenticated user lookup returned no id")
	}
	c.selfID = out.Data.ID
	return c.selfID, nil
}

// GetNonFollowers diffs the operator's following list against their follower
// list, paging at most maxPages per direction, and returns followed accounts
// that do not follow back.
func (c *Client) GetNonFollowers(ctx context.Context, maxPages int) ([]User, error) {
	self, err := c.AuthenticatedUserID(ctx)
	if err != nil {
		return nil, err
	}
	if maxPages <= 0 {
		maxPages = 1
	}

	followers := make(map[string]bool)
	token := ""
	for page := 0; page < maxPages; page++ {
		p, err := c.relationPage(ctx, self, "followers", defaultPageSize, token)
		if err != nil {
			return nil, fmt.Errorf("listing followers: %w", err)
		}
		for _, id := range p.IDs {
			followers[id] = true
		}
		if p.NextToken == "" {
			break
		}
		token = p.NextToken
	}

	var nonFollowers []User
	token = ""
	for page := 0; page < maxPages; page++ {
		p, err := c.followingDetailPage(ctx, self, token)
		if err != nil {
			return nil, fmt.Errorf("listing following: %w", err)
		}
		for _, u := range p.users {
			if !followers[u.ID] {
				nonFollowers = append(nonFollowers, u)
			}
		}
		if p.nextToken == "" {
			break
		}
		token = p.nextToken
	}
	return nonFollowers, nil
}

type detailPage struct {
	users     []User
	nextToken string
}

func (c *Client) followingDetailPage(ctx context.Context, userID, token string) (detailPage, error) {
	q := url.Values{}
	q.Set("max_results", fmt.Sprintf("%d", defaultPageSize))
	q.Set("user.fields", "public_metrics")
	if token != "" {
		q.Set("pagination_token", token)
	}

	var out struct {
		Data []userData `json:"data"`
		Meta struct {
			NextToken string `json:"next_token"`
		} `json:"meta"`
	}
	path := "/2/users/" + userID + "/following?" + q.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return detailPage{}, err
	}

	p := detailPage{nextToken: out.Meta.NextToken}
	for _, d := range out.Data {
		p.users = append(p.users, User{
			ID:            d.ID,
			Username:      d.Username,
			FollowerCount: d.PublicMetrics.FollowersCount,
		})
	}
	return p, nil
}
