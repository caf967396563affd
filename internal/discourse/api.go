package discourse

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/eventloom/icsync/pkg/errors"
)

// Search runs a free-text or tag query against /search.json and returns
// topic references in relevance order.
func (c *Client) Search(ctx context.Context, query string) ([]TopicRef, error) {
	q := url.Values{"q": {query}}
	var resp searchResponse
	if err := c.do(ctx, http.MethodGet, "/search.json", q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.topics(), nil
}

// ListLatest returns one page of the chronological recent-activity
// listing. Pages start at 0; an empty page means the listing is
// exhausted.
func (c *Client) ListLatest(ctx context.Context, page int) ([]TopicRef, error) {
	q := url.Values{
		"page":           {strconv.Itoa(page)},
		"no_definitions": {"true"},
	}
	var resp latestResponse
	if err := c.do(ctx, http.MethodGet, "/latest.json", q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.TopicList.Topics, nil
}

// GetTopic fetches a full topic including the raw content of its posts.
func (c *Client) GetTopic(ctx context.Context, id int) (*Topic, error) {
	q := url.Values{"include_raw": {"true"}}
	var topic Topic
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/t/%d.json", id), q, nil, &topic); err != nil {
		return nil, err
	}
	return &topic, nil
}

// CreateTopic creates a new topic and returns its id. Title, category,
// and archetype are set here once and never touched again by the engine.
func (c *Client) CreateTopic(ctx context.Context, title, raw string, categoryID int, tags []string) (int, error) {
	form := url.Values{}
	form.Set("title", title)
	form.Set("raw", raw)
	form.Set("category", strconv.Itoa(categoryID))
	form.Set("archetype", "regular")
	for _, tag := range tags {
		form.Add("tags[]", tag)
	}

	var resp createdResponse
	if err := c.do(ctx, http.MethodPost, "/posts.json", nil, form, &resp); err != nil {
		return 0, err
	}
	if resp.TopicID == 0 {
		return 0, errors.NewParseError("json", "/posts.json", "response missing topic_id", nil)
	}
	return resp.TopicID, nil
}

// UpdatePostRaw replaces a post's raw content. With suppressBump the
// request carries the bypass_bump hint and, because some instances
// ignore that hint, a compensating bump-reset is issued for the topic;
// its failure is logged and non-fatal.
func (c *Client) UpdatePostRaw(ctx context.Context, postID int, raw string, suppressBump bool, topicID int) error {
	form := url.Values{}
	form.Set("post[raw]", raw)
	if suppressBump {
		// Top-level field, not post[bypass_bump].
		form.Set("bypass_bump", "true")
	}

	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/posts/%d.json", postID), nil, form, nil); err != nil {
		return err
	}

	if suppressBump && topicID != 0 {
		if err := c.ResetBumpDate(ctx, topicID); err != nil {
			c.log.Warn().Err(err).Int("topic_id", topicID).Msg("bump-reset after post update failed")
		}
	}
	return nil
}

// UpdateTopicTags replaces a topic's tag set. Tag updates bump the topic
// regardless of hints, so a compensating bump-reset always follows; its
// failure is logged and non-fatal.
func (c *Client) UpdateTopicTags(ctx context.Context, topicID int, tags []string) error {
	form := url.Values{}
	for _, tag := range tags {
		form.Add("tags[]", tag)
	}

	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/t/%d.json", topicID), nil, form, nil); err != nil {
		return err
	}

	if err := c.ResetBumpDate(ctx, topicID); err != nil {
		c.log.Warn().Err(err).Int("topic_id", topicID).Msg("bump-reset after tag update failed")
	}
	return nil
}

// ResetBumpDate undoes a Latest bump caused by metadata changes.
// Requires staff credentials.
func (c *Client) ResetBumpDate(ctx context.Context, topicID int) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/t/%d/reset-bump-date", topicID), nil, url.Values{}, nil)
}
