package discourse

// TopicRef is the minimal topic identity returned by search and listing
// endpoints. Search relevance is best-effort; a TopicRef is never
// trusted without fetching and verifying the full topic.
type TopicRef struct {
	ID    int    `json:"id"`
	Title string `json:"title,omitempty"`
}

// Post is a single post within a topic. Raw is only populated when the
// topic was fetched with include_raw.
type Post struct {
	ID  int    `json:"id"`
	Raw string `json:"raw"`
}

// Topic is a remote record: tags plus the post stream. The engine reads
// and conditionally mutates tags and the first post's raw content, never
// the title or category after creation.
type Topic struct {
	ID         int      `json:"id"`
	Title      string   `json:"title"`
	CategoryID int      `json:"category_id"`
	Tags       []string `json:"tags"`
	PostStream struct {
		Posts []Post `json:"posts"`
	} `json:"post_stream"`
}

// FirstPost returns the topic's first post, or false when the post
// stream is empty.
func (t *Topic) FirstPost() (Post, bool) {
	if t == nil || len(t.PostStream.Posts) == 0 {
		return Post{}, false
	}
	return t.PostStream.Posts[0], true
}

// searchResponse covers both shapes /search.json is observed to return:
// a flat topics array and a nested topic_list.
type searchResponse struct {
	Topics    []TopicRef `json:"topics"`
	TopicList struct {
		Topics []TopicRef `json:"topics"`
	} `json:"topic_list"`
}

// topics returns whichever list the response populated.
func (r *searchResponse) topics() []TopicRef {
	if len(r.Topics) > 0 {
		return r.Topics
	}
	return r.TopicList.Topics
}

// latestResponse is the shape of /latest.json.
type latestResponse struct {
	TopicList struct {
		Topics []TopicRef `json:"topics"`
	} `json:"topic_list"`
}

// createdResponse is the shape returned by creating a post/topic.
type createdResponse struct {
	ID      int `json:"id"`
	TopicID int `json:"topic_id"`
}
